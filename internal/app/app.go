// Package app assembles the bank services from configuration. Every
// command builds its dependencies through here so the API, the worker and
// the CLI agree on backend selection and settlement tuning.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/config"
	"github.com/dvloznov/family-bank/internal/domain"
	infraBQ "github.com/dvloznov/family-bank/internal/infra/bigquery"
	"github.com/dvloznov/family-bank/internal/infra/postgres"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/members"
	"github.com/dvloznov/family-bank/internal/notify"
	"github.com/dvloznov/family-bank/internal/rates"
	"github.com/dvloznov/family-bank/internal/settlement"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/dvloznov/family-bank/internal/store/inmemory"
	"github.com/rs/zerolog"
)

// watchInterval is how often SQL backends are polled for live views.
const watchInterval = 2 * time.Second

// App holds the wired services of one process.
type App struct {
	Config *config.Config
	Clock  clock.Clock
	Log    zerolog.Logger

	Repo       store.Repository
	Subscriber store.Subscriber

	Ledger  *ledger.Service
	Members *members.Service
	Rates   *rates.Provider
	Engine  *settlement.Engine
	Guard   *settlement.Guard

	// Hub is nil until EnableHub is called.
	Hub *notify.Hub
}

// Option customizes Build.
type Option func(*options)

type options struct {
	clock    clock.Clock
	repo     store.Repository
	notifier []notify.Notifier
	hub      *notify.Hub
}

// WithClock overrides the real clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRepository skips backend selection and uses repo.
func WithRepository(repo store.Repository) Option {
	return func(o *options) { o.repo = repo }
}

// WithHub fans settlement outcomes out to websocket clients as well.
func WithHub(h *notify.Hub) Option {
	return func(o *options) {
		o.hub = h
		o.notifier = append(o.notifier, h)
	}
}

// Build opens the configured backend and wires the services on top of it.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	repo := o.repo
	if repo == nil {
		var err error
		repo, err = OpenRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	base, bonus, err := cfg.Rates.Parse()
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("Build: %w", err)
	}
	defaults := domain.DefaultRates()
	defaults.BaseRate = base
	defaults.BonusRate = bonus
	defaults.IsAutoMode = cfg.Rates.Auto

	a := &App{
		Config: cfg,
		Clock:  o.clock,
		Log:    log,
		Repo:   repo,
		Hub:    o.hub,
	}

	// The in-memory store pushes changes itself; other backends are polled.
	if sub, ok := repo.(store.Subscriber); ok {
		a.Subscriber = sub
	} else {
		a.Subscriber = store.NewWatcher(repo, o.clock, watchInterval, log)
	}

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	notifiers = append(notifiers, o.notifier...)

	a.Ledger = ledger.NewService(repo, o.clock, cfg.Settlement.WriteTimeout)
	a.Members = members.NewService(repo, repo, o.clock)
	a.Rates = rates.NewProvider(repo, o.clock, rates.WithDefaults(defaults))
	a.Engine = settlement.NewEngine(repo, a.Ledger, o.clock,
		settlement.WithNotifier(notifiers),
		settlement.WithMaxConflictRetries(cfg.Settlement.MaxConflictRetries),
		settlement.WithWriteTimeout(cfg.Settlement.WriteTimeout),
	)
	a.Guard = settlement.NewGuard(o.clock, cfg.Settlement.Cooldown)

	log.Debug().Str("backend", string(cfg.Backend)).Msg("Services wired")
	return a, nil
}

// OpenRepository connects to the backend named by cfg.Backend.
func OpenRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return inmemory.NewStore(), nil
	case config.BackendBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepository(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("OpenRepository: unknown backend %q", cfg.Backend)
	}
}

// Close stops the guard and closes the backend.
func (a *App) Close() error {
	a.Guard.Close()
	return a.Repo.Close()
}

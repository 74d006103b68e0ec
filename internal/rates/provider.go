// Package rates manages the household interest configuration: a base rate
// that tracks simulated inflation, a parent-set bonus, and the daily market
// drift that moves the base rate in auto mode.
package rates

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/shopspring/decimal"
)

const (
	// DriftInterval is how stale the last market update must be before
	// auto mode drifts the base rate again.
	DriftInterval = 24 * time.Hour
)

var (
	// MinBase and MaxBase clamp the drifted base rate.
	MinBase = decimal.RequireFromString("0.005")
	MaxBase = decimal.RequireFromString("0.08")

	driftSpan = decimal.RequireFromString("0.03")
	half      = decimal.RequireFromString("0.5")

	// manual rates outside this band are rejected
	maxAbsRate = decimal.NewFromInt(1)
)

// RandFunc returns a uniform float64 in [0, 1).
type RandFunc func() float64

// Provider reads and updates the household rates document.
type Provider struct {
	repo     store.RateRepository
	clock    clock.Clock
	rand     RandFunc
	defaults domain.Rates
}

// Option configures a Provider.
type Option func(*Provider)

// WithRand replaces the drift random source.
func WithRand(fn RandFunc) Option {
	return func(p *Provider) { p.rand = fn }
}

// WithDefaults replaces the document written for a household with no rates.
func WithDefaults(r domain.Rates) Option {
	return func(p *Provider) { p.defaults = r }
}

// NewProvider creates a rate provider.
func NewProvider(repo store.RateRepository, clk clock.Clock, opts ...Option) *Provider {
	p := &Provider{
		repo:     repo,
		clock:    clk,
		rand:     rand.Float64,
		defaults: domain.DefaultRates(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the household rates, creating the default document when the
// household has none.
func (p *Provider) Get(ctx context.Context, householdID string) (*domain.Rates, error) {
	r, err := p.repo.GetRates(ctx, householdID)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("Get: %w", err)
	}

	defaults := p.defaults
	if err := p.repo.SaveRates(ctx, householdID, &defaults); err != nil {
		return nil, &domain.WriteFailure{Op: "create default rates", Err: err}
	}
	log := logger.FromContext(ctx)
	log.Info().Str("household_id", householdID).Msg("Created default rates")
	return &defaults, nil
}

// EffectiveRate returns base + bonus for the household.
func (p *Provider) EffectiveRate(ctx context.Context, householdID string) (decimal.Decimal, error) {
	r, err := p.Get(ctx, householdID)
	if err != nil {
		return decimal.Zero, err
	}
	return r.Effective(), nil
}

// SetManual stores parent-chosen base and bonus rates. Auto mode is left as
// is; callers that want the base rate to stay put also turn auto mode off.
func (p *Provider) SetManual(ctx context.Context, householdID string, base, bonus decimal.Decimal) (*domain.Rates, error) {
	if base.Abs().GreaterThan(maxAbsRate) {
		return nil, domain.NewValidationError("base_rate", "must be between -1 and 1, got %s", base.String())
	}
	if bonus.Abs().GreaterThan(maxAbsRate) {
		return nil, domain.NewValidationError("bonus_rate", "must be between -1 and 1, got %s", bonus.String())
	}

	r, err := p.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	r.BaseRate = base
	r.BonusRate = bonus
	if err := p.save(ctx, householdID, r, "set manual rates"); err != nil {
		return nil, err
	}
	return r, nil
}

// SetAutoMode toggles the daily market drift.
func (p *Provider) SetAutoMode(ctx context.Context, householdID string, on bool) (*domain.Rates, error) {
	r, err := p.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	r.IsAutoMode = on
	if err := p.save(ctx, householdID, r, "set auto mode"); err != nil {
		return nil, err
	}
	return r, nil
}

// NeedsDrift reports whether auto mode should move the base rate at now:
// the last update is more than a day old, or no news line exists yet.
func NeedsDrift(r *domain.Rates, now time.Time) bool {
	if !r.IsAutoMode {
		return false
	}
	stale := now.UnixMilli()-r.LastMarketUpdate > DriftInterval.Milliseconds()
	return stale || r.NewsText == "" || r.NewsText == domain.PlaceholderNews
}

// Drift moves base by (u - 0.5) × 0.03 for a uniform u, clamped to
// [MinBase, MaxBase] and kept to six places.
func Drift(base decimal.Decimal, u float64) decimal.Decimal {
	delta := decimal.NewFromFloat(u).Sub(half).Mul(driftSpan)
	next := base.Add(delta).Round(6)
	if next.LessThan(MinBase) {
		return MinBase
	}
	if next.GreaterThan(MaxBase) {
		return MaxBase
	}
	return next
}

// MaybeDrift applies one market drift when NeedsDrift holds at now. It
// returns the current document and whether it changed.
func (p *Provider) MaybeDrift(ctx context.Context, householdID string, now time.Time) (*domain.Rates, bool, error) {
	r, err := p.Get(ctx, householdID)
	if err != nil {
		return nil, false, err
	}
	if !NeedsDrift(r, now) {
		return r, false, nil
	}

	previous := r.BaseRate
	r.BaseRate = Drift(r.BaseRate, p.rand())
	r.NewsText = NewsLine(r.BaseRate, now)
	r.LastMarketUpdate = now.UnixMilli()

	if err := p.save(ctx, householdID, r, "drift base rate"); err != nil {
		return nil, false, err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("household_id", householdID).
		Str("previous_base", previous.String()).
		Str("base", r.BaseRate.String()).
		Msg("Market drift applied")
	return r, true, nil
}

// Refresh is MaybeDrift at the provider's clock time.
func (p *Provider) Refresh(ctx context.Context, householdID string) (*domain.Rates, bool, error) {
	return p.MaybeDrift(ctx, householdID, p.clock.Now())
}

func (p *Provider) save(ctx context.Context, householdID string, r *domain.Rates, op string) error {
	if err := p.repo.SaveRates(ctx, householdID, r); err != nil {
		return &domain.WriteFailure{Op: op, Err: err}
	}
	return nil
}

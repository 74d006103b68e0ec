// Package settlement credits daily compound interest to members and
// advances their settlement watermark.
//
// A settlement attempt writes the watermark before it appends the interest
// entry. The watermark write is conditional on the value the attempt read,
// so two writers racing on the same member cannot both credit the same
// window: the loser re-reads, finds less than a day elapsed, and stops.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/money"
	"github.com/dvloznov/family-bank/internal/notify"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultMaxConflictRetries bounds re-reads after a watermark conflict.
const DefaultMaxConflictRetries = 3

// Outcome classifies a settlement attempt.
type Outcome string

const (
	// OutcomeGuarded means another attempt for the member holds the guard.
	OutcomeGuarded Outcome = "guarded"
	// OutcomeNotDue means less than one whole day elapsed since the watermark.
	OutcomeNotDue Outcome = "not_due"
	// OutcomeStaleRead means a concurrent writer settled the member first.
	OutcomeStaleRead Outcome = "stale_read"
	// OutcomeMemberGone means the member was deleted while settling.
	OutcomeMemberGone Outcome = "member_gone"
	// OutcomeNoBalance means the watermark advanced but the balance was not positive.
	OutcomeNoBalance Outcome = "no_balance"
	// OutcomeNoInterest means the watermark advanced but earned rounded to zero or less.
	OutcomeNoInterest Outcome = "no_interest"
	// OutcomeCredited means an interest entry was appended.
	OutcomeCredited Outcome = "credited"
	// OutcomeInterestLost means the watermark advanced but the interest
	// append failed. The window is not retried.
	OutcomeInterestLost Outcome = "interest_lost"
)

// Request carries the snapshots a settlement attempt acts on.
type Request struct {
	HouseholdID  string
	Member       *domain.Member
	Transactions []*domain.Transaction
	Rate         decimal.Decimal
}

// Result describes what a settlement attempt did.
type Result struct {
	Outcome     Outcome             `json:"outcome"`
	ElapsedDays int64               `json:"elapsed_days"`
	Balance     decimal.Decimal     `json:"balance"`
	Earned      decimal.Decimal     `json:"earned"`
	Rate        decimal.Decimal     `json:"rate"`
	Watermark   int64               `json:"watermark"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

// Ledger is the part of the ledger service settlement depends on.
type Ledger interface {
	Append(ctx context.Context, householdID string, tx *domain.Transaction) error
	Transactions(ctx context.Context, householdID, memberID string) ([]*domain.Transaction, error)
}

// Engine runs settlement attempts.
type Engine struct {
	members      store.MemberRepository
	ledger       Ledger
	clock        clock.Clock
	notifier     notify.Notifier
	maxRetries   int
	writeTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets where credited interest is announced.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMaxConflictRetries bounds re-reads after a watermark conflict.
func WithMaxConflictRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithWriteTimeout aborts the watermark write client-side after d. The
// write may still land.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) { e.writeTimeout = d }
}

// NewEngine creates a settlement engine.
func NewEngine(members store.MemberRepository, l Ledger, clk clock.Clock, opts ...Option) *Engine {
	e := &Engine{
		members:    members,
		ledger:     l,
		clock:      clk,
		notifier:   notify.Discard,
		maxRetries: DefaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GuardKey identifies a member across households.
func GuardKey(householdID, memberID string) string {
	return householdID + "/" + memberID
}

// Settle credits the interest accrued since the member's watermark. The
// guard is acquired before anything is read and released after its
// cooldown. Errors are *domain.ValidationError or *domain.WriteFailure; a
// lost interest append is reported through the outcome, not an error.
func (e *Engine) Settle(ctx context.Context, g *Guard, req Request) (*Result, error) {
	if req.Member == nil || req.Member.ID == "" {
		return nil, domain.NewValidationError("member", "is required")
	}

	key := GuardKey(req.HouseholdID, req.Member.ID)
	if !g.TryAcquire(key) {
		return &Result{Outcome: OutcomeGuarded, Rate: req.Rate}, nil
	}
	defer g.Release(key)

	log := logger.ForMember(logger.FromContext(ctx), req.HouseholdID, req.Member.ID)
	ctx = logger.WithContext(ctx, log)

	res, err := e.settle(ctx, req)
	var ev *zerolog.Event
	if err != nil {
		ev = log.Error().Err(err)
	} else {
		ev = log.Info()
	}
	if res != nil {
		ev = ev.Str("outcome", string(res.Outcome)).
			Int64("elapsed_days", res.ElapsedDays).
			Str("balance", res.Balance.StringFixed(2)).
			Str("earned", res.Earned.StringFixed(2)).
			Str("rate", res.Rate.String()).
			Int64("watermark", res.Watermark)
	}
	ev.Msg("Interest run")

	return res, err
}

func (e *Engine) settle(ctx context.Context, req Request) (*Result, error) {
	log := logger.FromContext(ctx)
	now := clock.NowMillis(e.clock)
	member := req.Member
	txs := req.Transactions

	res := &Result{Rate: req.Rate, Watermark: member.LastInterestDate}

	for attempt := 0; ; attempt++ {
		res.ElapsedDays = ElapsedDays(member.LastInterestDate, now)
		res.Watermark = member.LastInterestDate
		if member.LastInterestDate == 0 || res.ElapsedDays < 1 {
			res.Outcome = OutcomeNotDue
			if attempt > 0 {
				res.Outcome = OutcomeStaleRead
			}
			return res, nil
		}

		res.Balance = ledger.Fold(txs, member.ID)

		err := e.advanceWatermark(ctx, req.HouseholdID, member.ID, member.LastInterestDate, now)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrWatermarkConflict) {
			return res, &domain.WriteFailure{Op: "advance watermark", Err: err}
		}
		if attempt >= e.maxRetries {
			return res, &domain.WriteFailure{Op: "advance watermark", Err: fmt.Errorf("gave up after %d conflicts: %w", attempt+1, err)}
		}

		log.Debug().Int("attempt", attempt+1).Msg("Watermark conflict, re-reading member")
		member, txs, err = e.reread(ctx, req.HouseholdID, member.ID)
		if errors.Is(err, store.ErrNotFound) {
			res.Outcome = OutcomeMemberGone
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("settle: re-read after conflict: %w", err)
		}
	}
	res.Watermark = now

	if !res.Balance.IsPositive() {
		res.Outcome = OutcomeNoBalance
		return res, nil
	}

	res.Earned = Earned(res.Balance, req.Rate, res.ElapsedDays)
	if !res.Earned.IsPositive() {
		res.Earned = decimal.Zero
		res.Outcome = OutcomeNoInterest
		return res, nil
	}

	tx := &domain.Transaction{
		MemberID:   member.ID,
		Type:       domain.TypeInterest,
		Amount:     res.Earned,
		Note:       InterestNote(req.Rate, res.ElapsedDays),
		Timestamp:  now,
		RecordedBy: domain.RecordedBySystem,
	}
	if err := e.ledger.Append(ctx, req.HouseholdID, tx); err != nil {
		log.Error().Err(err).
			Str("earned", res.Earned.StringFixed(2)).
			Int64("elapsed_days", res.ElapsedDays).
			Msg("Interest append failed after watermark advanced, window lost")
		res.Outcome = OutcomeInterestLost
		return res, nil
	}
	res.Transaction = tx
	res.Outcome = OutcomeCredited

	n := notify.Notification{
		HouseholdID: req.HouseholdID,
		MemberID:    member.ID,
		Earned:      res.Earned,
		ElapsedDays: res.ElapsedDays,
		Rate:        req.Rate,
		Timestamp:   now,
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		log.Warn().Err(err).Msg("Interest notification dropped")
	}
	return res, nil
}

func (e *Engine) advanceWatermark(ctx context.Context, householdID, memberID string, expected, next int64) error {
	if e.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.writeTimeout)
		defer cancel()
	}
	return e.members.AdvanceWatermark(ctx, householdID, memberID, expected, next)
}

func (e *Engine) reread(ctx context.Context, householdID, memberID string) (*domain.Member, []*domain.Transaction, error) {
	member, err := e.members.GetMember(ctx, householdID, memberID)
	if err != nil {
		return nil, nil, err
	}
	txs, err := e.ledger.Transactions(ctx, householdID, memberID)
	if err != nil {
		return nil, nil, err
	}
	return member, txs, nil
}

// InterestNote describes an interest entry, e.g.
// "Compound interest settled (5.0%, 30 days)".
func InterestNote(rate decimal.Decimal, days int64) string {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("Compound interest settled (%s, %d %s)", money.Percent(rate), days, unit)
}

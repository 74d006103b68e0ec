// Package session implements the live view of one member: it follows the
// member, rates and transaction snapshots and runs settlement whenever all
// three are available.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/rates"
	"github.com/dvloznov/family-bank/internal/settlement"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const curvePoints = 30

// Profile is the member as shown to viewers. It never carries the PIN.
type Profile struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Avatar           string `json:"avatar"`
	CreatedAt        int64  `json:"created_at"`
	LastInterestDate int64  `json:"last_interest_date"`
}

func profileOf(m *domain.Member) *Profile {
	if m == nil {
		return nil
	}
	return &Profile{
		ID:               m.ID,
		Name:             m.Name,
		Avatar:           m.Avatar,
		CreatedAt:        m.CreatedAt,
		LastInterestDate: m.LastInterestDate,
	}
}

// Snapshot is the derived state of a member view.
type Snapshot struct {
	Member            *Profile              `json:"member"`
	Rates             *domain.Rates         `json:"rates"`
	EffectiveRate     decimal.Decimal       `json:"effective_rate"`
	Balance           decimal.Decimal       `json:"balance"`
	MonthlyProjection decimal.Decimal       `json:"monthly_projection"`
	Transactions      []*domain.Transaction `json:"transactions"`
	Curve             []ledger.Point        `json:"curve"`
	Achievements      []ledger.Achievement  `json:"achievements"`
}

// Config wires a member view.
type Config struct {
	HouseholdID string
	MemberID    string

	Subscriber store.Subscriber
	Engine     *settlement.Engine
	Guard      *settlement.Guard

	// Rates, when set, creates missing rate documents and applies the
	// daily market drift as rate snapshots arrive.
	Rates *rates.Provider

	// OnSnapshot receives every derived snapshot. Optional.
	OnSnapshot func(Snapshot)
	// OnSettle receives every settlement result. Optional.
	OnSettle func(*settlement.Result, error)
}

// MemberView is the currently active view of one member. It owns the
// settlement guard for that member.
type MemberView struct {
	cfg Config
	ctx context.Context
	log zerolog.Logger

	mu      sync.Mutex
	member  *domain.Member
	rates   *domain.Rates
	txs     []*domain.Transaction
	haveTxs bool
	closed  bool

	cancel context.CancelFunc
	unsubs []func()
}

// Open subscribes to the member's data. Initial snapshots are delivered
// before Open returns, so settlement may already have run.
func Open(ctx context.Context, cfg Config) (*MemberView, error) {
	if cfg.Guard == nil {
		return nil, fmt.Errorf("Open: a settlement guard is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	log := logger.ForMember(logger.FromContext(ctx), cfg.HouseholdID, cfg.MemberID)
	v := &MemberView{
		cfg:    cfg,
		ctx:    logger.WithContext(ctx, log),
		log:    log,
		cancel: cancel,
	}

	unsub, err := cfg.Subscriber.SubscribeRates(v.ctx, cfg.HouseholdID, v.onRates)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("Open: subscribe rates: %w", err)
	}
	v.addUnsub(unsub)

	unsub, err = cfg.Subscriber.SubscribeTransactions(v.ctx, cfg.HouseholdID, v.onTransactions)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("Open: subscribe transactions: %w", err)
	}
	v.addUnsub(unsub)

	unsub, err = cfg.Subscriber.SubscribeMember(v.ctx, cfg.HouseholdID, cfg.MemberID, v.onMember)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("Open: subscribe member: %w", err)
	}
	v.addUnsub(unsub)

	return v, nil
}

// Close cancels every subscription. Pending guard cooldowns are left to
// the guard owner.
func (v *MemberView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsubs := v.unsubs
	v.unsubs = nil
	v.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	v.cancel()
}

func (v *MemberView) addUnsub(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unsubs = append(v.unsubs, fn)
}

// Snapshot returns the current derived state. Member or Rates are nil until
// their first snapshot arrives.
func (v *MemberView) Snapshot() Snapshot {
	v.mu.Lock()
	member, r, txs := v.member, v.rates, v.txs
	v.mu.Unlock()
	return derive(v.cfg.MemberID, member, r, txs)
}

func derive(memberID string, member *domain.Member, r *domain.Rates, txs []*domain.Transaction) Snapshot {
	s := Snapshot{
		Member:       profileOf(member),
		Rates:        r,
		Balance:      ledger.Fold(txs, memberID),
		Transactions: store.ForMember(txs, memberID),
		Curve:        ledger.Curve(txs, memberID, curvePoints),
		Achievements: ledger.Achievements(txs, memberID),
	}
	if r != nil {
		s.EffectiveRate = r.Effective()
		s.MonthlyProjection = rates.MonthlyProjection(s.Balance, s.EffectiveRate)
	}
	return s
}

func (v *MemberView) onMember(m *domain.Member) {
	v.mu.Lock()
	v.member = m
	v.mu.Unlock()
	v.changed()
}

func (v *MemberView) onTransactions(txs []*domain.Transaction) {
	v.mu.Lock()
	v.txs = txs
	v.haveTxs = true
	v.mu.Unlock()
	v.changed()
}

func (v *MemberView) onRates(r *domain.Rates) {
	v.mu.Lock()
	v.rates = r
	v.mu.Unlock()

	if v.cfg.Rates != nil {
		v.refreshRates(r)
	}
	v.changed()
}

// refreshRates creates the default document when r is nil and otherwise
// applies the market drift. Writes come back through the rates
// subscription.
func (v *MemberView) refreshRates(r *domain.Rates) {
	var err error
	if r == nil {
		_, err = v.cfg.Rates.Get(v.ctx, v.cfg.HouseholdID)
	} else {
		_, _, err = v.cfg.Rates.Refresh(v.ctx, v.cfg.HouseholdID)
	}
	if err != nil {
		v.log.Warn().Err(err).Msg("Rates refresh failed")
	}
}

// changed publishes the new snapshot and settles once member, rates and
// transactions have all arrived.
func (v *MemberView) changed() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	member, r, txs, ready := v.member, v.rates, v.txs, v.member != nil && v.rates != nil && v.haveTxs
	v.mu.Unlock()

	if v.cfg.OnSnapshot != nil {
		v.cfg.OnSnapshot(derive(v.cfg.MemberID, member, r, txs))
	}
	if !ready || v.cfg.Engine == nil {
		return
	}

	res, err := v.cfg.Engine.Settle(v.ctx, v.cfg.Guard, settlement.Request{
		HouseholdID:  v.cfg.HouseholdID,
		Member:       member,
		Transactions: txs,
		Rate:         r.Effective(),
	})
	if err != nil {
		v.log.Warn().Err(err).Msg("Settlement failed, will retry on next snapshot")
	}
	if v.cfg.OnSettle != nil {
		v.cfg.OnSettle(res, err)
	}
}

package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of store.Repository and
// store.Subscriber. It is safe for concurrent use and pushes a full
// snapshot to subscribers after every write, outside its lock, so a
// subscriber may write back into the store from its callback.
// Data is lost on restart - use the BigQuery or Postgres backend to persist.
type Store struct {
	mu         sync.RWMutex
	households map[string]*household
	subs       map[int]*subscription
	nextSubID  int
}

type household struct {
	members      map[string]*domain.Member
	transactions map[string]*domain.Transaction
	rates        *domain.Rates
}

type subKind int

const (
	subTransactions subKind = iota
	subMember
	subRates
)

type subscription struct {
	kind        subKind
	householdID string
	memberID    string
	onTxs       func([]*domain.Transaction)
	onMember    func(*domain.Member)
	onRates     func(*domain.Rates)
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		households: make(map[string]*household),
		subs:       make(map[int]*subscription),
	}
}

// household returns the namespace for id, creating it. Caller holds s.mu.
func (s *Store) household(id string) *household {
	h, ok := s.households[id]
	if !ok {
		h = &household{
			members:      make(map[string]*domain.Member),
			transactions: make(map[string]*domain.Transaction),
		}
		s.households[id] = h
	}
	return h
}

// InsertTransaction implements store.TransactionRepository.
func (s *Store) InsertTransaction(ctx context.Context, householdID string, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("InsertTransaction: transaction ID is required")
	}

	s.mu.Lock()
	h := s.household(householdID)
	if _, exists := h.transactions[tx.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("InsertTransaction: transaction %s already exists", tx.ID)
	}
	txCopy := *tx
	h.transactions[tx.ID] = &txCopy
	s.mu.Unlock()

	s.publish(householdID, subTransactions, "")
	return nil
}

// UpdateTransaction implements store.TransactionRepository.
func (s *Store) UpdateTransaction(ctx context.Context, householdID, txID string, amount decimal.Decimal, note string) error {
	s.mu.Lock()
	tx, ok := s.household(householdID).transactions[txID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("UpdateTransaction: %s: %w", txID, store.ErrNotFound)
	}
	tx.Amount = amount
	tx.Note = note
	s.mu.Unlock()

	s.publish(householdID, subTransactions, "")
	return nil
}

// DeleteTransaction implements store.TransactionRepository.
func (s *Store) DeleteTransaction(ctx context.Context, householdID, txID string) error {
	s.mu.Lock()
	h := s.household(householdID)
	if _, ok := h.transactions[txID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("DeleteTransaction: %s: %w", txID, store.ErrNotFound)
	}
	delete(h.transactions, txID)
	s.mu.Unlock()

	s.publish(householdID, subTransactions, "")
	return nil
}

// DeleteMemberTransactions implements store.TransactionRepository.
func (s *Store) DeleteMemberTransactions(ctx context.Context, householdID, memberID string) (int, error) {
	s.mu.Lock()
	h := s.household(householdID)
	n := 0
	for id, tx := range h.transactions {
		if tx.MemberID == memberID {
			delete(h.transactions, id)
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.publish(householdID, subTransactions, "")
	}
	return n, nil
}

// ListTransactions implements store.TransactionRepository. Results are
// ordered newest first, matching the other backends.
func (s *Store) ListTransactions(ctx context.Context, householdID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotTransactions(householdID), nil
}

// snapshotTransactions copies a household's transactions. Caller holds s.mu.
func (s *Store) snapshotTransactions(householdID string) []*domain.Transaction {
	h, ok := s.households[householdID]
	if !ok {
		return []*domain.Transaction{}
	}
	out := make([]*domain.Transaction, 0, len(h.transactions))
	for _, tx := range h.transactions {
		txCopy := *tx
		out = append(out, &txCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// InsertMember implements store.MemberRepository.
func (s *Store) InsertMember(ctx context.Context, householdID string, m *domain.Member) error {
	if m.ID == "" {
		return fmt.Errorf("InsertMember: member ID is required")
	}

	s.mu.Lock()
	h := s.household(householdID)
	if _, exists := h.members[m.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("InsertMember: member %s already exists", m.ID)
	}
	mCopy := *m
	h.members[m.ID] = &mCopy
	s.mu.Unlock()

	s.publish(householdID, subMember, m.ID)
	return nil
}

// UpdateMemberProfile implements store.MemberRepository.
func (s *Store) UpdateMemberProfile(ctx context.Context, householdID string, m *domain.Member) error {
	s.mu.Lock()
	existing, ok := s.household(householdID).members[m.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("UpdateMemberProfile: %s: %w", m.ID, store.ErrNotFound)
	}
	existing.Name = m.Name
	existing.Avatar = m.Avatar
	existing.PIN = m.PIN
	s.mu.Unlock()

	s.publish(householdID, subMember, m.ID)
	return nil
}

// DeleteMember implements store.MemberRepository.
func (s *Store) DeleteMember(ctx context.Context, householdID, memberID string) error {
	s.mu.Lock()
	h := s.household(householdID)
	if _, ok := h.members[memberID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("DeleteMember: %s: %w", memberID, store.ErrNotFound)
	}
	delete(h.members, memberID)
	s.mu.Unlock()

	s.publish(householdID, subMember, memberID)
	return nil
}

// GetMember implements store.MemberRepository.
func (s *Store) GetMember(ctx context.Context, householdID, memberID string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.memberCopy(householdID, memberID)
	if m == nil {
		return nil, fmt.Errorf("GetMember: %s: %w", memberID, store.ErrNotFound)
	}
	return m, nil
}

// memberCopy returns a copy of a member or nil. Caller holds s.mu.
func (s *Store) memberCopy(householdID, memberID string) *domain.Member {
	h, ok := s.households[householdID]
	if !ok {
		return nil
	}
	m, ok := h.members[memberID]
	if !ok {
		return nil
	}
	mCopy := *m
	return &mCopy
}

// ListMembers implements store.MemberRepository, oldest first.
func (s *Store) ListMembers(ctx context.Context, householdID string) ([]*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.households[householdID]
	if !ok {
		return []*domain.Member{}, nil
	}
	out := make([]*domain.Member, 0, len(h.members))
	for _, m := range h.members {
		mCopy := *m
		out = append(out, &mCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AdvanceWatermark implements store.MemberRepository as a compare-and-swap.
func (s *Store) AdvanceWatermark(ctx context.Context, householdID, memberID string, expected, next int64) error {
	s.mu.Lock()
	m, ok := s.household(householdID).members[memberID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("AdvanceWatermark: %s: %w", memberID, store.ErrNotFound)
	}
	if m.LastInterestDate != expected {
		s.mu.Unlock()
		return store.ErrWatermarkConflict
	}
	m.LastInterestDate = next
	s.mu.Unlock()

	s.publish(householdID, subMember, memberID)
	return nil
}

// GetRates implements store.RateRepository.
func (s *Store) GetRates(ctx context.Context, householdID string) (*domain.Rates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.ratesCopy(householdID)
	if r == nil {
		return nil, fmt.Errorf("GetRates: %s: %w", householdID, store.ErrNotFound)
	}
	return r, nil
}

// ratesCopy returns a copy of the rates document or nil. Caller holds s.mu.
func (s *Store) ratesCopy(householdID string) *domain.Rates {
	h, ok := s.households[householdID]
	if !ok || h.rates == nil {
		return nil
	}
	rCopy := *h.rates
	return &rCopy
}

// SaveRates implements store.RateRepository.
func (s *Store) SaveRates(ctx context.Context, householdID string, r *domain.Rates) error {
	s.mu.Lock()
	rCopy := *r
	s.household(householdID).rates = &rCopy
	s.mu.Unlock()

	s.publish(householdID, subRates, "")
	return nil
}

// Close implements store.Repository.
func (s *Store) Close() error {
	return nil
}

// SubscribeTransactions implements store.Subscriber.
func (s *Store) SubscribeTransactions(ctx context.Context, householdID string, fn func([]*domain.Transaction)) (func(), error) {
	return s.subscribe(&subscription{kind: subTransactions, householdID: householdID, onTxs: fn}), nil
}

// SubscribeMember implements store.Subscriber.
func (s *Store) SubscribeMember(ctx context.Context, householdID, memberID string, fn func(*domain.Member)) (func(), error) {
	return s.subscribe(&subscription{kind: subMember, householdID: householdID, memberID: memberID, onMember: fn}), nil
}

// SubscribeRates implements store.Subscriber.
func (s *Store) SubscribeRates(ctx context.Context, householdID string, fn func(*domain.Rates)) (func(), error) {
	return s.subscribe(&subscription{kind: subRates, householdID: householdID, onRates: fn}), nil
}

func (s *Store) subscribe(sub *subscription) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = sub
	deliver := s.snapshotFor(sub)
	s.mu.Unlock()

	deliver()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// publish delivers fresh snapshots to every subscriber interested in a
// change. Snapshots are taken under the lock and delivered after it is
// released.
func (s *Store) publish(householdID string, kind subKind, memberID string) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var deliveries []func()
	for _, id := range ids {
		sub := s.subs[id]
		if sub.householdID != householdID || sub.kind != kind {
			continue
		}
		if kind == subMember && sub.memberID != memberID {
			continue
		}
		deliveries = append(deliveries, s.snapshotFor(sub))
	}
	s.mu.RUnlock()

	for _, d := range deliveries {
		d()
	}
}

// snapshotFor captures the data a subscription needs. Caller holds s.mu.
func (s *Store) snapshotFor(sub *subscription) func() {
	switch sub.kind {
	case subTransactions:
		txs := s.snapshotTransactions(sub.householdID)
		return func() { sub.onTxs(txs) }
	case subMember:
		m := s.memberCopy(sub.householdID, sub.memberID)
		return func() { sub.onMember(m) }
	default:
		r := s.ratesCopy(sub.householdID)
		return func() { sub.onRates(r) }
	}
}

// Ensure Store implements the store contracts.
var _ store.Repository = (*Store)(nil)
var _ store.Subscriber = (*Store)(nil)

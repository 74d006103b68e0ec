// Package store defines the document-store contract the bank core depends
// on. Every collection is namespaced by a household ID supplied by the
// identity provider. Backends live in store/inmemory, infra/bigquery and
// infra/postgres.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrWatermarkConflict is returned by AdvanceWatermark when the stored
	// watermark no longer equals the value the caller observed.
	ErrWatermarkConflict = errors.New("store: watermark changed since it was read")
)

// TransactionRepository persists ledger entries.
type TransactionRepository interface {
	// InsertTransaction appends a transaction. The row must already be valid.
	InsertTransaction(ctx context.Context, householdID string, tx *domain.Transaction) error

	// UpdateTransaction changes amount and note of an existing entry.
	UpdateTransaction(ctx context.Context, householdID, txID string, amount decimal.Decimal, note string) error

	// DeleteTransaction removes a single entry.
	DeleteTransaction(ctx context.Context, householdID, txID string) error

	// DeleteMemberTransactions removes every entry of a member and returns the count.
	DeleteMemberTransactions(ctx context.Context, householdID, memberID string) (int, error)

	// ListTransactions returns the household's full transaction set. Callers
	// filter by member themselves.
	ListTransactions(ctx context.Context, householdID string) ([]*domain.Transaction, error)
}

// MemberRepository persists household members.
type MemberRepository interface {
	InsertMember(ctx context.Context, householdID string, m *domain.Member) error

	// UpdateMemberProfile changes name, avatar and PIN. The watermark is untouched.
	UpdateMemberProfile(ctx context.Context, householdID string, m *domain.Member) error

	DeleteMember(ctx context.Context, householdID, memberID string) error
	GetMember(ctx context.Context, householdID, memberID string) (*domain.Member, error)
	ListMembers(ctx context.Context, householdID string) ([]*domain.Member, error)

	// AdvanceWatermark sets last_interest_date to next only when the stored
	// value still equals expected. Returns ErrWatermarkConflict otherwise.
	AdvanceWatermark(ctx context.Context, householdID, memberID string, expected, next int64) error
}

// RateRepository persists the household rates document.
type RateRepository interface {
	// GetRates returns ErrNotFound when the household has no rates document.
	GetRates(ctx context.Context, householdID string) (*domain.Rates, error)
	SaveRates(ctx context.Context, householdID string, r *domain.Rates) error
}

// Repository bundles every collection of one backend.
type Repository interface {
	TransactionRepository
	MemberRepository
	RateRepository
	Close() error
}

// Subscriber delivers full snapshots whenever underlying data changes.
// Callbacks fire once immediately with the current state. The returned
// function cancels the subscription.
type Subscriber interface {
	SubscribeTransactions(ctx context.Context, householdID string, fn func([]*domain.Transaction)) (func(), error)

	// SubscribeMember delivers nil when the member does not exist.
	SubscribeMember(ctx context.Context, householdID, memberID string, fn func(*domain.Member)) (func(), error)

	// SubscribeRates delivers nil when the household has no rates document.
	SubscribeRates(ctx context.Context, householdID string, fn func(*domain.Rates)) (func(), error)
}

// ForMember filters a household transaction set down to one member.
func ForMember(txs []*domain.Transaction, memberID string) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.MemberID == memberID {
			out = append(out, tx)
		}
	}
	return out
}

// Package ledger records member transactions and derives balances from
// them. A balance is never stored: every read folds the full entry set.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds rejects a withdrawal larger than the current balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

const (
	defaultIncomeNote  = "Allowance"
	defaultExpenseNote = "Purchase"
)

// Entry is a user-initiated deposit or withdrawal.
type Entry struct {
	MemberID   string
	Type       domain.TransactionType
	Amount     decimal.Decimal
	Note       string
	RecordedBy string
}

// Service appends, edits and removes ledger entries for a household.
type Service struct {
	repo         store.TransactionRepository
	clock        clock.Clock
	writeTimeout time.Duration
}

// NewService creates a ledger service. A zero writeTimeout disables the
// client-side write timeout.
func NewService(repo store.TransactionRepository, clk clock.Clock, writeTimeout time.Duration) *Service {
	return &Service{repo: repo, clock: clk, writeTimeout: writeTimeout}
}

// Append validates and inserts a fully formed transaction. A missing ID is
// generated. Validation failures are returned as *domain.ValidationError,
// backend failures as *domain.WriteFailure.
func (s *Service) Append(ctx context.Context, householdID string, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	wctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.repo.InsertTransaction(wctx, householdID, tx); err != nil {
		return &domain.WriteFailure{Op: "append transaction", Err: err}
	}
	return nil
}

// Record creates a deposit or withdrawal stamped with the current time.
// Withdrawals may not exceed the member's current balance.
func (s *Service) Record(ctx context.Context, householdID string, e Entry) (*domain.Transaction, error) {
	if e.Type == domain.TypeInterest {
		return nil, domain.NewValidationError("type", "interest is credited by settlement only")
	}

	amount := e.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be greater than zero, got %s", e.Amount.String())
	}

	note := strings.TrimSpace(e.Note)
	if note == "" {
		if e.Type == domain.TypeExpense {
			note = defaultExpenseNote
		} else {
			note = defaultIncomeNote
		}
	}

	if e.Type == domain.TypeExpense {
		balance, err := s.Balance(ctx, householdID, e.MemberID)
		if err != nil {
			return nil, err
		}
		if amount.GreaterThan(balance) {
			return nil, fmt.Errorf("Record: withdrawing %s from balance %s: %w", amount.StringFixed(2), balance.StringFixed(2), ErrInsufficientFunds)
		}
	}

	tx := &domain.Transaction{
		MemberID:   e.MemberID,
		Type:       e.Type,
		Amount:     amount,
		Note:       note,
		Timestamp:  clock.NowMillis(s.clock),
		RecordedBy: e.RecordedBy,
	}
	if err := s.Append(ctx, householdID, tx); err != nil {
		return nil, err
	}

	log := logger.ForMember(logger.FromContext(ctx), householdID, e.MemberID)
	log.Info().
		Str("transaction_id", tx.ID).
		Str("type", string(tx.Type)).
		Str("amount", tx.Amount.StringFixed(2)).
		Msg("Transaction recorded")

	return tx, nil
}

// Edit changes the amount and note of an entry. Type and timestamp are
// immutable.
func (s *Service) Edit(ctx context.Context, householdID, txID string, amount decimal.Decimal, note string) error {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return domain.NewValidationError("amount", "must be greater than zero, got %s", amount.String())
	}

	wctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.repo.UpdateTransaction(wctx, householdID, txID, amount, strings.TrimSpace(note)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return &domain.WriteFailure{Op: "edit transaction", Err: err}
	}
	return nil
}

// Remove deletes a single entry.
func (s *Service) Remove(ctx context.Context, householdID, txID string) error {
	wctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.repo.DeleteTransaction(wctx, householdID, txID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return &domain.WriteFailure{Op: "remove transaction", Err: err}
	}
	return nil
}

// Transactions returns a member's entries, newest first.
func (s *Service) Transactions(ctx context.Context, householdID, memberID string) ([]*domain.Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("Transactions: %w", err)
	}
	return store.ForMember(txs, memberID), nil
}

// Balance folds the member's full entry set.
func (s *Service) Balance(ctx context.Context, householdID, memberID string) (decimal.Decimal, error) {
	txs, err := s.repo.ListTransactions(ctx, householdID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", err)
	}
	return Fold(txs, memberID), nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}

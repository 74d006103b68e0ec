package domain

import (
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry. The sign applied to Amount is
// derived from the type; amounts are always stored positive.
type TransactionType string

const (
	// TypeIncome is a deposit recorded by a parent or member.
	TypeIncome TransactionType = "income"
	// TypeExpense is a withdrawal.
	TypeExpense TransactionType = "expense"
	// TypeInterest is a credit emitted by settlement.
	TypeInterest TransactionType = "interest"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeInterest:
		return true
	}
	return false
}

// Credit reports whether entries of this type increase the balance.
func (t TransactionType) Credit() bool {
	return t == TypeIncome || t == TypeInterest
}

// RecordedBySystem is the actor stamped on entries written by settlement.
const RecordedBySystem = "system"

// Transaction is one immutable ledger entry for a member. Only Amount and
// Note can change after creation, through an explicit edit.
type Transaction struct {
	ID         string          `json:"id"`
	MemberID   string          `json:"member_id"`
	Type       TransactionType `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
	Timestamp  int64           `json:"timestamp"` // ms since epoch, client clock
	RecordedBy string          `json:"recorded_by"`
}

// Signed returns the amount with the sign implied by the type.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type.Credit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Validate checks the rules every stored transaction must satisfy.
func (t *Transaction) Validate() error {
	if t.MemberID == "" {
		return NewValidationError("member_id", "is required")
	}
	if !t.Type.Valid() {
		return NewValidationError("type", "unknown transaction type %q", t.Type)
	}
	if !t.Amount.IsPositive() {
		return NewValidationError("amount", "must be greater than zero, got %s", t.Amount.String())
	}
	return nil
}

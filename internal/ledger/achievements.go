package ledger

import (
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/shopspring/decimal"
)

// Achievement is a badge unlocked by a member's savings history.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`

	condition func(balance decimal.Decimal, txs []*domain.Transaction, memberID string) bool
}

func balanceAtLeast(v int64) func(decimal.Decimal, []*domain.Transaction, string) bool {
	return func(balance decimal.Decimal, _ []*domain.Transaction, _ string) bool {
		return balance.GreaterThanOrEqual(decimal.NewFromInt(v))
	}
}

func countAtLeast(typ domain.TransactionType, n int) func(decimal.Decimal, []*domain.Transaction, string) bool {
	return func(_ decimal.Decimal, txs []*domain.Transaction, memberID string) bool {
		return CountByType(txs, memberID, typ) >= n
	}
}

var catalog = []Achievement{
	{ID: "first_save", Name: "First Coin", Description: "Make your first deposit", condition: countAtLeast(domain.TypeIncome, 1)},
	{ID: "saver_100", Name: "Hundred Club", Description: "Reach a balance of 100", condition: balanceAtLeast(100)},
	{ID: "saver_1000", Name: "Thousandaire", Description: "Reach a balance of 1,000", condition: balanceAtLeast(1000)},
	{ID: "saver_5000", Name: "Money Manager", Description: "Reach a balance of 5,000", condition: balanceAtLeast(5000)},
	{ID: "saver_10000", Name: "Tycoon", Description: "Reach a balance of 10,000", condition: balanceAtLeast(10000)},
	{ID: "interest_1", Name: "First Taste", Description: "Earn compound interest once", condition: countAtLeast(domain.TypeInterest, 1)},
	{ID: "interest_10", Name: "Interest Farmer", Description: "Earn compound interest 10 times", condition: countAtLeast(domain.TypeInterest, 10)},
	{ID: "interest_30", Name: "Friend of Time", Description: "Earn compound interest 30 times", condition: countAtLeast(domain.TypeInterest, 30)},
}

// Achievements evaluates the full catalog for a member.
func Achievements(txs []*domain.Transaction, memberID string) []Achievement {
	balance := Fold(txs, memberID)
	out := make([]Achievement, len(catalog))
	for i, a := range catalog {
		a.Unlocked = a.condition(balance, txs, memberID)
		a.condition = nil
		out[i] = a
	}
	return out
}

package ledger

import (
	"sort"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/shopspring/decimal"
)

// Fold derives a member's balance from the full transaction set:
// income + interest - expense. The result does not depend on order.
func Fold(txs []*domain.Transaction, memberID string) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range txs {
		if tx.MemberID != memberID {
			continue
		}
		balance = balance.Add(tx.Signed())
	}
	return balance
}

// Point is one sample of the running balance.
type Point struct {
	Timestamp int64           `json:"timestamp"`
	Balance   decimal.Decimal `json:"balance"`
}

// Curve replays a member's transactions chronologically and returns the
// running balance after each one, floored at zero, keeping the last limit
// points (all points when limit <= 0). Client clocks may be skewed, so the
// curve is cosmetic; Fold is authoritative.
func Curve(txs []*domain.Transaction, memberID string, limit int) []Point {
	mine := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.MemberID == memberID {
			mine = append(mine, tx)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].Timestamp < mine[j].Timestamp
	})

	points := make([]Point, 0, len(mine))
	running := decimal.Zero
	for _, tx := range mine {
		running = running.Add(tx.Signed())
		shown := running
		if shown.IsNegative() {
			shown = decimal.Zero
		}
		points = append(points, Point{Timestamp: tx.Timestamp, Balance: shown})
	}

	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points
}

// CountByType returns how many of a member's entries have type typ.
func CountByType(txs []*domain.Transaction, memberID string, typ domain.TransactionType) int {
	n := 0
	for _, tx := range txs {
		if tx.MemberID == memberID && tx.Type == typ {
			n++
		}
	}
	return n
}

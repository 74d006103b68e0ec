package rates

import (
	"github.com/dvloznov/family-bank/internal/money"
	"github.com/shopspring/decimal"
)

var twelve = decimal.NewFromInt(12)

// FutureValue projects principal plus a fixed monthly contribution under
// monthly compounding at the given annual rate for years years. The result
// is not rounded.
func FutureValue(principal, monthly, annualRate decimal.Decimal, years int) decimal.Decimal {
	periods := int64(12 * years)
	if periods <= 0 {
		return principal
	}
	ratePerPeriod := annualRate.Div(twelve)
	if ratePerPeriod.IsZero() {
		return principal.Add(monthly.Mul(decimal.NewFromInt(periods)))
	}

	factor := money.Pow(decimal.NewFromInt(1).Add(ratePerPeriod), periods)
	futurePrincipal := principal.Mul(factor)
	futureContributions := monthly.Mul(factor.Sub(decimal.NewFromInt(1)).Div(ratePerPeriod))
	return futurePrincipal.Add(futureContributions)
}

// TotalInvested is principal plus every monthly contribution over years.
func TotalInvested(principal, monthly decimal.Decimal, years int) decimal.Decimal {
	return principal.Add(monthly.Mul(decimal.NewFromInt(int64(12 * years))))
}

// MonthlyProjection estimates next month's interest: floor(balance × rate / 12).
func MonthlyProjection(balance, annualRate decimal.Decimal) decimal.Decimal {
	return balance.Mul(annualRate).Div(twelve).Floor()
}

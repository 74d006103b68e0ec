package settlement

import (
	"github.com/dvloznov/family-bank/internal/money"
	"github.com/shopspring/decimal"
)

// MillisPerDay is the length of one settlement day.
const MillisPerDay = 86_400_000

const ratePlaces = 24

var (
	one         = decimal.NewFromInt(1)
	daysPerYear = decimal.NewFromInt(365)
)

// ElapsedDays returns the whole days between the watermark and now. A
// watermark in the future yields zero.
func ElapsedDays(watermark, now int64) int64 {
	if now <= watermark {
		return 0
	}
	return (now - watermark) / MillisPerDay
}

// CompoundFactor returns (1 + annualRate/365)^days.
func CompoundFactor(annualRate decimal.Decimal, days int64) decimal.Decimal {
	daily := annualRate.DivRound(daysPerYear, ratePlaces)
	return money.Pow(one.Add(daily), days)
}

// Earned returns balance × ((1 + annualRate/365)^days − 1) rounded to
// cents, half up. The result is negative for a negative rate.
func Earned(balance, annualRate decimal.Decimal, days int64) decimal.Decimal {
	raw := balance.Mul(CompoundFactor(annualRate, days).Sub(one))
	return money.Cents(raw)
}

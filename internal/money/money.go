// Package money holds the decimal helpers shared by interest settlement and
// the rate calculators.
package money

import (
	"github.com/shopspring/decimal"
)

// workingPlaces bounds the scale of intermediate results in Pow. Without it
// the exact product of a rate like 1.000136986... grows by ~20 digits per
// squaring.
const workingPlaces = 24

// Pow returns base^n for n >= 0 by exponentiation by squaring, rounding each
// intermediate product to a fixed number of places. n < 0 returns one.
func Pow(base decimal.Decimal, n int64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	if n <= 0 {
		return result
	}
	b := base.Round(workingPlaces)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(b).Round(workingPlaces)
		}
		n >>= 1
		if n > 0 {
			b = b.Mul(b).Round(workingPlaces)
		}
	}
	return result
}

// Cents rounds to two decimal places, half away from zero.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent formats a rate such as 0.05 as "5.0%".
func Percent(rate decimal.Decimal) string {
	return rate.Shift(2).StringFixed(1) + "%"
}

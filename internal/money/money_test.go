package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPow(t *testing.T) {
	tests := []struct {
		name string
		base string
		n    int64
		want string
	}{
		{"zero exponent", "1.5", 0, "1"},
		{"negative exponent", "1.5", -2, "1"},
		{"one", "1.5", 1, "1.5"},
		{"square", "1.1", 2, "1.21"},
		{"odd", "2", 11, "2048"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pow(decimal.RequireFromString(tt.base), tt.n)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Pow(%s, %d) = %s, want %s", tt.base, tt.n, got, tt.want)
			}
		})
	}
}

func TestPow_LargeExponentStaysBounded(t *testing.T) {
	daily := decimal.NewFromInt(1).Add(decimal.RequireFromString("0.05").Div(decimal.NewFromInt(365)))
	got := Pow(daily, 3650)

	// (1 + 0.05/365)^3650 ≈ 1.64866
	lo := decimal.RequireFromString("1.6486")
	hi := decimal.RequireFromString("1.6488")
	if got.LessThan(lo) || got.GreaterThan(hi) {
		t.Errorf("Pow(daily, 3650) = %s, want about 1.64866", got)
	}
	if -got.Exponent() > workingPlaces {
		t.Errorf("Pow result has %d places, want at most %d", -got.Exponent(), workingPlaces)
	}
}

func TestCents(t *testing.T) {
	for in, want := range map[string]string{
		"0.005":  "0.01",
		"0.004":  "0",
		"4.1234": "4.12",
		"2.675":  "2.68",
	} {
		if got := Cents(decimal.RequireFromString(in)); !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("Cents(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(decimal.RequireFromString("0.05")); got != "5.0%" {
		t.Errorf("Percent(0.05) = %q", got)
	}
	if got := Percent(decimal.RequireFromString("0.0275")); got != "2.8%" {
		t.Errorf("Percent(0.0275) = %q", got)
	}
}

package domain

import (
	"github.com/shopspring/decimal"
)

// PlaceholderNews is the news line of a rates document that has never
// been refreshed by the market drift job.
const PlaceholderNews = "Watching the market..."

// Rates is the household-wide interest configuration.
type Rates struct {
	// BaseRate tracks inflation. Clamped only by the drift job.
	BaseRate decimal.Decimal `json:"base_rate"`
	// BonusRate is set by parents and may be negative.
	BonusRate decimal.Decimal `json:"bonus_rate"`

	IsAutoMode       bool   `json:"is_auto_mode"`
	NewsText         string `json:"news_text"`
	LastMarketUpdate int64  `json:"last_market_update"` // ms since epoch
}

// Effective returns the annual rate used by settlement: base + bonus.
func (r Rates) Effective() decimal.Decimal {
	return r.BaseRate.Add(r.BonusRate)
}

// DefaultRates returns the document written when a household has none.
func DefaultRates() Rates {
	return Rates{
		BaseRate:   decimal.RequireFromString("0.025"),
		BonusRate:  decimal.Zero,
		IsAutoMode: true,
		NewsText:   PlaceholderNews,
	}
}

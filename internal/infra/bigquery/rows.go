package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the fixed scale of the BigQuery NUMERIC type.
const numericScale = 9

// MemberRow is one row of the members table. Instants are ms since epoch.
type MemberRow struct {
	HouseholdID string `bigquery:"household_id"` // REQUIRED
	MemberID    string `bigquery:"member_id"`    // REQUIRED

	Name   string `bigquery:"name"`   // REQUIRED
	Avatar string `bigquery:"avatar"` // REQUIRED
	PIN    string `bigquery:"pin"`    // REQUIRED

	CreatedAt        int64 `bigquery:"created_at"`         // REQUIRED INT64
	LastInterestDate int64 `bigquery:"last_interest_date"` // REQUIRED INT64, settlement watermark
}

func (r *MemberRow) toDomain() *domain.Member {
	return &domain.Member{
		ID:               r.MemberID,
		Name:             r.Name,
		Avatar:           r.Avatar,
		PIN:              r.PIN,
		CreatedAt:        r.CreatedAt,
		LastInterestDate: r.LastInterestDate,
	}
}

// TransactionRow is one row of the transactions table.
type TransactionRow struct {
	HouseholdID   string `bigquery:"household_id"`   // REQUIRED
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	MemberID      string `bigquery:"member_id"`      // REQUIRED

	Type   string   `bigquery:"type"`   // REQUIRED: income, expense or interest
	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC, always positive

	Note       string              `bigquery:"note"`        // REQUIRED STRING
	RecordedBy bigquery.NullString `bigquery:"recorded_by"` // NULLABLE

	TS int64 `bigquery:"ts"` // REQUIRED INT64, client clock
}

func (r *TransactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:         r.TransactionID,
		MemberID:   r.MemberID,
		Type:       domain.TransactionType(r.Type),
		Amount:     ratToDecimal(r.Amount),
		Note:       r.Note,
		Timestamp:  r.TS,
		RecordedBy: r.RecordedBy.StringVal,
	}
}

// RatesRow is the single rates row of a household.
type RatesRow struct {
	HouseholdID string `bigquery:"household_id"` // REQUIRED

	BaseRate  *big.Rat `bigquery:"base_rate"`  // REQUIRED NUMERIC
	BonusRate *big.Rat `bigquery:"bonus_rate"` // REQUIRED NUMERIC

	IsAutoMode       bool   `bigquery:"is_auto_mode"`       // REQUIRED
	NewsText         string `bigquery:"news_text"`          // REQUIRED
	LastMarketUpdate int64  `bigquery:"last_market_update"` // REQUIRED INT64

	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

func (r *RatesRow) toDomain() *domain.Rates {
	return &domain.Rates{
		BaseRate:         ratToDecimal(r.BaseRate),
		BonusRate:        ratToDecimal(r.BonusRate),
		IsAutoMode:       r.IsAutoMode,
		NewsText:         r.NewsText,
		LastMarketUpdate: r.LastMarketUpdate,
	}
}

// ratToDecimal converts a NUMERIC value. NULL reads as zero.
func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	num := decimal.NewFromBigInt(r.Num(), 0)
	return num.DivRound(decimal.NewFromBigInt(r.Denom(), 0), numericScale)
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store"
)

// GetRates implements store.RateRepository.
func (r *Repository) GetRates(ctx context.Context, householdID string) (*domain.Rates, error) {
	rows, err := query[RatesRow](ctx, r.client, "GetRates", fmt.Sprintf(`
		SELECT household_id, base_rate, bonus_rate, is_auto_mode, news_text, last_market_update, updated_ts
		FROM %s
		WHERE household_id = @household_id
		LIMIT 1
	`, r.table(ratesTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("GetRates: %s: %w", householdID, store.ErrNotFound)
	}
	return rows[0].toDomain(), nil
}

// SaveRates implements store.RateRepository as a MERGE on household_id.
func (r *Repository) SaveRates(ctx context.Context, householdID string, rates *domain.Rates) error {
	_, err := r.exec(ctx, "SaveRates", fmt.Sprintf(`
		MERGE %s t
		USING (SELECT @household_id AS household_id) s
		ON t.household_id = s.household_id
		WHEN MATCHED THEN
			UPDATE SET base_rate = @base_rate,
			           bonus_rate = @bonus_rate,
			           is_auto_mode = @is_auto_mode,
			           news_text = @news_text,
			           last_market_update = @last_market_update,
			           updated_ts = @updated_ts
		WHEN NOT MATCHED THEN
			INSERT (household_id, base_rate, bonus_rate, is_auto_mode, news_text, last_market_update, updated_ts)
			VALUES (@household_id, @base_rate, @bonus_rate, @is_auto_mode, @news_text, @last_market_update, @updated_ts)
	`, r.table(ratesTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "base_rate", Value: rates.BaseRate.Rat()},
		bigquery.QueryParameter{Name: "bonus_rate", Value: rates.BonusRate.Rat()},
		bigquery.QueryParameter{Name: "is_auto_mode", Value: rates.IsAutoMode},
		bigquery.QueryParameter{Name: "news_text", Value: rates.NewsText},
		bigquery.QueryParameter{Name: "last_market_update", Value: rates.LastMarketUpdate},
		bigquery.QueryParameter{Name: "updated_ts", Value: time.Now()},
	)
	return err
}

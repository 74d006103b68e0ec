// Package postgres stores households in PostgreSQL through a pgx pool.
// Money is stored as integer cents and rates as NUMERIC text.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var _ store.Repository = (*Repository)(nil)

// Repository implements store.Repository on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects to databaseURL and verifies the connection.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("NewRepository: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// NewRepositoryWithPool wraps an existing pool. Close closes it.
func NewRepositoryWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying pool, for migrations.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// Close closes the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// InsertTransaction implements store.TransactionRepository.
func (r *Repository) InsertTransaction(ctx context.Context, householdID string, tx *domain.Transaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (household_id, transaction_id, member_id, type, amount_cents, note, recorded_by, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		householdID, tx.ID, tx.MemberID, string(tx.Type), toCents(tx.Amount), tx.Note, tx.RecordedBy, tx.Timestamp)
	if err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

// UpdateTransaction implements store.TransactionRepository.
func (r *Repository) UpdateTransaction(ctx context.Context, householdID, txID string, amount decimal.Decimal, note string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions SET amount_cents = $3, note = $4
		WHERE household_id = $1 AND transaction_id = $2`,
		householdID, txID, toCents(amount), note)
	if err != nil {
		return fmt.Errorf("UpdateTransaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("UpdateTransaction: %s: %w", txID, store.ErrNotFound)
	}
	return nil
}

// DeleteTransaction implements store.TransactionRepository.
func (r *Repository) DeleteTransaction(ctx context.Context, householdID, txID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM transactions WHERE household_id = $1 AND transaction_id = $2`,
		householdID, txID)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeleteTransaction: %s: %w", txID, store.ErrNotFound)
	}
	return nil
}

// DeleteMemberTransactions implements store.TransactionRepository.
func (r *Repository) DeleteMemberTransactions(ctx context.Context, householdID, memberID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM transactions WHERE household_id = $1 AND member_id = $2`,
		householdID, memberID)
	if err != nil {
		return 0, fmt.Errorf("DeleteMemberTransactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListTransactions implements store.TransactionRepository, newest first.
func (r *Repository) ListTransactions(ctx context.Context, householdID string) ([]*domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT transaction_id, member_id, type, amount_cents, note, recorded_by, ts
		FROM transactions
		WHERE household_id = $1
		ORDER BY ts DESC, transaction_id`,
		householdID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	out := []*domain.Transaction{}
	for rows.Next() {
		var (
			tx    domain.Transaction
			typ   string
			cents int64
		)
		if err := rows.Scan(&tx.ID, &tx.MemberID, &typ, &cents, &tx.Note, &tx.RecordedBy, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("ListTransactions: scan: %w", err)
		}
		tx.Type = domain.TransactionType(typ)
		tx.Amount = fromCents(cents)
		out = append(out, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return out, nil
}

// InsertMember implements store.MemberRepository.
func (r *Repository) InsertMember(ctx context.Context, householdID string, m *domain.Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO members (household_id, member_id, name, avatar, pin, created_at, last_interest_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		householdID, m.ID, m.Name, m.Avatar, m.PIN, m.CreatedAt, m.LastInterestDate)
	if err != nil {
		return fmt.Errorf("InsertMember: %w", err)
	}
	return nil
}

// UpdateMemberProfile implements store.MemberRepository.
func (r *Repository) UpdateMemberProfile(ctx context.Context, householdID string, m *domain.Member) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE members SET name = $3, avatar = $4, pin = $5
		WHERE household_id = $1 AND member_id = $2`,
		householdID, m.ID, m.Name, m.Avatar, m.PIN)
	if err != nil {
		return fmt.Errorf("UpdateMemberProfile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("UpdateMemberProfile: %s: %w", m.ID, store.ErrNotFound)
	}
	return nil
}

// DeleteMember implements store.MemberRepository.
func (r *Repository) DeleteMember(ctx context.Context, householdID, memberID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM members WHERE household_id = $1 AND member_id = $2`,
		householdID, memberID)
	if err != nil {
		return fmt.Errorf("DeleteMember: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeleteMember: %s: %w", memberID, store.ErrNotFound)
	}
	return nil
}

const memberColumns = `member_id, name, avatar, pin, created_at, last_interest_date`

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	err := row.Scan(&m.ID, &m.Name, &m.Avatar, &m.PIN, &m.CreatedAt, &m.LastInterestDate)
	return &m, err
}

// GetMember implements store.MemberRepository.
func (r *Repository) GetMember(ctx context.Context, householdID, memberID string) (*domain.Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM members WHERE household_id = $1 AND member_id = $2`,
		householdID, memberID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("GetMember: %s: %w", memberID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetMember: %w", err)
	}
	return m, nil
}

// ListMembers implements store.MemberRepository, oldest first.
func (r *Repository) ListMembers(ctx context.Context, householdID string) ([]*domain.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+memberColumns+`
		FROM members WHERE household_id = $1
		ORDER BY created_at, member_id`,
		householdID)
	if err != nil {
		return nil, fmt.Errorf("ListMembers: %w", err)
	}
	defer rows.Close()

	out := []*domain.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("ListMembers: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListMembers: %w", err)
	}
	return out, nil
}

// AdvanceWatermark implements store.MemberRepository as a conditional
// UPDATE on the observed watermark.
func (r *Repository) AdvanceWatermark(ctx context.Context, householdID, memberID string, expected, next int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE members SET last_interest_date = $4
		WHERE household_id = $1 AND member_id = $2 AND last_interest_date = $3`,
		householdID, memberID, expected, next)
	if err != nil {
		return fmt.Errorf("AdvanceWatermark: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM members WHERE household_id = $1 AND member_id = $2)`,
		householdID, memberID).Scan(&exists); err != nil {
		return fmt.Errorf("AdvanceWatermark: checking member: %w", err)
	}
	if !exists {
		return fmt.Errorf("AdvanceWatermark: %s: %w", memberID, store.ErrNotFound)
	}
	return store.ErrWatermarkConflict
}

// GetRates implements store.RateRepository.
func (r *Repository) GetRates(ctx context.Context, householdID string) (*domain.Rates, error) {
	var (
		rates       domain.Rates
		base, bonus string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT base_rate::text, bonus_rate::text, is_auto_mode, news_text, last_market_update
		FROM rates WHERE household_id = $1`,
		householdID).Scan(&base, &bonus, &rates.IsAutoMode, &rates.NewsText, &rates.LastMarketUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("GetRates: %s: %w", householdID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetRates: %w", err)
	}

	if rates.BaseRate, err = decimal.NewFromString(base); err != nil {
		return nil, fmt.Errorf("GetRates: base_rate %q: %w", base, err)
	}
	if rates.BonusRate, err = decimal.NewFromString(bonus); err != nil {
		return nil, fmt.Errorf("GetRates: bonus_rate %q: %w", bonus, err)
	}
	return &rates, nil
}

// SaveRates implements store.RateRepository as an upsert.
func (r *Repository) SaveRates(ctx context.Context, householdID string, rates *domain.Rates) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rates (household_id, base_rate, bonus_rate, is_auto_mode, news_text, last_market_update, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6, now())
		ON CONFLICT (household_id) DO UPDATE SET
			base_rate = EXCLUDED.base_rate,
			bonus_rate = EXCLUDED.bonus_rate,
			is_auto_mode = EXCLUDED.is_auto_mode,
			news_text = EXCLUDED.news_text,
			last_market_update = EXCLUDED.last_market_update,
			updated_at = EXCLUDED.updated_at`,
		householdID, rates.BaseRate.String(), rates.BonusRate.String(), rates.IsAutoMode, rates.NewsText, rates.LastMarketUpdate)
	if err != nil {
		return fmt.Errorf("SaveRates: %w", err)
	}
	return nil
}

// toCents converts a cent-rounded amount to integer cents.
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

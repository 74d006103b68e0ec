package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/shopspring/decimal"
)

const transactionColumns = `household_id, transaction_id, member_id, type, amount, note, recorded_by, ts`

// InsertTransaction implements store.TransactionRepository. Rows go in
// through DML rather than the streaming inserter: streamed rows cannot be
// edited or deleted while they sit in the streaming buffer.
func (r *Repository) InsertTransaction(ctx context.Context, householdID string, tx *domain.Transaction) error {
	_, err := r.exec(ctx, "InsertTransaction", fmt.Sprintf(`
		INSERT %s (%s)
		VALUES (
			@household_id,
			@transaction_id,
			@member_id,
			@type,
			@amount,
			@note,
			@recorded_by,
			@ts
		)
	`, r.table(transactionsTable), transactionColumns),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "transaction_id", Value: tx.ID},
		bigquery.QueryParameter{Name: "member_id", Value: tx.MemberID},
		bigquery.QueryParameter{Name: "type", Value: string(tx.Type)},
		bigquery.QueryParameter{Name: "amount", Value: tx.Amount.Rat()},
		bigquery.QueryParameter{Name: "note", Value: tx.Note},
		bigquery.QueryParameter{Name: "recorded_by", Value: nullString(tx.RecordedBy)},
		bigquery.QueryParameter{Name: "ts", Value: tx.Timestamp},
	)
	return err
}

// UpdateTransaction implements store.TransactionRepository.
func (r *Repository) UpdateTransaction(ctx context.Context, householdID, txID string, amount decimal.Decimal, note string) error {
	n, err := r.exec(ctx, "UpdateTransaction", fmt.Sprintf(`
		UPDATE %s
		SET amount = @amount,
		    note = @note
		WHERE household_id = @household_id
		  AND transaction_id = @transaction_id
	`, r.table(transactionsTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "transaction_id", Value: txID},
		bigquery.QueryParameter{Name: "amount", Value: amount.Rat()},
		bigquery.QueryParameter{Name: "note", Value: note},
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("UpdateTransaction: %s: %w", txID, store.ErrNotFound)
	}
	return nil
}

// DeleteTransaction implements store.TransactionRepository.
func (r *Repository) DeleteTransaction(ctx context.Context, householdID, txID string) error {
	n, err := r.exec(ctx, "DeleteTransaction", fmt.Sprintf(`
		DELETE FROM %s
		WHERE household_id = @household_id
		  AND transaction_id = @transaction_id
	`, r.table(transactionsTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "transaction_id", Value: txID},
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("DeleteTransaction: %s: %w", txID, store.ErrNotFound)
	}
	return nil
}

// DeleteMemberTransactions implements store.TransactionRepository.
func (r *Repository) DeleteMemberTransactions(ctx context.Context, householdID, memberID string) (int, error) {
	n, err := r.exec(ctx, "DeleteMemberTransactions", fmt.Sprintf(`
		DELETE FROM %s
		WHERE household_id = @household_id
		  AND member_id = @member_id
	`, r.table(transactionsTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
		bigquery.QueryParameter{Name: "member_id", Value: memberID},
	)
	return int(n), err
}

// ListTransactions implements store.TransactionRepository, newest first.
func (r *Repository) ListTransactions(ctx context.Context, householdID string) ([]*domain.Transaction, error) {
	rows, err := query[TransactionRow](ctx, r.client, "ListTransactions", fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE household_id = @household_id
		ORDER BY ts DESC, transaction_id
	`, transactionColumns, r.table(transactionsTable)),
		bigquery.QueryParameter{Name: "household_id", Value: householdID},
	)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

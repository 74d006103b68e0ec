// Package bigquery stores households in BigQuery. Every table carries a
// household_id column; all writes are DML statements so rows can be
// updated and deleted right after they are written.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/family-bank/internal/store"
	"google.golang.org/api/iterator"
)

const (
	membersTable      = "members"
	transactionsTable = "transactions"
	ratesTable        = "rates"
)

var _ store.Repository = (*Repository)(nil)

// Repository implements store.Repository on one BigQuery dataset. It
// holds a shared client to avoid creating a new connection for each
// operation.
type Repository struct {
	client  *bigquery.Client
	dataset string
}

// NewRepository creates a client for projectID and a repository on dataset.
func NewRepository(ctx context.Context, projectID, dataset string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, dataset), nil
}

// NewRepositoryWithClient wraps an existing client. Close closes it.
func NewRepositoryWithClient(client *bigquery.Client, dataset string) *Repository {
	return &Repository{client: client, dataset: dataset}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// table returns the fully qualified, quoted table name.
func (r *Repository) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.client.Project(), r.dataset, name)
}

// exec runs a DML statement and returns the number of affected rows.
func (r *Repository) exec(ctx context.Context, op, sql string, params ...bigquery.QueryParameter) (int64, error) {
	q := r.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: running query: %w", op, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("%s: job error: %w", op, err)
	}

	if status.Statistics == nil {
		return 0, nil
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// query reads every row of a SELECT into T.
func query[T any](ctx context.Context, client *bigquery.Client, op, sql string, params ...bigquery.QueryParameter) ([]*T, error) {
	q := client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var rows []*T
	for {
		var row T
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", op, err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

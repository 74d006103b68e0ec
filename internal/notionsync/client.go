package notionsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
)

// NotionService is the slice of the Notion API the ledger mirror needs.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	// ArchivePage moves a page to the Notion trash.
	ArchivePage(ctx context.Context, pageID string) error
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

var _ NotionService = (*NotionClient)(nil)

const (
	defaultAttempts = 3
	retryBaseDelay  = 500 * time.Millisecond
)

// NotionClient talks to Notion with the SDK and retries server-side
// failures. Rate limiting is retried by the SDK itself.
type NotionClient struct {
	client   *notionapi.Client
	attempts int
	sleep    func(context.Context, time.Duration) error
}

// NewNotionClient creates a NotionClient for an integration token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client:   notionapi.NewClient(notionapi.Token(token), notionapi.WithRetry(defaultAttempts)),
		attempts: defaultAttempts,
		sleep:    sleepCtx,
	}
}

func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	var page *notionapi.Page
	err := n.retry(ctx, "CreatePage", func() (err error) {
		page, err = n.client.Page.Create(ctx, req)
		return err
	})
	return page, err
}

func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageUpdateRequest{Properties: properties}

	var page *notionapi.Page
	err := n.retry(ctx, "UpdatePage", func() (err error) {
		page, err = n.client.Page.Update(ctx, notionapi.PageID(pageID), req)
		return err
	})
	return page, err
}

func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	req := &notionapi.PageUpdateRequest{Archived: true}
	return n.retry(ctx, "ArchivePage", func() error {
		_, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), req)
		return err
	})
}

func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	var resp *notionapi.DatabaseQueryResponse
	err := n.retry(ctx, "QueryDatabase", func() (err error) {
		resp, err = n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
		return err
	})
	return resp, err
}

// retry runs call until it succeeds, fails permanently, or runs out of
// attempts. The delay doubles after each transient failure.
func (n *NotionClient) retry(ctx context.Context, op string, call func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if !isTransient(err) || attempt == n.attempts {
			break
		}
		if sleepErr := n.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: %w", op, sleepErr)
		}
		delay *= 2
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isTransient reports whether a Notion error is worth retrying. API
// errors below 500 are permanent; anything that is not an API error
// (connection reset, timeout) is treated as transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

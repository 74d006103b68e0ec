// Package notionsync mirrors a household ledger into a Notion database.
// The ledger is the source of truth: pages are created or updated to match
// it, and pages whose transaction no longer exists are archived.
package notionsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100
)

// Options narrows a sync run.
type Options struct {
	// From and To bound the entries that are created or updated. Zero
	// values leave the range open. Archiving always considers the full ledger.
	From, To time.Time
	DryRun   bool
}

func (o Options) includes(ts int64) bool {
	t := time.UnixMilli(ts)
	if !o.From.IsZero() && t.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && !t.Before(o.To) {
		return false
	}
	return true
}

// Report counts what a sync run did (or would do, on a dry run).
type Report struct {
	Created  int
	Updated  int
	Archived int
	Skipped  int
	Failed   int
}

// Syncer pushes a household ledger to Notion.
type Syncer struct {
	repo       store.Repository
	notion     NotionService
	databaseID string
}

// NewSyncer creates a Syncer writing to the given Notion database.
func NewSyncer(repo store.Repository, notion NotionService, databaseID string) *Syncer {
	return &Syncer{repo: repo, notion: notion, databaseID: databaseID}
}

// Entries builds the mirror rows of a household, oldest first, each with
// the member's running balance after it.
func Entries(householdID string, members []*domain.Member, txs []*domain.Transaction) []Entry {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}

	sorted := make([]*domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].ID < sorted[j].ID
	})

	running := make(map[string]decimal.Decimal, len(members))
	entries := make([]Entry, 0, len(sorted))
	for _, tx := range sorted {
		balance := running[tx.MemberID].Add(tx.Signed())
		running[tx.MemberID] = balance
		entries = append(entries, Entry{
			HouseholdID:  householdID,
			MemberName:   names[tx.MemberID],
			Transaction:  tx,
			BalanceAfter: balance,
		})
	}
	return entries
}

// Sync mirrors householdID's ledger. Individual page failures are logged
// and counted; only failures to read either side abort the run.
func (s *Syncer) Sync(ctx context.Context, householdID string, opts Options) (*Report, error) {
	log := logger.FromContext(ctx).With().Str("household_id", householdID).Logger()

	log.Info().
		Time("from", opts.From).
		Time("to", opts.To).
		Bool("dry_run", opts.DryRun).
		Msg("Starting ledger sync to Notion")

	members, err := s.repo.ListMembers(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	txs, err := s.repo.ListTransactions(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	entries := Entries(householdID, members, txs)

	log.Info().Int("transaction_count", len(entries)).Msg("Retrieved ledger")

	pages, err := queryAllNotionPages(ctx, s.notion, s.databaseID, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	valid := make(map[string]bool, len(entries))
	for _, e := range entries {
		valid[e.Transaction.ID] = true
	}

	report := &Report{}
	existing := make(map[string]notionapi.Page, len(pages))

	// Archive pages without a transaction ID, duplicates, and pages whose
	// transaction was deleted.
	for _, page := range pages {
		st := readPage(page)
		_, dup := existing[st.TransactionID]
		if st.TransactionID != "" && valid[st.TransactionID] && !dup {
			existing[st.TransactionID] = page
			continue
		}

		if opts.DryRun {
			log.Info().
				Str("transaction_id", st.TransactionID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale Notion page")
			report.Archived++
			continue
		}
		if err := s.notion.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", st.TransactionID).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale Notion page")
			report.Failed++
			continue
		}
		report.Archived++
	}

	for i := 0; i < len(entries); i += BatchSize {
		end := i + BatchSize
		if end > len(entries) {
			end = len(entries)
		}

		batch := entries[i:end]
		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, e := range batch {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			s.syncEntry(ctx, log, e, existing, opts, report)
		}
	}

	log.Info().
		Int("archived", report.Archived).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("total", len(entries)).
		Msg("Ledger sync completed")

	return report, nil
}

func (s *Syncer) syncEntry(ctx context.Context, log zerolog.Logger, e Entry, existing map[string]notionapi.Page, opts Options, report *Report) {
	txID := e.Transaction.ID
	if !opts.includes(e.Transaction.Timestamp) {
		report.Skipped++
		return
	}

	page, found := existing[txID]
	if found && readPage(page).upToDate(e) {
		report.Skipped++
		return
	}

	if opts.DryRun {
		if found {
			log.Info().Str("transaction_id", txID).Msg("[DRY RUN] Would update existing Notion page")
			report.Updated++
		} else {
			log.Info().Str("transaction_id", txID).Msg("[DRY RUN] Would create new Notion page")
			report.Created++
		}
		return
	}

	props := EntryToNotionProperties(e)

	if found {
		if _, err := s.notion.UpdatePage(ctx, string(page.ID), props); err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("Failed to update Notion page")
			report.Failed++
			return
		}
		report.Updated++
		return
	}

	created, err := s.notion.CreatePage(ctx, s.databaseID, props)
	if err != nil {
		log.Warn().
			Err(err).
			Str("transaction_id", txID).
			Msg("Failed to create Notion page")
		report.Failed++
		return
	}
	log.Debug().
		Str("transaction_id", txID).
		Str("page_id", string(created.ID)).
		Msg("Created Notion page")
	report.Created++
}

// queryAllNotionPages queries all pages of one household and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID, householdID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: propHousehold,
				RichText: &notionapi.TextFilterCondition{Equals: householdID},
			},
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

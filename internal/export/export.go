// Package export writes household snapshots to Cloud Storage and reads
// them back.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/gcs"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	contentType = "application/json"
	objectRoot  = "exports"
)

// MemberExport is one member with their ledger. The PIN is never exported.
type MemberExport struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Avatar           string                `json:"avatar"`
	CreatedAt        int64                 `json:"created_at"`
	LastInterestDate int64                 `json:"last_interest_date"`
	Balance          decimal.Decimal       `json:"balance"`
	Transactions     []*domain.Transaction `json:"transactions"`
}

// Snapshot is the exported document.
type Snapshot struct {
	HouseholdID string          `json:"household_id"`
	ExportedAt  time.Time       `json:"exported_at"`
	Rates       *domain.Rates   `json:"rates,omitempty"`
	Members     []MemberExport  `json:"members"`
	Total       decimal.Decimal `json:"total"`
}

// Exporter builds snapshots from a repository and stores them in a bucket.
type Exporter struct {
	repo    store.Repository
	objects gcs.ObjectStore
	bucket  string
	clock   clock.Clock
	log     zerolog.Logger
}

// NewExporter creates an Exporter writing to bucket.
func NewExporter(repo store.Repository, objects gcs.ObjectStore, bucket string, clk clock.Clock, log zerolog.Logger) *Exporter {
	return &Exporter{repo: repo, objects: objects, bucket: bucket, clock: clk, log: log}
}

// Build assembles the current snapshot of a household without uploading it.
func (e *Exporter) Build(ctx context.Context, householdID string) (*Snapshot, error) {
	members, err := e.repo.ListMembers(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("Build: listing members: %w", err)
	}
	txs, err := e.repo.ListTransactions(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("Build: listing transactions: %w", err)
	}

	snap := &Snapshot{
		HouseholdID: householdID,
		ExportedAt:  e.clock.Now().UTC(),
		Members:     make([]MemberExport, 0, len(members)),
		Total:       decimal.Zero,
	}

	r, err := e.repo.GetRates(ctx, householdID)
	switch {
	case err == nil:
		snap.Rates = r
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("Build: reading rates: %w", err)
	}

	for _, m := range members {
		balance := ledger.Fold(txs, m.ID)
		snap.Members = append(snap.Members, MemberExport{
			ID:               m.ID,
			Name:             m.Name,
			Avatar:           m.Avatar,
			CreatedAt:        m.CreatedAt,
			LastInterestDate: m.LastInterestDate,
			Balance:          balance,
			Transactions:     store.ForMember(txs, m.ID),
		})
		snap.Total = snap.Total.Add(balance)
	}
	return snap, nil
}

// Export uploads a snapshot and returns its gs:// URI.
func (e *Exporter) Export(ctx context.Context, householdID string) (string, error) {
	if e.bucket == "" {
		return "", errors.New("Export: no bucket configured")
	}

	snap, err := e.Build(ctx, householdID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Export: encoding snapshot: %w", err)
	}

	object := ObjectName(householdID, snap.ExportedAt)
	if err := e.objects.Upload(ctx, e.bucket, object, contentType, data); err != nil {
		return "", fmt.Errorf("Export: uploading: %w", err)
	}

	uri := gcs.URI(e.bucket, object)
	e.log.Info().
		Str("household_id", householdID).
		Str("uri", uri).
		Int("members", len(snap.Members)).
		Msg("household exported")
	return uri, nil
}

// Fetch downloads and decodes an export.
func (e *Exporter) Fetch(ctx context.Context, uri string) (*Snapshot, error) {
	data, err := e.objects.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("Fetch: decoding %s: %w", gcs.Filename(uri), err)
	}
	return &snap, nil
}

// List returns the URIs of a household's exports, oldest first.
func (e *Exporter) List(ctx context.Context, householdID string) ([]string, error) {
	names, err := e.objects.List(ctx, e.bucket, objectRoot+"/"+householdID+"/")
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	uris := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, ".json") {
			uris = append(uris, gcs.URI(e.bucket, name))
		}
	}
	return uris, nil
}

// ObjectName is exports/<household>/<UTC timestamp>.json. Names sort by time.
func ObjectName(householdID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", objectRoot, householdID, at.UTC().Format("20060102T150405.000Z"))
}

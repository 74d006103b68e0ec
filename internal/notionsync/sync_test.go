package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store/inmemory"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

const house = "house-1"

// mockNotionService is a mock implementation of NotionService
type mockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	ArchivePageFunc   func(ctx context.Context, pageID string) error
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	created  []notionapi.Properties
	updated  []string
	archived []string
}

func (m *mockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	m.created = append(m.created, properties)
	return &notionapi.Page{ID: "new-page"}, nil
}

func (m *mockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	m.updated = append(m.updated, pageID)
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *mockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	if m.ArchivePageFunc != nil {
		return m.ArchivePageFunc(ctx, pageID)
	}
	m.archived = append(m.archived, pageID)
	return nil
}

func (m *mockNotionService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, filter)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func seeded(t *testing.T) *inmemory.Store {
	t.Helper()
	ctx := context.Background()
	s := inmemory.NewStore()

	for _, m := range []*domain.Member{
		{ID: "m1", Name: "Ana", Avatar: "cat", PIN: "1234", CreatedAt: 1},
		{ID: "m2", Name: "Bo", Avatar: "dog", PIN: "9999", CreatedAt: 2},
	} {
		if err := s.InsertMember(ctx, house, m); err != nil {
			t.Fatalf("InsertMember() error = %v", err)
		}
	}
	for _, tx := range []*domain.Transaction{
		{ID: "t1", MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.RequireFromString("100"), Timestamp: 10, RecordedBy: "parent"},
		{ID: "t2", MemberID: "m1", Type: domain.TypeExpense, Amount: decimal.RequireFromString("25.5"), Note: "Candy", Timestamp: 20},
		{ID: "t3", MemberID: "m2", Type: domain.TypeIncome, Amount: decimal.RequireFromString("10"), Note: "Gift", Timestamp: 30},
	} {
		if err := s.InsertTransaction(ctx, house, tx); err != nil {
			t.Fatalf("InsertTransaction() error = %v", err)
		}
	}
	return s
}

func page(id, txID, title string, amount, balance float64) notionapi.Page {
	props := notionapi.Properties{
		propTitle:        &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: title}}},
		propAmount:       &notionapi.NumberProperty{Number: amount},
		propBalanceAfter: &notionapi.NumberProperty{Number: balance},
	}
	if txID != "" {
		props[propTxID] = &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: txID}}}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func TestEntries(t *testing.T) {
	members := []*domain.Member{{ID: "m1", Name: "Ana"}}
	txs := []*domain.Transaction{
		{ID: "b", MemberID: "m1", Type: domain.TypeExpense, Amount: decimal.RequireFromString("5"), Timestamp: 20},
		{ID: "a", MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.RequireFromString("30"), Timestamp: 10},
		{ID: "c", MemberID: "m1", Type: domain.TypeInterest, Amount: decimal.RequireFromString("0.25"), Timestamp: 20},
		{ID: "x", MemberID: "ghost", Type: domain.TypeIncome, Amount: decimal.RequireFromString("1"), Timestamp: 5},
	}

	entries := Entries(house, members, txs)

	wantOrder := []string{"x", "a", "b", "c"}
	wantBalance := []string{"1", "30", "25", "25.25"}
	for i, e := range entries {
		if e.Transaction.ID != wantOrder[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.Transaction.ID, wantOrder[i])
		}
		if !e.BalanceAfter.Equal(decimal.RequireFromString(wantBalance[i])) {
			t.Errorf("entries[%d].BalanceAfter = %s, want %s", i, e.BalanceAfter, wantBalance[i])
		}
	}
	if entries[1].MemberName != "Ana" || entries[0].MemberName != "" {
		t.Errorf("member names = %q, %q", entries[1].MemberName, entries[0].MemberName)
	}
}

func TestEntryToNotionProperties(t *testing.T) {
	e := Entry{
		HouseholdID: house,
		MemberName:  "Ana",
		Transaction: &domain.Transaction{
			ID:        "t2",
			MemberID:  "m1",
			Type:      domain.TypeExpense,
			Amount:    decimal.RequireFromString("25.5"),
			Timestamp: time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC).UnixMilli(),
		},
		BalanceAfter: decimal.RequireFromString("74.5"),
	}

	props := EntryToNotionProperties(e)

	title := props[propTitle].(notionapi.TitleProperty)
	if title.Title[0].Text.Content != "Withdrawal" {
		t.Errorf("title = %q, want Withdrawal", title.Title[0].Text.Content)
	}
	if amount := props[propAmount].(notionapi.NumberProperty); amount.Number != -25.5 {
		t.Errorf("amount = %v, want -25.5", amount.Number)
	}
	if bal := props[propBalanceAfter].(notionapi.NumberProperty); bal.Number != 74.5 {
		t.Errorf("balance after = %v, want 74.5", bal.Number)
	}
	if member := props[propMember].(notionapi.SelectProperty); member.Select.Name != "Ana" {
		t.Errorf("member = %q", member.Select.Name)
	}
	if _, ok := props[propRecordedBy]; ok {
		t.Error("legacy entry without actor should not set Recorded By")
	}
	date := props[propDate].(notionapi.DateProperty)
	if got := time.Time(*date.Date.Start); !got.Equal(time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", got)
	}
}

func TestSyncer_Sync(t *testing.T) {
	notion := &mockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{
				page("p1", "t1", "Deposit", 100, 100),
				page("p2", "t2", "Candy", -20, 80),
				page("p3", "gone", "Deleted", 5, 5),
				page("p4", "", "Legacy", 1, 1),
			}}, nil
		},
	}
	syncer := NewSyncer(seeded(t), notion, "db-1")

	report, err := syncer.Sync(context.Background(), house, Options{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	want := Report{Created: 1, Updated: 1, Archived: 2, Skipped: 1}
	if *report != want {
		t.Errorf("report = %+v, want %+v", *report, want)
	}
	if len(notion.updated) != 1 || notion.updated[0] != "p2" {
		t.Errorf("updated = %v, want [p2]", notion.updated)
	}
	if len(notion.archived) != 2 || notion.archived[0] != "p3" || notion.archived[1] != "p4" {
		t.Errorf("archived = %v, want [p3 p4]", notion.archived)
	}
	if len(notion.created) != 1 {
		t.Fatalf("created = %d pages, want 1", len(notion.created))
	}
	if id := notion.created[0][propTxID].(notionapi.RichTextProperty); id.RichText[0].Text.Content != "t3" {
		t.Errorf("created page for %q, want t3", id.RichText[0].Text.Content)
	}
}

func TestSyncer_SyncDryRun(t *testing.T) {
	notion := &mockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{page("p3", "gone", "Deleted", 5, 5)}}, nil
		},
	}
	syncer := NewSyncer(seeded(t), notion, "db-1")

	report, err := syncer.Sync(context.Background(), house, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Created != 3 || report.Archived != 1 {
		t.Errorf("report = %+v", *report)
	}
	if len(notion.created)+len(notion.updated)+len(notion.archived) != 0 {
		t.Error("dry run must not write to Notion")
	}
}

func TestSyncer_SyncRange(t *testing.T) {
	notion := &mockNotionService{}
	syncer := NewSyncer(seeded(t), notion, "db-1")

	opts := Options{From: time.UnixMilli(15), To: time.UnixMilli(30)}
	report, err := syncer.Sync(context.Background(), house, opts)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Created != 1 || report.Skipped != 2 {
		t.Errorf("report = %+v, want only t2 created", *report)
	}
}

func TestSyncer_SyncPaginatesAndFilters(t *testing.T) {
	var calls int
	notion := &mockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			calls++
			pf, ok := filter.Filter.(notionapi.PropertyFilter)
			if !ok || pf.Property != propHousehold || pf.RichText.Equals != house {
				t.Errorf("unexpected filter %+v", filter.Filter)
			}
			if calls == 1 {
				if filter.StartCursor != "" {
					t.Errorf("first query has cursor %q", filter.StartCursor)
				}
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{page("p1", "t1", "Deposit", 100, 100)},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			if filter.StartCursor != "next" {
				t.Errorf("second query cursor = %q, want next", filter.StartCursor)
			}
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{page("p1-dup", "t1", "Deposit", 100, 100)},
			}, nil
		},
	}
	syncer := NewSyncer(seeded(t), notion, "db-1")

	report, err := syncer.Sync(context.Background(), house, Options{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("QueryDatabase calls = %d, want 2", calls)
	}
	if report.Archived != 1 || notion.archived[0] != "p1-dup" {
		t.Errorf("duplicate page not archived: %+v %v", *report, notion.archived)
	}
}

func TestSyncer_SyncFailures(t *testing.T) {
	notion := &mockNotionService{
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("rate limited")
		},
	}
	syncer := NewSyncer(seeded(t), notion, "db-1")

	report, err := syncer.Sync(context.Background(), house, Options{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if report.Failed != 3 || report.Created != 0 {
		t.Errorf("report = %+v, want 3 failures", *report)
	}

	notion.QueryDatabaseFunc = func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return nil, errors.New("unauthorized")
	}
	if _, err := syncer.Sync(context.Background(), house, Options{}); err == nil {
		t.Error("Sync() should fail when Notion cannot be queried")
	}
}

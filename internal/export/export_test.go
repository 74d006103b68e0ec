package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store/inmemory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const house = "house-1"

// mockObjectStore is a mock implementation of gcs.ObjectStore
type mockObjectStore struct {
	UploadFunc func(ctx context.Context, bucket, object, contentType string, data []byte) error
	FetchFunc  func(ctx context.Context, uri string) ([]byte, error)
	ListFunc   func(ctx context.Context, bucket, prefix string) ([]string, error)
}

func (m *mockObjectStore) Upload(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, bucket, object, contentType, data)
	}
	return nil
}

func (m *mockObjectStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, uri)
	}
	return nil, errors.New("not found")
}

func (m *mockObjectStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, bucket, prefix)
	}
	return nil, nil
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
		{ID: "t1", MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.RequireFromString("100"), Timestamp: 10},
		{ID: "t2", MemberID: "m1", Type: domain.TypeExpense, Amount: decimal.RequireFromString("25.50"), Timestamp: 20},
		{ID: "t3", MemberID: "m2", Type: domain.TypeIncome, Amount: decimal.RequireFromString("10"), Timestamp: 30},
	} {
		if err := s.InsertTransaction(ctx, house, tx); err != nil {
			t.Fatalf("InsertTransaction() error = %v", err)
		}
	}
	return s
}

func newExporter(t *testing.T, objects *mockObjectStore) *Exporter {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC))
	return NewExporter(seeded(t), objects, "bank-exports", clk, zerolog.Nop())
}

func TestExporter_Build(t *testing.T) {
	e := newExporter(t, &mockObjectStore{})

	snap, err := e.Build(context.Background(), house)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(snap.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(snap.Members))
	}
	if !snap.Members[0].Balance.Equal(decimal.RequireFromString("74.5")) {
		t.Errorf("m1 balance = %s, want 74.5", snap.Members[0].Balance)
	}
	if len(snap.Members[0].Transactions) != 2 {
		t.Errorf("m1 transactions = %d, want 2", len(snap.Members[0].Transactions))
	}
	if !snap.Total.Equal(decimal.RequireFromString("84.5")) {
		t.Errorf("total = %s, want 84.5", snap.Total)
	}
	if snap.Rates != nil {
		t.Errorf("rates = %+v, want nil for a household without rates", snap.Rates)
	}
}

func TestExporter_ExportUploadsWithoutPIN(t *testing.T) {
	var gotBucket, gotObject, gotType string
	var gotData []byte
	objects := &mockObjectStore{
		UploadFunc: func(ctx context.Context, bucket, object, contentType string, data []byte) error {
			gotBucket, gotObject, gotType, gotData = bucket, object, contentType, data
			return nil
		},
	}
	e := newExporter(t, objects)

	uri, err := e.Export(context.Background(), house)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	wantObject := "exports/house-1/20260502T090000.000Z.json"
	if gotBucket != "bank-exports" || gotObject != wantObject {
		t.Errorf("uploaded to %s/%s, want bank-exports/%s", gotBucket, gotObject, wantObject)
	}
	if uri != "gs://bank-exports/"+wantObject {
		t.Errorf("uri = %q", uri)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q", gotType)
	}
	body := string(gotData)
	if strings.Contains(body, "1234") || strings.Contains(body, "pin") {
		t.Errorf("export leaks PIN: %s", body)
	}
	if !strings.Contains(body, `"balance": "74.5"`) {
		t.Errorf("export missing balance: %s", body)
	}
}

func TestExporter_ExportErrors(t *testing.T) {
	e := newExporter(t, &mockObjectStore{
		UploadFunc: func(ctx context.Context, bucket, object, contentType string, data []byte) error {
			return errors.New("permission denied")
		},
	})
	if _, err := e.Export(context.Background(), house); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Export() error = %v, want upload failure", err)
	}

	e.bucket = ""
	if _, err := e.Export(context.Background(), house); err == nil {
		t.Error("Export() without bucket should fail")
	}
}

func TestExporter_FetchRoundTrip(t *testing.T) {
	var stored []byte
	objects := &mockObjectStore{
		UploadFunc: func(ctx context.Context, bucket, object, contentType string, data []byte) error {
			stored = data
			return nil
		},
		FetchFunc: func(ctx context.Context, uri string) ([]byte, error) {
			return stored, nil
		},
	}
	e := newExporter(t, objects)

	uri, err := e.Export(context.Background(), house)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	snap, err := e.Fetch(context.Background(), uri)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if snap.HouseholdID != house || len(snap.Members) != 2 {
		t.Errorf("Fetch() = %+v", snap)
	}
	if !snap.Members[1].Balance.Equal(decimal.RequireFromString("10")) {
		t.Errorf("m2 balance = %s, want 10", snap.Members[1].Balance)
	}
}

func TestExporter_FetchInvalidJSON(t *testing.T) {
	e := newExporter(t, &mockObjectStore{
		FetchFunc: func(ctx context.Context, uri string) ([]byte, error) {
			return []byte("not json"), nil
		},
	})
	if _, err := e.Fetch(context.Background(), "gs://bank-exports/exports/house-1/x.json"); err == nil {
		t.Error("Fetch() should fail on invalid JSON")
	}
}

func TestExporter_List(t *testing.T) {
	var gotPrefix string
	e := newExporter(t, &mockObjectStore{
		ListFunc: func(ctx context.Context, bucket, prefix string) ([]string, error) {
			gotPrefix = prefix
			return []string{"exports/house-1/a.json", "exports/house-1/notes.txt"}, nil
		},
	})

	uris, err := e.List(context.Background(), house)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if gotPrefix != "exports/house-1/" {
		t.Errorf("prefix = %q", gotPrefix)
	}
	if len(uris) != 1 || uris[0] != "gs://bank-exports/exports/house-1/a.json" {
		t.Errorf("List() = %v", uris)
	}
}

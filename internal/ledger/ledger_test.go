package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/dvloznov/family-bank/internal/store/inmemory"
	"github.com/shopspring/decimal"
)

const house = "house-1"

// mockTransactionRepo is a mock implementation of store.TransactionRepository
type mockTransactionRepo struct {
	InsertTransactionFunc        func(ctx context.Context, householdID string, tx *domain.Transaction) error
	UpdateTransactionFunc        func(ctx context.Context, householdID, txID string, amount decimal.Decimal, note string) error
	DeleteTransactionFunc        func(ctx context.Context, householdID, txID string) error
	DeleteMemberTransactionsFunc func(ctx context.Context, householdID, memberID string) (int, error)
	ListTransactionsFunc         func(ctx context.Context, householdID string) ([]*domain.Transaction, error)
}

func (m *mockTransactionRepo) InsertTransaction(ctx context.Context, householdID string, tx *domain.Transaction) error {
	if m.InsertTransactionFunc != nil {
		return m.InsertTransactionFunc(ctx, householdID, tx)
	}
	return nil
}

func (m *mockTransactionRepo) UpdateTransaction(ctx context.Context, householdID, txID string, amount decimal.Decimal, note string) error {
	if m.UpdateTransactionFunc != nil {
		return m.UpdateTransactionFunc(ctx, householdID, txID, amount, note)
	}
	return nil
}

func (m *mockTransactionRepo) DeleteTransaction(ctx context.Context, householdID, txID string) error {
	if m.DeleteTransactionFunc != nil {
		return m.DeleteTransactionFunc(ctx, householdID, txID)
	}
	return nil
}

func (m *mockTransactionRepo) DeleteMemberTransactions(ctx context.Context, householdID, memberID string) (int, error) {
	if m.DeleteMemberTransactionsFunc != nil {
		return m.DeleteMemberTransactionsFunc(ctx, householdID, memberID)
	}
	return 0, nil
}

func (m *mockTransactionRepo) ListTransactions(ctx context.Context, householdID string) ([]*domain.Transaction, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, householdID)
	}
	return nil, nil
}

func tx(member string, typ domain.TransactionType, amount string, ts int64) *domain.Transaction {
	return &domain.Transaction{MemberID: member, Type: typ, Amount: decimal.RequireFromString(amount), Timestamp: ts}
}

func TestFold(t *testing.T) {
	tests := []struct {
		name string
		txs  []*domain.Transaction
		want string
	}{
		{"empty", nil, "0"},
		{
			name: "income expense interest",
			txs: []*domain.Transaction{
				tx("m1", domain.TypeIncome, "100", 1),
				tx("m1", domain.TypeExpense, "30", 2),
				tx("m1", domain.TypeInterest, "5", 3),
			},
			want: "75",
		},
		{
			name: "reversed order",
			txs: []*domain.Transaction{
				tx("m1", domain.TypeInterest, "5", 3),
				tx("m1", domain.TypeExpense, "30", 2),
				tx("m1", domain.TypeIncome, "100", 1),
			},
			want: "75",
		},
		{
			name: "other members ignored",
			txs: []*domain.Transaction{
				tx("m1", domain.TypeIncome, "10.25", 1),
				tx("m2", domain.TypeIncome, "999", 2),
			},
			want: "10.25",
		},
		{
			name: "may go negative",
			txs: []*domain.Transaction{
				tx("m1", domain.TypeIncome, "10", 1),
				tx("m1", domain.TypeExpense, "15.50", 2),
			},
			want: "-5.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fold(tt.txs, "m1")
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Fold() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCurve(t *testing.T) {
	txs := []*domain.Transaction{
		tx("m1", domain.TypeExpense, "20", 2),
		tx("m1", domain.TypeIncome, "10", 1),
		tx("m1", domain.TypeIncome, "50", 3),
		tx("m2", domain.TypeIncome, "1", 0),
	}

	points := Curve(txs, "m1", 0)
	want := []string{"10", "0", "40"}
	if len(points) != len(want) {
		t.Fatalf("Curve() returned %d points, want %d", len(points), len(want))
	}
	for i, p := range points {
		if !p.Balance.Equal(decimal.RequireFromString(want[i])) {
			t.Errorf("point %d = %s, want %s", i, p.Balance, want[i])
		}
		if p.Timestamp != int64(i+1) {
			t.Errorf("point %d timestamp = %d, want %d", i, p.Timestamp, i+1)
		}
	}

	last := Curve(txs, "m1", 2)
	if len(last) != 2 || last[0].Timestamp != 2 {
		t.Errorf("Curve(limit=2) = %+v, want the last two points", last)
	}
}

func TestAchievements(t *testing.T) {
	txs := []*domain.Transaction{tx("m1", domain.TypeIncome, "150", 1)}
	for i := 0; i < 10; i++ {
		txs = append(txs, tx("m1", domain.TypeInterest, "1", int64(i+2)))
	}

	unlocked := map[string]bool{}
	for _, a := range Achievements(txs, "m1") {
		unlocked[a.ID] = a.Unlocked
	}

	for id, want := range map[string]bool{
		"first_save":  true,
		"saver_100":   true,
		"saver_1000":  false,
		"interest_1":  true,
		"interest_10": true,
		"interest_30": false,
	} {
		if unlocked[id] != want {
			t.Errorf("%s unlocked = %v, want %v", id, unlocked[id], want)
		}
	}
}

func newService(repo store.TransactionRepository) *Service {
	return NewService(repo, clock.Fake(time.UnixMilli(1_700_000_000_000)), 0)
}

func TestService_Record(t *testing.T) {
	ctx := context.Background()
	s := newService(inmemory.NewStore())

	deposit, err := s.Record(ctx, house, Entry{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.NewFromInt(100), RecordedBy: "parent"})
	if err != nil {
		t.Fatalf("Record(deposit) error = %v", err)
	}
	if deposit.ID == "" {
		t.Error("Record() did not assign an ID")
	}
	if deposit.Note != defaultIncomeNote {
		t.Errorf("Note = %q, want %q", deposit.Note, defaultIncomeNote)
	}
	if deposit.Timestamp != 1_700_000_000_000 {
		t.Errorf("Timestamp = %d, want clock time", deposit.Timestamp)
	}

	withdrawal, err := s.Record(ctx, house, Entry{MemberID: "m1", Type: domain.TypeExpense, Amount: decimal.NewFromInt(30)})
	if err != nil {
		t.Fatalf("Record(withdrawal) error = %v", err)
	}
	if withdrawal.Note != defaultExpenseNote {
		t.Errorf("Note = %q, want %q", withdrawal.Note, defaultExpenseNote)
	}

	_, err = s.Record(ctx, house, Entry{MemberID: "m1", Type: domain.TypeExpense, Amount: decimal.NewFromInt(71)})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraft error = %v, want ErrInsufficientFunds", err)
	}

	balance, err := s.Balance(ctx, house, "m1")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Balance() = %s, want 70", balance)
	}
}

func TestService_RecordValidation(t *testing.T) {
	s := newService(&mockTransactionRepo{
		InsertTransactionFunc: func(ctx context.Context, householdID string, tx *domain.Transaction) error {
			t.Fatal("InsertTransaction called for invalid entry")
			return nil
		},
	})

	tests := []struct {
		name  string
		entry Entry
	}{
		{"zero amount", Entry{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.Zero}},
		{"negative amount", Entry{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.NewFromInt(-3)}},
		{"rounds to zero", Entry{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.RequireFromString("0.001")}},
		{"interest by hand", Entry{MemberID: "m1", Type: domain.TypeInterest, Amount: decimal.NewFromInt(3)}},
		{"unknown type", Entry{MemberID: "m1", Type: "gift", Amount: decimal.NewFromInt(3)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Record(context.Background(), house, tt.entry)
			if !domain.IsValidation(err) {
				t.Errorf("Record() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestService_AppendWriteFailure(t *testing.T) {
	s := newService(&mockTransactionRepo{
		InsertTransactionFunc: func(ctx context.Context, householdID string, tx *domain.Transaction) error {
			return errors.New("backend unavailable")
		},
	})

	err := s.Append(context.Background(), house, tx("m1", domain.TypeInterest, "1.00", 1))
	if !domain.IsWriteFailure(err) {
		t.Errorf("Append() error = %v, want WriteFailure", err)
	}
}

func TestService_EditAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewStore()
	s := newService(repo)

	entry, err := s.Record(ctx, house, Entry{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.NewFromInt(10), Note: "birthday"})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if err := s.Edit(ctx, house, entry.ID, decimal.Zero, "x"); !domain.IsValidation(err) {
		t.Errorf("Edit(0) error = %v, want ValidationError", err)
	}
	if err := s.Edit(ctx, house, entry.ID, decimal.RequireFromString("0.004"), "x"); !domain.IsValidation(err) {
		t.Errorf("Edit(0.004) error = %v, want ValidationError", err)
	}
	if txs, _ := s.Transactions(ctx, house, "m1"); len(txs) != 1 || !txs[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("rejected edit changed the entry: %+v", txs)
	}
	if err := s.Edit(ctx, house, entry.ID, decimal.NewFromInt(25), "birthday gift"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	txs, err := s.Transactions(ctx, house, "m1")
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 1 || !txs[0].Amount.Equal(decimal.NewFromInt(25)) || txs[0].Note != "birthday gift" {
		t.Fatalf("after edit got %+v", txs)
	}
	if txs[0].Type != domain.TypeIncome || txs[0].Timestamp != entry.Timestamp {
		t.Error("Edit() changed immutable fields")
	}

	if err := s.Remove(ctx, house, entry.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove(ctx, house, entry.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Remove() error = %v, want ErrNotFound", err)
	}
}

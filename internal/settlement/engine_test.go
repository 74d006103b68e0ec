package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/notify"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/dvloznov/family-bank/internal/store/inmemory"
	"github.com/shopspring/decimal"
)

const house = "house-1"

var now = time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC)

// mockMemberRepo is a mock implementation of store.MemberRepository
type mockMemberRepo struct {
	InsertMemberFunc        func(ctx context.Context, householdID string, m *domain.Member) error
	UpdateMemberProfileFunc func(ctx context.Context, householdID string, m *domain.Member) error
	DeleteMemberFunc        func(ctx context.Context, householdID, memberID string) error
	GetMemberFunc           func(ctx context.Context, householdID, memberID string) (*domain.Member, error)
	ListMembersFunc         func(ctx context.Context, householdID string) ([]*domain.Member, error)
	AdvanceWatermarkFunc    func(ctx context.Context, householdID, memberID string, expected, next int64) error
}

func (m *mockMemberRepo) InsertMember(ctx context.Context, householdID string, member *domain.Member) error {
	if m.InsertMemberFunc != nil {
		return m.InsertMemberFunc(ctx, householdID, member)
	}
	return nil
}

func (m *mockMemberRepo) UpdateMemberProfile(ctx context.Context, householdID string, member *domain.Member) error {
	if m.UpdateMemberProfileFunc != nil {
		return m.UpdateMemberProfileFunc(ctx, householdID, member)
	}
	return nil
}

func (m *mockMemberRepo) DeleteMember(ctx context.Context, householdID, memberID string) error {
	if m.DeleteMemberFunc != nil {
		return m.DeleteMemberFunc(ctx, householdID, memberID)
	}
	return nil
}

func (m *mockMemberRepo) GetMember(ctx context.Context, householdID, memberID string) (*domain.Member, error) {
	if m.GetMemberFunc != nil {
		return m.GetMemberFunc(ctx, householdID, memberID)
	}
	return nil, store.ErrNotFound
}

func (m *mockMemberRepo) ListMembers(ctx context.Context, householdID string) ([]*domain.Member, error) {
	if m.ListMembersFunc != nil {
		return m.ListMembersFunc(ctx, householdID)
	}
	return nil, nil
}

func (m *mockMemberRepo) AdvanceWatermark(ctx context.Context, householdID, memberID string, expected, next int64) error {
	if m.AdvanceWatermarkFunc != nil {
		return m.AdvanceWatermarkFunc(ctx, householdID, memberID, expected, next)
	}
	return nil
}

// mockLedger is a mock implementation of Ledger
type mockLedger struct {
	AppendFunc       func(ctx context.Context, householdID string, tx *domain.Transaction) error
	TransactionsFunc func(ctx context.Context, householdID, memberID string) ([]*domain.Transaction, error)
}

func (m *mockLedger) Append(ctx context.Context, householdID string, tx *domain.Transaction) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, householdID, tx)
	}
	return nil
}

func (m *mockLedger) Transactions(ctx context.Context, householdID, memberID string) ([]*domain.Transaction, error) {
	if m.TransactionsFunc != nil {
		return m.TransactionsFunc(ctx, householdID, memberID)
	}
	return nil, nil
}

type fixture struct {
	clock  *clock.FakeClock
	store  *inmemory.Store
	ledger *ledger.Service
	engine *Engine
	guard  *Guard
	sent   []notify.Notification
}

// newFixture creates a member whose watermark is days old and who holds
// balance in a single deposit.
func newFixture(t *testing.T, days int64, balance string) *fixture {
	t.Helper()
	f := &fixture{clock: clock.Fake(now), store: inmemory.NewStore()}
	f.ledger = ledger.NewService(f.store, f.clock, 0)
	f.engine = NewEngine(f.store, f.ledger, f.clock, WithNotifier(notify.NotifierFunc(
		func(ctx context.Context, n notify.Notification) error {
			f.sent = append(f.sent, n)
			return nil
		})))
	f.guard = NewGuard(f.clock, DefaultCooldown)

	ctx := context.Background()
	watermark := now.UnixMilli() - days*MillisPerDay
	if err := f.store.InsertMember(ctx, house, &domain.Member{ID: "m1", Name: "Mia", CreatedAt: watermark, LastInterestDate: watermark}); err != nil {
		t.Fatalf("InsertMember: %v", err)
	}
	if amount := decimal.RequireFromString(balance); amount.IsPositive() {
		tx := &domain.Transaction{MemberID: "m1", Type: domain.TypeIncome, Amount: amount, Note: "seed", Timestamp: watermark}
		if err := f.ledger.Append(ctx, house, tx); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return f
}

func (f *fixture) request(t *testing.T, rate string) Request {
	t.Helper()
	ctx := context.Background()
	m, err := f.store.GetMember(ctx, house, "m1")
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	txs, err := f.store.ListTransactions(ctx, house)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	return Request{HouseholdID: house, Member: m, Transactions: txs, Rate: decimal.RequireFromString(rate)}
}

func (f *fixture) interest(t *testing.T) []*domain.Transaction {
	t.Helper()
	txs, err := f.store.ListTransactions(context.Background(), house)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	var out []*domain.Transaction
	for _, tx := range txs {
		if tx.Type == domain.TypeInterest {
			out = append(out, tx)
		}
	}
	return out
}

func (f *fixture) watermark(t *testing.T) int64 {
	t.Helper()
	m, err := f.store.GetMember(context.Background(), house, "m1")
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	return m.LastInterestDate
}

func TestSettle_Credits(t *testing.T) {
	f := newFixture(t, 30, "1000")

	res, err := f.engine.Settle(context.Background(), f.guard, f.request(t, "0.05"))
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if res.Outcome != OutcomeCredited {
		t.Fatalf("Outcome = %s, want %s", res.Outcome, OutcomeCredited)
	}
	if res.ElapsedDays != 30 || !res.Earned.Equal(decimal.RequireFromString("4.12")) {
		t.Errorf("Result = %+v, want 30 days earning 4.12", res)
	}

	credited := f.interest(t)
	if len(credited) != 1 {
		t.Fatalf("interest entries = %d, want 1", len(credited))
	}
	tx := credited[0]
	if tx.RecordedBy != domain.RecordedBySystem || tx.Timestamp != now.UnixMilli() {
		t.Errorf("interest entry = %+v", tx)
	}
	if tx.Note != "Compound interest settled (5.0%, 30 days)" {
		t.Errorf("Note = %q", tx.Note)
	}
	if got := f.watermark(t); got != now.UnixMilli() {
		t.Errorf("watermark = %d, want %d", got, now.UnixMilli())
	}
	if got := f.watermark(t); got < tx.Timestamp {
		t.Error("watermark is behind the interest entry")
	}

	if len(f.sent) != 1 || f.sent[0].ElapsedDays != 30 || !f.sent[0].Earned.Equal(res.Earned) {
		t.Errorf("notifications = %+v", f.sent)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	f := newFixture(t, 3, "1000")
	ctx := context.Background()
	stale := f.request(t, "0.05")

	if res, err := f.engine.Settle(ctx, f.guard, stale); err != nil || res.Outcome != OutcomeCredited {
		t.Fatalf("first Settle() = %+v, %v", res, err)
	}
	before := f.watermark(t)

	// Past the cooldown, a fresh snapshot sees less than a day elapsed.
	f.clock.Advance(DefaultCooldown)
	res, err := f.engine.Settle(ctx, f.guard, f.request(t, "0.05"))
	if err != nil || res.Outcome != OutcomeNotDue {
		t.Errorf("fresh Settle() = %+v, %v, want %s", res, err, OutcomeNotDue)
	}

	// A writer still holding the old snapshot loses the conditional write.
	f.clock.Advance(DefaultCooldown)
	res, err = f.engine.Settle(ctx, NewGuard(f.clock, DefaultCooldown), stale)
	if err != nil || res.Outcome != OutcomeStaleRead {
		t.Errorf("stale Settle() = %+v, %v, want %s", res, err, OutcomeStaleRead)
	}

	if n := len(f.interest(t)); n != 1 {
		t.Errorf("interest entries = %d, want 1", n)
	}
	if got := f.watermark(t); got != before {
		t.Errorf("watermark moved again: %d != %d", got, before)
	}
}

func TestSettle_ZeroDays(t *testing.T) {
	f := newFixture(t, 0, "1000")
	f.clock.Advance(23 * time.Hour)
	before := f.watermark(t)

	res, err := f.engine.Settle(context.Background(), f.guard, f.request(t, "0.05"))
	if err != nil || res.Outcome != OutcomeNotDue {
		t.Fatalf("Settle() = %+v, %v, want %s", res, err, OutcomeNotDue)
	}
	if f.watermark(t) != before {
		t.Error("watermark changed on a zero-day run")
	}
	if len(f.interest(t)) != 0 {
		t.Error("interest emitted on a zero-day run")
	}
}

func TestSettle_NoInterestCases(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		spend   string
		rate    string
		want    Outcome
	}{
		{"empty ledger", "0", "", "0.05", OutcomeNoBalance},
		{"negative balance", "10", "25", "0.05", OutcomeNoBalance},
		{"negative rate", "500", "", "-0.02", OutcomeNoInterest},
		{"rounds to zero", "1", "", "0.01", OutcomeNoInterest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, tt.balance)
			if tt.spend != "" {
				// expenses may exceed the balance when recorded directly
				tx := &domain.Transaction{MemberID: "m1", Type: domain.TypeExpense, Amount: decimal.RequireFromString(tt.spend), Timestamp: 1}
				if err := f.ledger.Append(context.Background(), house, tx); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			res, err := f.engine.Settle(context.Background(), f.guard, f.request(t, tt.rate))
			if err != nil {
				t.Fatalf("Settle() error = %v", err)
			}
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.want)
			}
			if len(f.interest(t)) != 0 {
				t.Error("interest entry emitted")
			}
			if got := f.watermark(t); got != now.UnixMilli() {
				t.Errorf("watermark = %d, want advanced to %d", got, now.UnixMilli())
			}
			if len(f.sent) != 0 {
				t.Error("notification sent without interest")
			}
		})
	}
}

func TestSettle_ReentrantCallIsGuarded(t *testing.T) {
	member := &domain.Member{ID: "m1", LastInterestDate: now.UnixMilli() - 5*MillisPerDay}
	txs := []*domain.Transaction{{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.NewFromInt(100)}}
	clk := clock.Fake(now)
	guard := NewGuard(clk, DefaultCooldown)
	req := Request{HouseholdID: house, Member: member, Transactions: txs, Rate: decimal.RequireFromString("0.05")}

	var engine *Engine
	var inner *Result
	appends := 0
	members := &mockMemberRepo{
		AdvanceWatermarkFunc: func(ctx context.Context, householdID, memberID string, expected, next int64) error {
			// a snapshot callback fires before the write resolves
			var err error
			inner, err = engine.Settle(ctx, guard, req)
			if err != nil {
				t.Errorf("inner Settle() error = %v", err)
			}
			return nil
		},
	}
	engine = NewEngine(members, &mockLedger{
		AppendFunc: func(ctx context.Context, householdID string, tx *domain.Transaction) error {
			appends++
			return nil
		},
	}, clk)

	res, err := engine.Settle(context.Background(), guard, req)
	if err != nil || res.Outcome != OutcomeCredited {
		t.Fatalf("outer Settle() = %+v, %v", res, err)
	}
	if inner == nil || inner.Outcome != OutcomeGuarded {
		t.Errorf("inner Settle() = %+v, want %s", inner, OutcomeGuarded)
	}
	if appends != 1 {
		t.Errorf("appends = %d, want 1", appends)
	}
}

func TestSettle_GuardCooldown(t *testing.T) {
	f := newFixture(t, 2, "100")
	ctx := context.Background()
	key := GuardKey(house, "m1")

	if _, err := f.engine.Settle(ctx, f.guard, f.request(t, "0.05")); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if !f.guard.Held(key) {
		t.Fatal("guard released before cooldown")
	}

	res, err := f.engine.Settle(ctx, f.guard, f.request(t, "0.05"))
	if err != nil || res.Outcome != OutcomeGuarded {
		t.Errorf("Settle() during cooldown = %+v, %v", res, err)
	}

	f.clock.Advance(DefaultCooldown - time.Millisecond)
	if !f.guard.Held(key) {
		t.Error("guard released early")
	}
	f.clock.Advance(time.Millisecond)
	if f.guard.Held(key) {
		t.Error("guard still held after cooldown")
	}
}

func TestSettle_MembersDoNotInterfere(t *testing.T) {
	f := newFixture(t, 2, "100")
	ctx := context.Background()
	watermark := now.UnixMilli() - 2*MillisPerDay
	if err := f.store.InsertMember(ctx, house, &domain.Member{ID: "m2", Name: "Leo", LastInterestDate: watermark}); err != nil {
		t.Fatalf("InsertMember: %v", err)
	}
	if !f.guard.TryAcquire(GuardKey(house, "m1")) {
		t.Fatal("TryAcquire(m1) = false")
	}

	m2, _ := f.store.GetMember(ctx, house, "m2")
	res, err := f.engine.Settle(ctx, f.guard, Request{HouseholdID: house, Member: m2, Rate: decimal.RequireFromString("0.05")})
	if err != nil {
		t.Fatalf("Settle(m2) error = %v", err)
	}
	if res.Outcome != OutcomeNoBalance {
		t.Errorf("Settle(m2) outcome = %s, want %s", res.Outcome, OutcomeNoBalance)
	}
}

func TestSettle_WatermarkWriteFailure(t *testing.T) {
	member := &domain.Member{ID: "m1", LastInterestDate: now.UnixMilli() - 5*MillisPerDay}
	txs := []*domain.Transaction{{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.NewFromInt(100)}}
	clk := clock.Fake(now)

	engine := NewEngine(&mockMemberRepo{
		AdvanceWatermarkFunc: func(ctx context.Context, householdID, memberID string, expected, next int64) error {
			return context.DeadlineExceeded
		},
	}, &mockLedger{
		AppendFunc: func(ctx context.Context, householdID string, tx *domain.Transaction) error {
			t.Error("Append called after a failed watermark write")
			return nil
		},
	}, clk)

	_, err := engine.Settle(context.Background(), NewGuard(clk, 0), Request{HouseholdID: house, Member: member, Transactions: txs, Rate: decimal.RequireFromString("0.05")})
	if !domain.IsWriteFailure(err) {
		t.Errorf("Settle() error = %v, want WriteFailure", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Settle() error = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestSettle_AppendFailureLosesWindow(t *testing.T) {
	member := &domain.Member{ID: "m1", LastInterestDate: now.UnixMilli() - 5*MillisPerDay}
	txs := []*domain.Transaction{{MemberID: "m1", Type: domain.TypeIncome, Amount: decimal.NewFromInt(1000)}}
	clk := clock.Fake(now)
	advanced := false
	notified := false

	engine := NewEngine(&mockMemberRepo{
		AdvanceWatermarkFunc: func(ctx context.Context, householdID, memberID string, expected, next int64) error {
			advanced = true
			return nil
		},
	}, &mockLedger{
		AppendFunc: func(ctx context.Context, householdID string, tx *domain.Transaction) error {
			return &domain.WriteFailure{Op: "append transaction", Err: errors.New("unavailable")}
		},
	}, clk, WithNotifier(notify.NotifierFunc(func(context.Context, notify.Notification) error {
		notified = true
		return nil
	})))

	res, err := engine.Settle(context.Background(), NewGuard(clk, 0), Request{HouseholdID: house, Member: member, Transactions: txs, Rate: decimal.RequireFromString("0.05")})
	if err != nil {
		t.Fatalf("Settle() error = %v, want nil", err)
	}
	if res.Outcome != OutcomeInterestLost || !advanced {
		t.Errorf("Settle() = %+v, advanced = %v", res, advanced)
	}
	if notified {
		t.Error("notification sent for lost interest")
	}
}

func TestSettle_ConflictRetriesAreBounded(t *testing.T) {
	member := &domain.Member{ID: "m1", LastInterestDate: now.UnixMilli() - 5*MillisPerDay}
	clk := clock.Fake(now)
	writes := 0

	engine := NewEngine(&mockMemberRepo{
		AdvanceWatermarkFunc: func(ctx context.Context, householdID, memberID string, expected, next int64) error {
			writes++
			return store.ErrWatermarkConflict
		},
		GetMemberFunc: func(ctx context.Context, householdID, memberID string) (*domain.Member, error) {
			m := *member
			return &m, nil
		},
	}, &mockLedger{}, clk, WithMaxConflictRetries(2))

	_, err := engine.Settle(context.Background(), NewGuard(clk, 0), Request{HouseholdID: house, Member: member, Rate: decimal.RequireFromString("0.05")})
	if !domain.IsWriteFailure(err) || !errors.Is(err, store.ErrWatermarkConflict) {
		t.Errorf("Settle() error = %v, want WriteFailure wrapping ErrWatermarkConflict", err)
	}
	if writes != 3 {
		t.Errorf("watermark writes = %d, want 3", writes)
	}
}

func TestSettle_MemberDeletedDuringConflict(t *testing.T) {
	member := &domain.Member{ID: "m1", LastInterestDate: now.UnixMilli() - 5*MillisPerDay}
	clk := clock.Fake(now)

	engine := NewEngine(&mockMemberRepo{
		AdvanceWatermarkFunc: func(ctx context.Context, householdID, memberID string, expected, next int64) error {
			return store.ErrWatermarkConflict
		},
	}, &mockLedger{}, clk)

	res, err := engine.Settle(context.Background(), NewGuard(clk, 0), Request{HouseholdID: house, Member: member, Rate: decimal.RequireFromString("0.05")})
	if err != nil || res.Outcome != OutcomeMemberGone {
		t.Errorf("Settle() = %+v, %v, want %s", res, err, OutcomeMemberGone)
	}
}

func TestSettle_RequiresMember(t *testing.T) {
	clk := clock.Fake(now)
	engine := NewEngine(&mockMemberRepo{}, &mockLedger{}, clk)
	if _, err := engine.Settle(context.Background(), NewGuard(clk, 0), Request{HouseholdID: house}); !domain.IsValidation(err) {
		t.Errorf("Settle() error = %v, want ValidationError", err)
	}
}

func TestInterestNote(t *testing.T) {
	if got := InterestNote(decimal.RequireFromString("0.025"), 1); got != "Compound interest settled (2.5%, 1 day)" {
		t.Errorf("InterestNote() = %q", got)
	}
}

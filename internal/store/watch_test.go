package store_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/dvloznov/family-bank/internal/store/inmemory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestWatcher_DeliversOnChange(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewStore()
	clk := clock.Fake(time.Unix(0, 0))
	w := store.NewWatcher(repo, clk, time.Second, zerolog.New(io.Discard))

	var mu sync.Mutex
	var sizes []int
	delivered := make(chan struct{}, 10)

	cancel, err := w.SubscribeTransactions(ctx, "h", func(txs []*domain.Transaction) {
		mu.Lock()
		sizes = append(sizes, len(txs))
		mu.Unlock()
		delivered <- struct{}{}
	})
	if err != nil {
		t.Fatalf("SubscribeTransactions: %v", err)
	}
	defer cancel()
	<-delivered

	_ = repo.InsertTransaction(ctx, "h", &domain.Transaction{ID: "t1", MemberID: "m", Type: domain.TypeIncome, Amount: decimal.NewFromInt(1)})
	clk.Advance(time.Second)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery after change")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sizes) != 2 || sizes[0] != 0 || sizes[1] != 1 {
		t.Errorf("sizes = %v, want [0 1]", sizes)
	}
}

func TestWatcher_MemberAbsent(t *testing.T) {
	repo := inmemory.NewStore()
	w := store.NewWatcher(repo, clock.Fake(time.Unix(0, 0)), time.Second, zerolog.New(io.Discard))

	var got *domain.Member
	called := false
	cancel, err := w.SubscribeMember(context.Background(), "h", "ghost", func(m *domain.Member) {
		called = true
		got = m
	})
	if err != nil {
		t.Fatalf("SubscribeMember: %v", err)
	}
	defer cancel()
	if !called || got != nil {
		t.Errorf("initial delivery: called=%v member=%v", called, got)
	}
}

func TestTransactionsFingerprint_OrderIndependent(t *testing.T) {
	a := &domain.Transaction{ID: "a", Type: domain.TypeIncome, Amount: decimal.NewFromInt(1)}
	b := &domain.Transaction{ID: "b", Type: domain.TypeExpense, Amount: decimal.NewFromInt(2)}
	if store.TransactionsFingerprint([]*domain.Transaction{a, b}) != store.TransactionsFingerprint([]*domain.Transaction{b, a}) {
		t.Error("fingerprint depends on order")
	}
}

func TestForMember(t *testing.T) {
	txs := []*domain.Transaction{{ID: "1", MemberID: "x"}, {ID: "2", MemberID: "y"}, {ID: "3", MemberID: "x"}}
	if got := store.ForMember(txs, "x"); len(got) != 2 {
		t.Errorf("ForMember = %d entries, want 2", len(got))
	}
}

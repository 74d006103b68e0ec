package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/rs/zerolog"
)

// Watcher turns any Repository into a Subscriber by polling it and
// delivering a fresh snapshot whenever the data fingerprint changes. The
// SQL backends have no push channel, so they are subscribed through this.
type Watcher struct {
	repo     Repository
	clock    clock.Clock
	interval time.Duration
	log      zerolog.Logger
}

// NewWatcher creates a Watcher polling repo every interval.
func NewWatcher(repo Repository, clk clock.Clock, interval time.Duration, log zerolog.Logger) *Watcher {
	return &Watcher{repo: repo, clock: clk, interval: interval, log: log}
}

// SubscribeTransactions implements Subscriber.
func (w *Watcher) SubscribeTransactions(ctx context.Context, householdID string, fn func([]*domain.Transaction)) (func(), error) {
	return w.poll(ctx, "transactions", func(ctx context.Context) (string, func(), error) {
		txs, err := w.repo.ListTransactions(ctx, householdID)
		if err != nil {
			return "", nil, err
		}
		return TransactionsFingerprint(txs), func() { fn(txs) }, nil
	})
}

// SubscribeMember implements Subscriber.
func (w *Watcher) SubscribeMember(ctx context.Context, householdID, memberID string, fn func(*domain.Member)) (func(), error) {
	return w.poll(ctx, "member", func(ctx context.Context) (string, func(), error) {
		m, err := w.repo.GetMember(ctx, householdID, memberID)
		if errors.Is(err, ErrNotFound) {
			return "absent", func() { fn(nil) }, nil
		}
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%+v", *m), func() { fn(m) }, nil
	})
}

// SubscribeRates implements Subscriber.
func (w *Watcher) SubscribeRates(ctx context.Context, householdID string, fn func(*domain.Rates)) (func(), error) {
	return w.poll(ctx, "rates", func(ctx context.Context) (string, func(), error) {
		r, err := w.repo.GetRates(ctx, householdID)
		if errors.Is(err, ErrNotFound) {
			return "absent", func() { fn(nil) }, nil
		}
		if err != nil {
			return "", nil, err
		}
		return RatesFingerprint(r), func() { fn(r) }, nil
	})
}

func (w *Watcher) poll(ctx context.Context, what string, fetch func(context.Context) (string, func(), error)) (func(), error) {
	last, deliver, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("Watcher: initial %s read: %w", what, err)
	}
	deliver()

	ctx, cancel := context.WithCancel(ctx)
	ticker := w.clock.NewTicker(w.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				next, deliver, err := fetch(ctx)
				if err != nil {
					w.log.Warn().Err(err).Str("collection", what).Msg("Poll failed, keeping last snapshot")
					continue
				}
				if next == last {
					continue
				}
				last = next
				deliver()
			}
		}
	}()

	return cancel, nil
}

// TransactionsFingerprint summarises a transaction set independent of order.
func TransactionsFingerprint(txs []*domain.Transaction) string {
	keys := make([]string, 0, len(txs))
	for _, tx := range txs {
		keys = append(keys, fmt.Sprintf("%s|%s|%s|%s|%d|%s", tx.ID, tx.MemberID, tx.Type, tx.Amount.String(), tx.Timestamp, tx.Note))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}

// RatesFingerprint summarises a rates document.
func RatesFingerprint(r *domain.Rates) string {
	return fmt.Sprintf("%s|%s|%t|%d|%s", r.BaseRate.String(), r.BonusRate.String(), r.IsAutoMode, r.LastMarketUpdate, r.NewsText)
}

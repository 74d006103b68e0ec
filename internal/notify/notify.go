// Package notify delivers transient settlement notices to UI clients.
// Delivery is fire-and-forget: a lost notice is never retried.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification announces that interest was credited to a member.
type Notification struct {
	HouseholdID string          `json:"household_id"`
	MemberID    string          `json:"member_id"`
	Earned      decimal.Decimal `json:"earned"`
	ElapsedDays int64           `json:"elapsed_days"`
	Rate        decimal.Decimal `json:"rate"`
	Timestamp   int64           `json:"timestamp"`
}

// Notifier publishes notifications. Implementations must not block on slow
// consumers.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.log.Info().
		Str("household_id", n.HouseholdID).
		Str("member_id", n.MemberID).
		Str("earned", n.Earned.StringFixed(2)).
		Int64("elapsed_days", n.ElapsedDays).
		Str("rate", n.Rate.String()).
		Msg("Interest credited")
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(context.Context, Notification) error { return nil })

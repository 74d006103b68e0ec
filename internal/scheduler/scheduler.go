// Package scheduler periodically publishes settlement and market drift
// jobs for every configured household.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/jobs"
	"github.com/dvloznov/family-bank/internal/store"
	"github.com/rs/zerolog"
)

// Scheduler publishes one drift job per household and one settlement job
// per member on every tick.
type Scheduler struct {
	members    store.MemberRepository
	publisher  jobs.Publisher
	clock      clock.Clock
	interval   time.Duration
	households []string
	log        zerolog.Logger
}

// New creates a scheduler.
func New(members store.MemberRepository, publisher jobs.Publisher, clk clock.Clock, interval time.Duration, households []string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		members:    members,
		publisher:  publisher,
		clock:      clk,
		interval:   interval,
		households: households,
		log:        log,
	}
}

// Run publishes a round immediately and then once per interval until ctx
// is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("published", n).Msg("Scheduling round incomplete")
		return
	}
	s.log.Debug().Int("published", n).Msg("Scheduling round published")
}

// RunOnce publishes one round of jobs and returns how many were published.
// A household that fails is skipped; the first error is returned.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	published := 0
	var firstErr error
	for _, householdID := range s.households {
		n, err := s.publishHousehold(ctx, householdID)
		published += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return published, firstErr
}

func (s *Scheduler) publishHousehold(ctx context.Context, householdID string) (int, error) {
	if err := s.publisher.Publish(ctx, jobs.NewDriftRatesJob(householdID)); err != nil {
		return 0, fmt.Errorf("publishHousehold: %s: drift job: %w", householdID, err)
	}
	published := 1

	// Drift runs first but is not awaited; settlement may still use the
	// previous rate for this round.
	members, err := s.members.ListMembers(ctx, householdID)
	if err != nil {
		return published, fmt.Errorf("publishHousehold: %s: list members: %w", householdID, err)
	}
	for _, m := range members {
		if err := s.publisher.Publish(ctx, jobs.NewSettleMemberJob(householdID, m.ID)); err != nil {
			return published, fmt.Errorf("publishHousehold: %s: settle job for %s: %w", householdID, m.ID, err)
		}
		published++
	}
	return published, nil
}

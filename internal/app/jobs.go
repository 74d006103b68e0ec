package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/family-bank/internal/jobs"
	jobqueue "github.com/dvloznov/family-bank/internal/jobs/inmemory"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/scheduler"
	"github.com/dvloznov/family-bank/internal/worker"
)

const queueBuffer = 100

// StartJobs starts the settlement queue workers and, when households are
// configured, the scheduler publishing to it. Both stop when ctx is done;
// call Stop on the returned queue to wait for in-flight jobs.
func (a *App) StartJobs(ctx context.Context, store jobs.JobStore) (*jobqueue.Queue, error) {
	queue := jobqueue.NewQueue(queueBuffer, store, a.Clock,
		jobqueue.WithWorkers(a.Config.Scheduler.Workers),
	)

	handler := worker.NewHandler(a.Repo, a.Ledger, a.Rates, a.Engine, a.Guard)
	ctx = logger.WithContext(ctx, a.Log)
	if err := queue.Start(ctx, handler.Handle); err != nil {
		return nil, fmt.Errorf("StartJobs: %w", err)
	}

	households := a.Config.Scheduler.Households
	if len(households) == 0 {
		a.Log.Warn().Msg("No households configured - scheduled settlement is disabled")
		return queue, nil
	}

	sched := scheduler.New(a.Repo, queue, a.Clock, a.Config.Scheduler.Interval, households, a.Log)
	go sched.Run(ctx)

	a.Log.Info().
		Strs("households", households).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("Settlement scheduler started")
	return queue, nil
}

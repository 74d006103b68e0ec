// Package worker executes background jobs: scheduled settlement of every
// member and the daily market drift of household rates.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/jobs"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/rates"
	"github.com/dvloznov/family-bank/internal/settlement"
	"github.com/dvloznov/family-bank/internal/store"
)

// ResultWriteFailed prefixes the result of a settlement job whose write
// failed. Such jobs are not retried by the queue.
const ResultWriteFailed = "write_failed"

// Handler dispatches jobs by type. It owns the settlement guard shared by
// every job it runs, so two queued settlements for the same member never
// overlap inside this process.
type Handler struct {
	members store.MemberRepository
	ledger  settlement.Ledger
	rates   *rates.Provider
	engine  *settlement.Engine
	guard   *settlement.Guard
}

// NewHandler creates a job handler.
func NewHandler(members store.MemberRepository, l settlement.Ledger, r *rates.Provider, engine *settlement.Engine, guard *settlement.Guard) *Handler {
	return &Handler{members: members, ledger: l, rates: r, engine: engine, guard: guard}
}

// Handle implements jobs.JobHandler.
func (h *Handler) Handle(ctx context.Context, job *jobs.Job) error {
	switch job.Type {
	case jobs.JobTypeSettleMember:
		return h.settleMember(ctx, job)
	case jobs.JobTypeDriftRates:
		return h.driftRates(ctx, job)
	default:
		return fmt.Errorf("unexpected job type: %s", job.Type)
	}
}

func (h *Handler) settleMember(ctx context.Context, job *jobs.Job) error {
	log := logger.ForMember(logger.FromContext(ctx), job.HouseholdID, job.MemberID)

	res, err := Settle(ctx, h.members, h.ledger, h.rates, h.engine, h.guard, job.HouseholdID, job.MemberID)
	if errors.Is(err, store.ErrNotFound) {
		job.Result = string(settlement.OutcomeMemberGone)
		return nil
	}
	if domain.IsWriteFailure(err) {
		// The job completes; the next scheduled run or view settles again.
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Settlement write failed")
		job.Result = ResultWriteFailed + ": " + err.Error()
		return nil
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Settlement job failed")
		return err
	}
	job.Result = string(res.Outcome)
	return nil
}

func (h *Handler) driftRates(ctx context.Context, job *jobs.Job) error {
	r, changed, err := h.rates.Refresh(ctx, job.HouseholdID)
	if err != nil {
		return fmt.Errorf("driftRates: %w", err)
	}
	if changed {
		job.Result = "drifted to " + r.BaseRate.String()
	} else {
		job.Result = "unchanged"
	}
	return nil
}

// Settle loads a member, its transactions and the household rate, then
// runs one settlement attempt.
func Settle(ctx context.Context, members store.MemberRepository, l settlement.Ledger, r *rates.Provider, engine *settlement.Engine, guard *settlement.Guard, householdID, memberID string) (*settlement.Result, error) {
	member, err := members.GetMember(ctx, householdID, memberID)
	if err != nil {
		return nil, fmt.Errorf("Settle: load member: %w", err)
	}
	txs, err := l.Transactions(ctx, householdID, memberID)
	if err != nil {
		return nil, fmt.Errorf("Settle: load transactions: %w", err)
	}
	rate, err := r.EffectiveRate(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("Settle: load rates: %w", err)
	}

	return engine.Settle(ctx, guard, settlement.Request{
		HouseholdID:  householdID,
		Member:       member,
		Transactions: txs,
		Rate:         rate,
	})
}

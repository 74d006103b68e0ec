package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/family-bank/internal/clock"
	"github.com/dvloznov/family-bank/internal/jobs"
)

var start = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %s (last %+v, err %v)", jobID, want, job, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitForTimer(t *testing.T, clk *clock.FakeClock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for clk.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("retry timer was never scheduled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, clock.Fake(start), WithWorkers(2))
	defer q.Close()

	if err := q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		job.Result = "credited"
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := jobs.NewSettleMemberJob("house-1", "m1")
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("Publish() did not assign an ID")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Result != "credited" || done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("completed job = %+v", done)
	}
	if !done.CreatedAt.Equal(start) {
		t.Errorf("CreatedAt = %v, want %v", done.CreatedAt, start)
	}
	if done.MaxRetries != jobs.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", done.MaxRetries, jobs.DefaultMaxRetries)
	}
}

func TestQueue_RetriesWithBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Fake(start)
	store := NewStore()
	q := NewQueue(10, store, clk, WithWorkers(1), WithBackoff(time.Minute))
	defer q.Close()

	var calls atomic.Int32
	if err := q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("watermark write timed out")
		}
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := jobs.NewDriftRatesJob("house-1")
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitForStatus(t, store, job.JobID, jobs.JobStatusRetrying)
	waitForTimer(t, clk)
	clk.Advance(time.Minute)

	waitForStatus(t, store, job.JobID, jobs.JobStatusRetrying)
	waitForTimer(t, clk)
	clk.Advance(2 * time.Minute)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", done.RetryCount)
	}
	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, clock.Fake(start), WithWorkers(1))
	defer q.Close()

	if err := q.Start(ctx, func(ctx context.Context, job *jobs.Job) error {
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	job := &jobs.Job{Type: jobs.JobTypeSettleMember, HouseholdID: "house-1", MemberID: "m1", MaxRetries: -1}
	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error != "boom" {
		t.Errorf("Error = %q, want boom", failed.Error)
	}
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, NewStore(), clock.Fake(start))
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := q.Publish(context.Background(), jobs.NewDriftRatesJob("house-1")); err == nil {
		t.Error("Publish() after Stop succeeded")
	}
	if err := q.Start(context.Background(), func(context.Context, *jobs.Job) error { return nil }); err == nil {
		t.Error("Start() after Stop succeeded")
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i, j := range []*jobs.Job{
		{JobID: "a", Type: jobs.JobTypeSettleMember, HouseholdID: "h1", MemberID: "m1", Status: jobs.JobStatusCompleted},
		{JobID: "b", Type: jobs.JobTypeSettleMember, HouseholdID: "h1", MemberID: "m2", Status: jobs.JobStatusFailed},
		{JobID: "c", Type: jobs.JobTypeDriftRates, HouseholdID: "h1", Status: jobs.JobStatusCompleted},
		{JobID: "d", Type: jobs.JobTypeDriftRates, HouseholdID: "h2", Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = start.Add(time.Duration(i) * time.Minute)
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"household newest first", jobs.JobFilter{HouseholdID: "h1"}, []string{"c", "b", "a"}},
		{"by type", jobs.JobFilter{Type: jobs.JobTypeDriftRates}, []string{"d", "c"}},
		{"by member", jobs.JobFilter{MemberID: "m2"}, []string{"b"}},
		{"by status", jobs.JobFilter{HouseholdID: "h1", Status: jobs.JobStatusCompleted}, []string{"c", "a"}},
		{"paged", jobs.JobFilter{Limit: 2, Offset: 1}, []string{"c", "b"}},
		{"offset past end", jobs.JobFilter{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListJobs() returned %d jobs, want %d", len(got), len(tt.want))
			}
			for i, j := range got {
				if j.JobID != tt.want[i] {
					t.Errorf("job %d = %s, want %s", i, j.JobID, tt.want[i])
				}
			}
		})
	}

	if _, err := s.GetJob(ctx, "zzz"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob(unknown) error = %v, want ErrJobNotFound", err)
	}
}

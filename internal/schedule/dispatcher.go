package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"traindeck/internal/types"
)

// DispatchBatchLimit is the maximum number of due jobs fetched per query.
// The loop continues until the due set is drained or stops making progress.
const DispatchBatchLimit = 100

// dispatchLockTTL bounds how long a crashed invocation can hold the cycle
// lease before a later invocation may reclaim it. A healthy invocation
// releases the lease at the end of its cycle, so the TTL never delays the
// normal tick cadence.
const dispatchLockTTL = 5 * time.Minute

// dispatchLockID is the job_locks row key shared by all dispatcher
// invocations.
const dispatchLockID = "dispatch_due"

// DispatcherJobs is the job-store interface the dispatcher needs.
// Implemented by db.JobRepository.
type DispatcherJobs interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*types.JobDescriptor, error)
	MarkDispatched(ctx context.Context, identityKey string, at time.Time) error
}

// DispatcherLocks provides the per-cycle lease. Implemented by
// db.JobLockRepository.
type DispatcherLocks interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobDispatcher abstracts the queue publish. Implemented by
// queue.ReminderTrigger.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job *types.JobDescriptor) error
}

// Dispatcher moves due scheduled jobs onto the reminder queue. It is
// invoked on a fixed EventBridge cadence; the lease keeps overlapping
// invocations from double-dispatching while still letting a crashed
// invocation's work be reclaimed after the TTL.
type Dispatcher struct {
	jobs     DispatcherJobs
	locks    DispatcherLocks
	trigger  JobDispatcher
	workerID string
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. The workerID identifies this
// invocation in the lock table (e.g., the Lambda request ID).
func NewDispatcher(jobs DispatcherJobs, locks DispatcherLocks, trigger JobDispatcher, workerID string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		jobs:     jobs,
		locks:    locks,
		trigger:  trigger,
		workerID: workerID,
		logger:   logger,
	}
}

// DispatchDue publishes every job whose run-at has passed, in batches.
// Per-job failures are logged and skipped; the job stays undispatched and
// is retried on the next cycle. Returns the number of jobs dispatched.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	acquired, err := d.locks.Acquire(ctx, dispatchLockID, d.workerID, dispatchLockTTL)
	if err != nil {
		return 0, fmt.Errorf("acquiring dispatch lock: %w", err)
	}
	if !acquired {
		d.logger.InfoContext(ctx, "dispatch lock held by another worker, skipping cycle")
		return 0, nil
	}
	// Hand the lease back when the cycle ends, whatever the outcome, so the
	// next tick does not have to wait out the TTL. The TTL only covers
	// invocations that die before reaching this point.
	defer func() {
		if err := d.locks.Release(ctx, dispatchLockID, d.workerID); err != nil {
			d.logger.ErrorContext(ctx, "failed to release dispatch lock", "error", err)
		}
	}()

	total := 0
	for {
		due, err := d.jobs.ListDue(ctx, now, DispatchBatchLimit)
		if err != nil {
			return total, fmt.Errorf("listing due jobs: %w", err)
		}
		if len(due) == 0 {
			break
		}

		batchSuccesses := 0
		for _, job := range due {
			if err := d.dispatchOne(ctx, job); err != nil {
				d.logger.ErrorContext(ctx, "failed to dispatch job",
					"identity_key", job.IdentityKey,
					"error", err,
				)
				// Leave the job undispatched; the next cycle retries it.
				continue
			}
			total++
			batchSuccesses++
		}

		if len(due) < DispatchBatchLimit {
			break
		}

		// Safety: if nothing in this batch moved, break to prevent an
		// infinite loop over the same failing rows.
		if batchSuccesses == 0 {
			d.logger.WarnContext(ctx, "no progress in dispatch batch, breaking",
				"batch_size", len(due),
			)
			break
		}
	}

	d.logger.InfoContext(ctx, "dispatch cycle complete", "dispatched", total)
	return total, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, job *types.JobDescriptor) error {
	if err := d.trigger.Dispatch(ctx, job); err != nil {
		return fmt.Errorf("publishing job: %w", err)
	}
	if err := d.jobs.MarkDispatched(ctx, job.IdentityKey, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking dispatched: %w", err)
	}
	return nil
}

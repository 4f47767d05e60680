package db

import (
	"context"
	"encoding/json"
	"time"

	"traindeck/internal/types"
)

// ============================================================
// JobRepository
// ============================================================

// JobRepository provides data access for the scheduled_jobs table: the
// durable registry of deferred reminder jobs. The identity key is the
// primary key, so registration is idempotent at the database level and
// re-processing a domain event can never enqueue a duplicate reminder.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Register inserts a job descriptor using INSERT ... ON CONFLICT DO NOTHING
// on the identity key. Returns whether a new row was created; false means a
// job with the same identity already exists and the registration was a
// no-op.
func (r *JobRepository) Register(ctx context.Context, job *types.JobDescriptor) (bool, error) {
	payload, err := json.Marshal(jobPayload(job))
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal job payload", err)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO scheduled_jobs (identity_key, event, payload, run_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (identity_key) DO NOTHING`,
		job.IdentityKey,
		string(job.Event),
		payload,
		job.RunAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to register scheduled job", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListDue returns up to limit undispatched jobs whose run_at has passed,
// oldest first.
func (r *JobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*types.JobDescriptor, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT identity_key, event, payload, run_at, dispatched_at, created_at
		 FROM scheduled_jobs
		 WHERE run_at <= $1 AND dispatched_at IS NULL
		 ORDER BY run_at, identity_key
		 LIMIT $2`,
		now,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due jobs", err)
	}
	defer rows.Close()

	var jobs []*types.JobDescriptor
	for rows.Next() {
		var (
			job         types.JobDescriptor
			event       string
			payloadJSON []byte
		)
		if err := rows.Scan(&job.IdentityKey, &event, &payloadJSON,
			&job.RunAt, &job.DispatchedAt, &job.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job row", err)
		}
		job.Event = types.LifecycleEvent(event)
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &job.Payload)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job rows", err)
	}

	return jobs, nil
}

// MarkDispatched stamps the job as handed to the queue. The dispatcher
// calls this only after a successful SQS publish; a crash between publish
// and mark re-dispatches the job on the next cycle, so dispatch is
// at-least-once.
func (r *JobRepository) MarkDispatched(ctx context.Context, identityKey string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_jobs SET dispatched_at = $2
		 WHERE identity_key = $1 AND dispatched_at IS NULL`,
		identityKey,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job dispatched", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job already dispatched or missing", nil)
	}
	return nil
}

// DeleteDispatchedBefore purges dispatched jobs older than the cutoff.
// Retention maintenance only; undispatched jobs are never deleted.
func (r *JobRepository) DeleteDispatchedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM scheduled_jobs
		 WHERE dispatched_at IS NOT NULL AND dispatched_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete dispatched jobs", err)
	}
	return tag.RowsAffected(), nil
}

// jobPayload returns the payload map, defaulting to an empty map so the
// JSONB column is never NULL.
func jobPayload(job *types.JobDescriptor) map[string]string {
	if job.Payload != nil {
		return job.Payload
	}
	return map[string]string{}
}

// ============================================================
// JobLockRepository
// ============================================================

// JobLockRepository provides distributed locking via the job_locks table.
// The dispatcher acquires a lease per cycle so overlapping EventBridge
// invocations never double-dispatch the same due jobs. The locking
// mechanism uses INSERT ... ON CONFLICT DO UPDATE to atomically acquire a
// lock only when the existing one has expired.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to insert a lock row. Returns true if acquired, false if
// the lock already exists and has not expired. The expiry is computed as a
// concrete timestamp in Go; Postgres interval parsing does not accept Go's
// duration string format.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	// RowsAffected is 1 if the INSERT succeeded or an expired lock was
	// reclaimed; 0 if another worker still holds the lease.
	return tag.RowsAffected() > 0, nil
}

// Release deletes the lock row, but only when this worker still holds it.
// A lease that was already reclaimed by another worker (or expired and
// deleted) is left alone; that is not an error.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

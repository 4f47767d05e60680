package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"traindeck/internal/types"
)

// Note: mockDBTX and mockRow are defined in inbox_repo_test.go and reused here.

// jobMockRows implements pgx.Rows for the due-job listing query:
// (identity_key, event, payload []byte, run_at, dispatched_at, created_at).
type jobMockRows struct {
	data    []jobRowData
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

type jobRowData struct {
	identityKey  string
	event        string
	payload      []byte
	runAt        time.Time
	dispatchedAt *time.Time
	createdAt    time.Time
}

func (r *jobMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx <= len(r.data)
}

func (r *jobMockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx-1]
	*dest[0].(*string) = row.identityKey
	*dest[1].(*string) = row.event
	*dest[2].(*[]byte) = row.payload
	*dest[3].(*time.Time) = row.runAt
	*dest[4].(**time.Time) = row.dispatchedAt
	*dest[5].(*time.Time) = row.createdAt
	return nil
}

func (r *jobMockRows) Close()                                       { r.closed = true }
func (r *jobMockRows) Err() error                                   { return r.errVal }
func (r *jobMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *jobMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *jobMockRows) RawValues() [][]byte                          { return nil }
func (r *jobMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *jobMockRows) Conn() *pgx.Conn                              { return nil }

// ============================================================
// Register Tests
// ============================================================

func TestJobRepository_Register_NewJob(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)

	var execArgs []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			execArgs = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	created, err := repo.Register(context.Background(), &types.JobDescriptor{
		IdentityKey: "course_starting:crs_1",
		Event:       types.EventCourseStarting,
		Payload:     map[string]string{types.PayloadKeyCourseID: "crs_1"},
		RunAt:       time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, execArgs, 4)
	assert.Equal(t, "course_starting:crs_1", execArgs[0])
	assert.Equal(t, "course_starting", execArgs[1])

	var payload map[string]string
	require.NoError(t, json.Unmarshal(execArgs[2].([]byte), &payload))
	assert.Equal(t, "crs_1", payload[types.PayloadKeyCourseID])
}

func TestJobRepository_Register_DuplicateKey(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	created, err := repo.Register(context.Background(), &types.JobDescriptor{
		IdentityKey: "course_starting:crs_1",
		Event:       types.EventCourseStarting,
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestJobRepository_Register_NilPayloadBecomesEmptyObject(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)

	var execArgs []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			execArgs = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	_, err := repo.Register(context.Background(), &types.JobDescriptor{
		IdentityKey: "course_completed:crs_1",
		Event:       types.EventCourseCompleted,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(execArgs[2].([]byte)))
}

// ============================================================
// ListDue Tests
// ============================================================

func TestJobRepository_ListDue(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)
	now := time.Date(2026, 8, 30, 0, 5, 0, 0, time.UTC)

	rows := &jobMockRows{data: []jobRowData{
		{
			identityKey: "course_starting:crs_1",
			event:       "course_starting",
			payload:     []byte(`{"course_id":"crs_1"}`),
			runAt:       now.Add(-5 * time.Minute),
			createdAt:   now.Add(-48 * time.Hour),
		},
	}}
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{now, 100}).
		Return(rows, nil)

	jobs, err := repo.ListDue(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.EventCourseStarting, jobs[0].Event)
	assert.Equal(t, "crs_1", jobs[0].Payload[types.PayloadKeyCourseID])
	assert.Nil(t, jobs[0].DispatchedAt)
}

func TestJobRepository_ListDue_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListDue(context.Background(), time.Now(), 10)
	require.Error(t, err)
}

// ============================================================
// MarkDispatched Tests
// ============================================================

func TestJobRepository_MarkDispatched(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)
	at := time.Now().UTC()

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"course_starting:crs_1", at}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.MarkDispatched(context.Background(), "course_starting:crs_1", at))
	db.AssertExpectations(t)
}

func TestJobRepository_MarkDispatched_AlreadyDispatched(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkDispatched(context.Background(), "course_starting:crs_1", time.Now())
	require.Error(t, err)
}

// ============================================================
// Cleanup Tests
// ============================================================

func TestJobRepository_DeleteDispatchedBefore(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobRepository(db)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{cutoff}).
		Return(pgconn.NewCommandTag("DELETE 12"), nil)

	deleted, err := repo.DeleteDispatchedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
}

// ============================================================
// JobLockRepository Tests
// ============================================================

func TestJobLockRepository_Acquire(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	acquired, err := repo.Acquire(context.Background(), "dispatch", "worker-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestJobLockRepository_Acquire_HeldByAnotherWorker(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	acquired, err := repo.Acquire(context.Background(), "dispatch", "worker-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestJobLockRepository_Acquire_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.Acquire(context.Background(), "dispatch", "worker-1", time.Minute)
	require.Error(t, err)
}

func TestJobLockRepository_Release(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"dispatch", "worker-1"}).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)

	require.NoError(t, repo.Release(context.Background(), "dispatch", "worker-1"))
	db.AssertExpectations(t)
}

func TestJobLockRepository_Release_AlreadyReclaimed(t *testing.T) {
	// The row belongs to another worker by now; deleting nothing is fine.
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	require.NoError(t, repo.Release(context.Background(), "dispatch", "worker-1"))
}

func TestJobLockRepository_Release_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	require.Error(t, repo.Release(context.Background(), "dispatch", "worker-1"))
}

package db

import (
	"context"

	"traindeck/internal/types"
)

// CourseRepository provides read-only access to the courses and
// course_participants tables. Course CRUD is owned by the platform's
// management API; this engine only ever looks courses up by ID.
type CourseRepository struct {
	db DBTX
}

// NewCourseRepository creates a new CourseRepository backed by the given
// database connection (pool or transaction).
func NewCourseRepository(db DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

// Get loads the minimal course fields the composer needs. Returns
// (nil, nil) when the course does not exist; the composer treats absence as
// a valid outcome and falls back to generic placeholders.
func (r *CourseRepository) Get(ctx context.Context, id string) (*types.Course, error) {
	var c types.Course

	err := r.db.QueryRow(ctx,
		`SELECT id, code, name, start_date, end_date, department_ids, levels, created_by
		 FROM courses WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.StartDate, &c.EndDate,
		&c.DepartmentIDs, &c.Levels, &c.CreatedBy)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get course", err)
	}

	return &c, nil
}

// ParticipantIDs returns the user IDs enrolled in the course. Used by the
// completion reminder to address personalized review prompts.
func (r *CourseRepository) ParticipantIDs(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM course_participants WHERE course_id = $1 ORDER BY user_id`,
		courseID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query course participants", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan participant row", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating participants", err)
	}

	return ids, nil
}

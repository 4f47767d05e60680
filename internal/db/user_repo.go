package db

import (
	"context"

	"traindeck/internal/types"
)

// UserRepository provides read-only access to the users table. User CRUD is
// owned elsewhere; the engine needs display names for personalized
// composition and nothing more.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Get loads a user by ID. Returns (nil, nil) when the user does not exist.
func (r *UserRepository) Get(ctx context.Context, id string) (*types.User, error) {
	var u types.User

	err := r.db.QueryRow(ctx,
		`SELECT id, full_name, department_id, level FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.FullName, &u.DepartmentID, &u.Level)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}

	return &u, nil
}

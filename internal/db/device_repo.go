package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"traindeck/internal/types"
)

// DeviceRepository provides data access for the devices table. Devices are
// the resolver's source of push targets; a deactivated device is invisible
// to every resolution query.
type DeviceRepository struct {
	db DBTX
}

// NewDeviceRepository creates a new DeviceRepository backed by the given
// database connection (pool or transaction).
func NewDeviceRepository(db DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert registers a device token for a user. An existing (user, token)
// pair is reactivated and its platform refreshed; registering a token again
// after it was deactivated makes the device resolvable once more.
func (r *DeviceRepository) Upsert(ctx context.Context, d *types.Device) error {
	if d.ID == "" {
		d.ID = fmt.Sprintf("dev_%s", uuid.New().String())
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO devices (id, user_id, push_token, platform, active, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, NOW())
		 ON CONFLICT (user_id, push_token) DO UPDATE SET
		   platform = EXCLUDED.platform,
		   active = TRUE
		 RETURNING id, created_at`,
		d.ID,
		d.UserID,
		d.PushToken,
		string(d.Platform),
	)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert device", err)
	}
	d.Active = true
	return nil
}

// Delete removes a device owned by the user.
func (r *DeviceRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM devices WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete device", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDevice, "device not found", nil)
	}
	return nil
}

// Deactivate marks a device inactive after its token was reported
// permanently invalid by the push transport. Deactivating an already
// inactive or missing device is a no-op; concurrent jobs may race on the
// same stale device and last-writer-wins is acceptable.
func (r *DeviceRepository) Deactivate(ctx context.Context, deviceID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE devices SET active = FALSE WHERE id = $1`,
		deviceID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate device", err)
	}
	return nil
}

// ListActiveByAudience returns the push targets of all active devices whose
// owners match the audience filters. Non-empty filters combine with AND
// semantics; an empty filter slice contributes no condition. Callers must
// not invoke this with both filters empty (the resolver short-circuits that
// case before reaching the database).
func (r *DeviceRepository) ListActiveByAudience(ctx context.Context, departmentIDs, levels []string) ([]types.PushTarget, error) {
	conditions := []string{"d.active = TRUE"}
	var args []any
	argIdx := 1

	if len(departmentIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("u.department_id = ANY($%d)", argIdx))
		args = append(args, departmentIDs)
		argIdx++
	}
	if len(levels) > 0 {
		conditions = append(conditions, fmt.Sprintf("u.level = ANY($%d)", argIdx))
		args = append(args, levels)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT d.id, d.user_id, d.push_token
		 FROM devices d
		 JOIN users u ON u.id = d.user_id
		 WHERE %s
		 ORDER BY d.created_at, d.id`,
		strings.Join(conditions, " AND "),
	)

	return r.queryTargets(ctx, query, args...)
}

// ListActiveByUsers returns the push targets of all active devices owned by
// the given users. Used for personalized reminders addressed to an explicit
// user list.
func (r *DeviceRepository) ListActiveByUsers(ctx context.Context, userIDs []string) ([]types.PushTarget, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	return r.queryTargets(ctx,
		`SELECT d.id, d.user_id, d.push_token
		 FROM devices d
		 WHERE d.active = TRUE AND d.user_id = ANY($1)
		 ORDER BY d.created_at, d.id`,
		userIDs,
	)
}

func (r *DeviceRepository) queryTargets(ctx context.Context, query string, args ...any) ([]types.PushTarget, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query push targets", err)
	}
	defer rows.Close()

	var targets []types.PushTarget
	for rows.Next() {
		var t types.PushTarget
		if err := rows.Scan(&t.DeviceID, &t.UserID, &t.Token); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan push target", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating push targets", err)
	}

	return targets, nil
}

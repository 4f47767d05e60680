package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"traindeck/internal/types"
)

// DeliveryLogRepository provides data access for the delivery_logs table:
// the append-only audit trail of push attempts. Rows are never updated;
// the only deletion path is retention cleanup after archival.
type DeliveryLogRepository struct {
	db DBTX
}

// NewDeliveryLogRepository creates a new DeliveryLogRepository backed by the
// given database connection (pool or transaction).
func NewDeliveryLogRepository(db DBTX) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Create appends one delivery log row. If the ID is empty, a prefixed UUID
// is generated.
func (r *DeliveryLogRepository) Create(ctx context.Context, l *types.DeliveryLog) error {
	if l.ID == "" {
		l.ID = fmt.Sprintf("dlog_%s", uuid.New().String())
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO delivery_logs
		 (id, message_id, device_id, topic_id, status, error_detail, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		 RETURNING sent_at`,
		l.ID,
		l.MessageID,
		l.DeviceID,
		l.TopicID,
		string(l.Status),
		l.ErrorDetail,
		nilIfZeroTime(l.SentAt),
	)
	if err := row.Scan(&l.SentAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create delivery log", err)
	}
	return nil
}

// ListBefore returns up to limit rows older than the cutoff whose ID sorts
// after afterID, ordered by ID. The (cutoff, afterID) pair forms a keyset
// cursor so retention maintenance can stream the full range page by page.
func (r *DeliveryLogRepository) ListBefore(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*types.DeliveryLog, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, message_id, device_id, topic_id, status, error_detail, sent_at
		 FROM delivery_logs
		 WHERE sent_at < $1 AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		cutoff,
		afterID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list delivery logs", err)
	}
	defer rows.Close()

	var logs []*types.DeliveryLog
	for rows.Next() {
		var (
			l      types.DeliveryLog
			status string
		)
		if err := rows.Scan(&l.ID, &l.MessageID, &l.DeviceID, &l.TopicID,
			&status, &l.ErrorDetail, &l.SentAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery log", err)
		}
		l.Status = types.DeliveryStatus(status)
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating delivery logs", err)
	}

	return logs, nil
}

// DeleteBefore hard-deletes delivery logs older than the cutoff time.
// Called only after the same range has been exported to the archive bucket.
// Returns the count of deleted records.
func (r *DeliveryLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM delivery_logs WHERE sent_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete old delivery logs", err)
	}
	return tag.RowsAffected(), nil
}

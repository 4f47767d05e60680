package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"traindeck/internal/types"
)

// DefaultFanoutChunkSize bounds the number of rows in a single inbox INSERT
// statement. Each chunk is committed independently so a crash mid-fan-out
// leaves a consistent prefix of rows rather than a torn batch.
const DefaultFanoutChunkSize = 1000

// InboxRepository provides data access for the user_notifications table:
// the per-user notification inbox. One row exists per (message, user) pair,
// never per device.
type InboxRepository struct {
	db DBTX
}

// NewInboxRepository creates a new InboxRepository backed by the given
// database connection (pool or transaction).
func NewInboxRepository(db DBTX) *InboxRepository {
	return &InboxRepository{db: db}
}

// BulkCreate inserts one inbox row per user ID for the given message,
// batched in chunks of chunkSize (DefaultFanoutChunkSize when <= 0).
// Each chunk is a single multi-row INSERT executed as its own statement.
// ON CONFLICT DO NOTHING makes re-running an interrupted fan-out safe: the
// already-committed prefix is simply skipped. Returns the number of rows
// actually inserted.
func (r *InboxRepository) BulkCreate(ctx context.Context, messageID string, userIDs []string, sentAt time.Time, chunkSize int) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultFanoutChunkSize
	}

	var inserted int64
	for start := 0; start < len(userIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		chunk := userIDs[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*4+1)
		args = append(args, messageID)
		argIdx := 2
		for _, userID := range chunk {
			values = append(values, fmt.Sprintf("($%d, $1, $%d, $%d)", argIdx, argIdx+1, argIdx+2))
			args = append(args, fmt.Sprintf("un_%s", uuid.New().String()), userID, sentAt)
			argIdx += 3
		}

		query := fmt.Sprintf(
			`INSERT INTO user_notifications (id, message_id, user_id, sent_at)
			 VALUES %s
			 ON CONFLICT (message_id, user_id) DO NOTHING`,
			strings.Join(values, ", "),
		)

		tag, err := r.db.Exec(ctx, query, args...)
		if err != nil {
			return inserted, types.NewAppError(types.ErrCodeInternalDB, "failed to insert inbox chunk", err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

// List returns the user's non-hidden inbox entries joined with message
// content, newest first. The filter narrows to unread or read rows. The
// limit+1 fetch strategy is used to report hasMore without a COUNT query.
func (r *InboxRepository) List(ctx context.Context, userID string, filter types.InboxFilter, limit, offset int) ([]*types.InboxItem, bool, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	readCond := ""
	switch filter {
	case types.InboxFilterUnread:
		readCond = "AND un.is_read = FALSE"
	case types.InboxFilterRead:
		readCond = "AND un.is_read = TRUE"
	}

	query := fmt.Sprintf(
		`SELECT un.id, un.message_id, m.title, m.body, m.data,
		        un.sent_at, un.is_read, un.read_at
		 FROM user_notifications un
		 JOIN messages m ON m.id = un.message_id
		 WHERE un.user_id = $1 AND un.is_hidden = FALSE %s
		 ORDER BY un.sent_at DESC, un.id DESC
		 LIMIT $2 OFFSET $3`,
		readCond,
	)

	rows, err := r.db.Query(ctx, query, userID, limit+1, offset)
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to list inbox", err)
	}
	defer rows.Close()

	var items []*types.InboxItem
	for rows.Next() {
		var (
			item     types.InboxItem
			dataJSON []byte
		)
		if err := rows.Scan(&item.ID, &item.MessageID, &item.Title, &item.Body,
			&dataJSON, &item.SentAt, &item.IsRead, &item.ReadAt); err != nil {
			return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to scan inbox row", err)
		}
		if len(dataJSON) > 0 {
			_ = json.Unmarshal(dataJSON, &item.Data)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "error iterating inbox rows", err)
	}

	hasMore := false
	if len(items) > limit {
		hasMore = true
		items = items[:limit]
	}

	return items, hasMore, nil
}

// UnreadCount returns the number of unread, non-hidden rows for the user.
func (r *InboxRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_notifications
		 WHERE user_id = $1 AND is_read = FALSE AND is_hidden = FALSE`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count unread notifications", err)
	}
	return count, nil
}

// SetRead transitions one inbox row between Unread and Read. The transition
// is idempotent: setting an already-read row to read (or unread to unread)
// affects zero rows and leaves read_at untouched. ReadAt is strictly coupled
// to is_read: set to NOW() on read, cleared to NULL on unread.
//
// Returns not_found_notification when no row with the given ID belongs to
// the user, so ownership violations are indistinguishable from missing rows.
func (r *InboxRepository) SetRead(ctx context.Context, id, userID string, read bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_notifications SET
			is_read = $3,
			read_at = CASE WHEN $3 THEN NOW() ELSE NULL END
		 WHERE id = $1 AND user_id = $2 AND is_read <> $3`,
		id,
		userID,
		read,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update read state", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows means either the row is already in the requested state
	// (no-op) or it does not exist / is not owned by the caller.
	var exists bool
	err = r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_notifications WHERE id = $1 AND user_id = $2)`,
		id,
		userID,
	).Scan(&exists)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check notification existence", err)
	}
	if !exists {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// MarkAllRead transitions every unread, non-hidden row for the user to Read
// in one pass. Returns the number of rows transitioned.
func (r *InboxRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_notifications SET is_read = TRUE, read_at = NOW()
		 WHERE user_id = $1 AND is_read = FALSE AND is_hidden = FALSE`,
		userID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark all read", err)
	}
	return tag.RowsAffected(), nil
}

// Hide sets the is_hidden flag, excluding the row from listings and the
// unread count regardless of read state. There is no reverse operation.
func (r *InboxRepository) Hide(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_notifications SET is_hidden = TRUE
		 WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to hide notification", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

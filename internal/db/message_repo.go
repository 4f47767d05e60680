package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"traindeck/internal/types"
)

// MessageRepository provides data access for the messages table. Messages
// are immutable: the only write is the initial insert performed by the
// fan-out service.
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository creates a new MessageRepository backed by the given
// database connection (pool or transaction).
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message record. If the ID is empty, a prefixed UUID
// is generated. The data map is stored as JSONB.
func (r *MessageRepository) Create(ctx context.Context, m *types.Message) error {
	if m.ID == "" {
		m.ID = fmt.Sprintf("msg_%s", uuid.New().String())
	}

	data, err := json.Marshal(messageData(m))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal message data", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO messages (id, title, body, data, send_type, sender_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		 RETURNING created_at`,
		m.ID,
		m.Title,
		m.Body,
		data,
		string(m.SendType),
		nilIfEmpty(m.SenderID),
		nilIfZeroTime(m.CreatedAt),
	)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create message", err)
	}
	return nil
}

// Get loads a message by ID. Returns (nil, nil) when the message does not
// exist; callers treat absence as a non-exceptional outcome.
func (r *MessageRepository) Get(ctx context.Context, id string) (*types.Message, error) {
	var (
		m        types.Message
		dataJSON []byte
		sendType string
		senderID *string
	)

	err := r.db.QueryRow(ctx,
		`SELECT id, title, body, data, send_type, sender_id, created_at
		 FROM messages WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Title, &m.Body, &dataJSON, &sendType, &senderID, &m.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get message", err)
	}

	m.SendType = types.SendType(sendType)
	if senderID != nil {
		m.SenderID = *senderID
	}
	if len(dataJSON) > 0 {
		_ = json.Unmarshal(dataJSON, &m.Data)
	}
	return &m, nil
}

// messageData returns the JSONB value for a message's data map, defaulting
// to an empty object so the column is never NULL.
func messageData(m *types.Message) map[string]string {
	if m.Data != nil {
		return m.Data
	}
	return map[string]string{}
}

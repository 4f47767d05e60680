// Package types defines the shared domain entities, enums, error taxonomy,
// and messaging envelopes for the Traindeck notification engine. All other
// internal packages depend on types; types depends on nothing internal.
package types

import "time"

// Course is the read-only view of a course that the notification engine
// consumes. The full course aggregate is owned by the CRUD side of the
// platform; this engine only ever loads it by ID.
type Course struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	DepartmentIDs []string  `json:"department_ids"`
	Levels        []string  `json:"levels"`
	CreatedBy     string    `json:"created_by"`
}

// User is the read-only view of a platform user needed for recipient
// resolution and personalized composition.
type User struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	DepartmentID string `json:"department_id"`
	Level        string `json:"level"`
}

// Device is a registered push endpoint owned by a user. A device whose
// token the push transport reports as permanently invalid is deactivated
// and never resolved again.
type Device struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PushToken string    `json:"push_token"`
	Platform  Platform  `json:"platform"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is the shared notification record. Exactly one Message exists per
// notification event; every recipient's inbox row references it. Immutable
// once created.
type Message struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	SendType  SendType          `json:"send_type"`
	SenderID  string            `json:"sender_id"`
	CreatedAt time.Time         `json:"created_at"`
}

// UserNotification is one user's inbox row for one Message. There is exactly
// one row per (message, user) pair regardless of how many devices the user
// owns. IsRead and ReadAt are strictly coupled: read implies a non-nil
// ReadAt, unread implies nil.
type UserNotification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	MessageID string     `json:"message_id"`
	SentAt    time.Time  `json:"sent_at"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	IsHidden  bool       `json:"is_hidden"`
}

// InboxItem is the inbox listing DTO: the user's row joined with the shared
// message content.
type InboxItem struct {
	ID        string            `json:"id"`
	MessageID string            `json:"message_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data"`
	SentAt    time.Time         `json:"sent_at"`
	IsRead    bool              `json:"is_read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
}

// DeliveryLog is the append-only audit row for one attempted push token.
// Exactly one of DeviceID or TopicID is set depending on the send type.
// Rows are never mutated or deleted inside the engine; retention cleanup
// archives and purges them wholesale.
type DeliveryLog struct {
	ID          string         `json:"id"`
	MessageID   string         `json:"message_id"`
	DeviceID    *string        `json:"device_id,omitempty"`
	TopicID     *string        `json:"topic_id,omitempty"`
	Status      DeliveryStatus `json:"status"`
	ErrorDetail *string        `json:"error_detail,omitempty"`
	SentAt      time.Time      `json:"sent_at"`
}

// PushTarget is one resolved (device, token) pair. The resolver may return
// duplicate tokens across devices; deduplication is the push sender's job.
type PushTarget struct {
	DeviceID string
	UserID   string
	Token    string
}

package notify

import (
	"context"

	"traindeck/internal/types"
)

// Inbox paging bounds.
const (
	DefaultInboxLimit = 20
	MaxInboxLimit     = 100
)

// InboxStore is the persistence interface of the inbox service. Implemented
// by db.InboxRepository.
type InboxStore interface {
	List(ctx context.Context, userID string, filter types.InboxFilter, limit, offset int) ([]*types.InboxItem, bool, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	SetRead(ctx context.Context, id, userID string, read bool) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Hide(ctx context.Context, id, userID string) error
}

// InboxPage is one page of a user's inbox, newest first.
type InboxPage struct {
	Items   []*types.InboxItem `json:"items"`
	HasMore bool               `json:"has_more"`
}

// InboxService exposes the per-user notification inbox. Every operation is
// scoped to the acting user; a notification belonging to someone else is
// indistinguishable from one that does not exist.
type InboxService struct {
	store  InboxStore
	logger types.Logger
}

// NewInboxService creates an InboxService.
func NewInboxService(store InboxStore, logger types.Logger) *InboxService {
	return &InboxService{store: store, logger: logger}
}

// List returns a page of the user's visible notifications, filtered by read
// state and ordered newest first.
func (s *InboxService) List(ctx context.Context, userID string, filter types.InboxFilter, limit, offset int) (*InboxPage, error) {
	if filter == "" {
		filter = types.InboxFilterAll
	}
	if !filter.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidFilter, "invalid inbox filter", nil)
	}
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	if limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, hasMore, err := s.store.List(ctx, userID, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.InboxItem{}
	}
	return &InboxPage{Items: items, HasMore: hasMore}, nil
}

// UnreadCount returns the number of visible unread notifications.
func (s *InboxService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

// SetRead marks one notification read or unread. Setting the current state
// again is an idempotent no-op; a notification the user does not own comes
// back as not found.
func (s *InboxService) SetRead(ctx context.Context, userID, notificationID string, read bool) error {
	if notificationID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "notification id is required", nil)
	}
	return s.store.SetRead(ctx, notificationID, userID, read)
}

// MarkAllRead marks every visible unread notification read and returns how
// many rows changed. An empty inbox is a successful zero.
func (s *InboxService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.logger.Info("marked all notifications read", "user_id", userID, "updated", updated)
	}
	return updated, nil
}

// Hide removes a notification from the user's visible inbox. The row and
// its read state are retained; hiding an already-hidden row is a no-op.
func (s *InboxService) Hide(ctx context.Context, userID, notificationID string) error {
	if notificationID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "notification id is required", nil)
	}
	return s.store.Hide(ctx, notificationID, userID)
}

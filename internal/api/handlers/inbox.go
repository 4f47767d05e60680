// Package handlers contains the HTTP handler implementations for the
// Traindeck notification API: the per-user inbox surface, device
// registration, and the course lifecycle event intake.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"traindeck/internal/core"
	"traindeck/internal/notify"
	"traindeck/internal/types"
)

// InboxService defines the inbox operations the handler exposes.
// Mirrors the concrete notify.InboxService methods.
type InboxService interface {
	List(ctx context.Context, userID string, filter types.InboxFilter, limit, offset int) (*notify.InboxPage, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	SetRead(ctx context.Context, userID, notificationID string, read bool) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Hide(ctx context.Context, userID, notificationID string) error
}

// SetReadRequest is the request body for PATCH /v1/inbox/{id}.
type SetReadRequest struct {
	IsRead *bool `json:"is_read" validate:"required"`
}

// UnreadCountResponse is the response body for GET /v1/inbox/unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// MarkAllReadResponse reports how many notifications changed state.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// InboxHandler serves the authenticated user's notification inbox.
type InboxHandler struct {
	inbox     InboxService
	validator *core.Validator
	logger    *slog.Logger
}

// NewInboxHandler creates a new InboxHandler.
func NewInboxHandler(inbox InboxService, v *core.Validator, l *slog.Logger) *InboxHandler {
	if l == nil {
		l = slog.Default()
	}
	return &InboxHandler{inbox: inbox, validator: v, logger: l}
}

// RegisterRoutes mounts the inbox endpoints.
func (h *InboxHandler) RegisterRoutes(r chi.Router) {
	r.Route("/inbox", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/unread-count", h.UnreadCount)
		r.Post("/read-all", h.MarkAllRead)
		r.Patch("/{id}", h.SetRead)
		r.Delete("/{id}", h.Hide)
	})
}

// List handles GET /v1/inbox.
// Query parameters: filter (all|unread|read), limit, offset.
func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	filter := types.InboxFilter(r.URL.Query().Get("filter"))
	limit := parseIntParam(r, "limit", 0)
	offset := parseIntParam(r, "offset", 0)

	page, err := h.inbox.List(r.Context(), actor.UserID, filter, limit, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: page})
}

// UnreadCount handles GET /v1/inbox/unread-count.
func (h *InboxHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	count, err := h.inbox.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: UnreadCountResponse{Count: count}})
}

// SetRead handles PATCH /v1/inbox/{id}.
// Toggles the read state of one notification owned by the caller.
func (h *InboxHandler) SetRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	var req SetReadRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.inbox.SetRead(r.Context(), actor.UserID, id, *req.IsRead); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /v1/inbox/read-all.
func (h *InboxHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	updated, err := h.inbox.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: MarkAllReadResponse{Updated: updated}})
}

// Hide handles DELETE /v1/inbox/{id}.
// The notification disappears from the caller's inbox; the underlying row
// is retained.
func (h *InboxHandler) Hide(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.inbox.Hide(r.Context(), actor.UserID, id); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseIntParam reads a non-negative integer query parameter, returning the
// fallback when absent or malformed. Range clamping happens in the service.
func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

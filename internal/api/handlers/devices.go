package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"traindeck/internal/core"
	"traindeck/internal/types"
)

// DeviceStore defines the device persistence the handler needs.
// Mirrors the concrete db.DeviceRepository methods.
type DeviceStore interface {
	Upsert(ctx context.Context, d *types.Device) error
	Delete(ctx context.Context, id, userID string) error
}

// RegisterDeviceRequest is the request body for PUT /v1/devices.
type RegisterDeviceRequest struct {
	PushToken string `json:"push_token" validate:"required,min=8"`
	Platform  string `json:"platform" validate:"required,oneof=android ios"`
}

// DeviceResponse is the safe device representation returned to clients.
type DeviceResponse struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
}

// DeviceHandler manages push device registration for the calling user.
// Registration is an upsert keyed on (user, token): re-registering the same
// token refreshes the platform and reactivates the device.
type DeviceHandler struct {
	devices   DeviceStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(devices DeviceStore, v *core.Validator, l *slog.Logger) *DeviceHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DeviceHandler{devices: devices, validator: v, logger: l}
}

// RegisterRoutes mounts the device endpoints.
func (h *DeviceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Put("/", h.Register)
		r.Delete("/{id}", h.Unregister)
	})
}

// Register handles PUT /v1/devices.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	var req RegisterDeviceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	device := &types.Device{
		UserID:    actor.UserID,
		PushToken: req.PushToken,
		Platform:  types.Platform(req.Platform),
		Active:    true,
	}
	if err := h.devices.Upsert(r.Context(), device); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "device registered",
		"device_id", device.ID,
		"platform", req.Platform,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: DeviceResponse{
		ID:       device.ID,
		Platform: string(device.Platform),
	}})
}

// Unregister handles DELETE /v1/devices/{id}.
// Only the owning user can remove a device.
func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.devices.Delete(r.Context(), id, actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

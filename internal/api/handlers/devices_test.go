package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindeck/internal/core"
	"traindeck/internal/types"
)

type mockDeviceStore struct {
	upsertFn func(ctx context.Context, d *types.Device) error
	deleteFn func(ctx context.Context, id, userID string) error

	lastUpserted   *types.Device
	lastDeletedID  string
	lastDeleteUser string
}

func (m *mockDeviceStore) Upsert(ctx context.Context, d *types.Device) error {
	d.ID = "dev_test123"
	m.lastUpserted = d
	if m.upsertFn != nil {
		return m.upsertFn(ctx, d)
	}
	return nil
}

func (m *mockDeviceStore) Delete(ctx context.Context, id, userID string) error {
	m.lastDeletedID = id
	m.lastDeleteUser = userID
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, userID)
	}
	return nil
}

func newTestDeviceRouter() (chi.Router, *mockDeviceStore) {
	store := &mockDeviceStore{}
	handler := NewDeviceHandler(store, core.NewValidator(), nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func TestDeviceHandler_Register_Success(t *testing.T) {
	r, store := newTestDeviceRouter()

	body, err := json.Marshal(RegisterDeviceRequest{
		PushToken: "fcm-token-abcdef123456",
		Platform:  "android",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/devices/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := serveWithActor(r, req, "usr_1")

	assert.Equal(t, http.StatusOK, rr.Code)

	upserted := store.lastUpserted
	require.NotNil(t, upserted)
	assert.Equal(t, "usr_1", upserted.UserID)
	assert.Equal(t, types.PlatformAndroid, upserted.Platform)
	assert.True(t, upserted.Active)

	var resp struct {
		Data DeviceResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "dev_test123", resp.Data.ID)
	assert.Equal(t, "android", resp.Data.Platform)
}

func TestDeviceHandler_Register_Validation(t *testing.T) {
	r, store := newTestDeviceRouter()

	cases := []struct {
		name string
		req  RegisterDeviceRequest
	}{
		{"missing token", RegisterDeviceRequest{Platform: "ios"}},
		{"short token", RegisterDeviceRequest{PushToken: "abc", Platform: "ios"}},
		{"bad platform", RegisterDeviceRequest{PushToken: "fcm-token-abcdef", Platform: "windows"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, err := json.Marshal(tc.req)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPut, "/devices/", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rr := serveWithActor(r, req, "usr_1")

			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	assert.Nil(t, store.lastUpserted)
}

func TestDeviceHandler_Register_MissingActor(t *testing.T) {
	r, _ := newTestDeviceRouter()

	body, err := json.Marshal(RegisterDeviceRequest{
		PushToken: "fcm-token-abcdef123456",
		Platform:  "ios",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/devices/", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDeviceHandler_Unregister(t *testing.T) {
	r, store := newTestDeviceRouter()

	req := httptest.NewRequest(http.MethodDelete, "/devices/dev_1", nil)
	rr := serveWithActor(r, req, "usr_1")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "dev_1", store.lastDeletedID)
	assert.Equal(t, "usr_1", store.lastDeleteUser)
}

func TestDeviceHandler_Unregister_NotFound(t *testing.T) {
	store := &mockDeviceStore{
		deleteFn: func(_ context.Context, _, _ string) error {
			return types.NewAppError(types.ErrCodeNotFoundDevice, "device not found", nil)
		},
	}
	handler := NewDeviceHandler(store, core.NewValidator(), nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodDelete, "/devices/dev_missing", nil)
	rr := serveWithActor(r, req, "usr_1")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindeck/internal/core"
	"traindeck/internal/types"
)

type mockScheduler struct {
	createdFn func(ctx context.Context, ev types.CourseCreatedEvent) error

	created   []types.CourseCreatedEvent
	starting  []types.CourseStartingEvent
	ending    []types.CourseEndingEvent
	completed []types.CourseCompletedEvent
}

func (m *mockScheduler) HandleCourseCreated(ctx context.Context, ev types.CourseCreatedEvent) error {
	m.created = append(m.created, ev)
	if m.createdFn != nil {
		return m.createdFn(ctx, ev)
	}
	return nil
}

func (m *mockScheduler) HandleCourseStarting(_ context.Context, ev types.CourseStartingEvent) error {
	m.starting = append(m.starting, ev)
	return nil
}

func (m *mockScheduler) HandleCourseEnding(_ context.Context, ev types.CourseEndingEvent) error {
	m.ending = append(m.ending, ev)
	return nil
}

func (m *mockScheduler) HandleCourseCompleted(_ context.Context, ev types.CourseCompletedEvent) error {
	m.completed = append(m.completed, ev)
	return nil
}

func newTestEventRouter(t *testing.T) (chi.Router, *mockScheduler) {
	t.Helper()
	return newEventRouterInZone(t, "Asia/Ho_Chi_Minh")
}

func newEventRouterInZone(t *testing.T, tz string) (chi.Router, *mockScheduler) {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	require.NoError(t, err)

	scheduler := &mockScheduler{}
	handler := NewEventHandler(scheduler, core.NewValidator(), loc, nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, scheduler
}

func postCourseEvent(t *testing.T, r chi.Router, body CourseEventRequest, userID string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events/course", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return serveWithActor(r, req, userID)
}

func TestEventHandler_CourseCreated(t *testing.T) {
	r, scheduler := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:         "course_created",
		CourseID:      "crs_1",
		DepartmentIDs: []string{"dep_a"},
		Levels:        []string{"junior"},
		CreatedBy:     "usr_admin",
	}, "usr_gateway")

	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, scheduler.created, 1)
	assert.Equal(t, "crs_1", scheduler.created[0].CourseID)
	assert.Equal(t, []string{"dep_a"}, scheduler.created[0].DepartmentIDs)
	assert.Equal(t, "usr_admin", scheduler.created[0].CreatedBy)

	var resp struct {
		Data EventAcceptedResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "course_created", resp.Data.Event)
}

func TestEventHandler_CourseCreated_DefaultsCreatorToActor(t *testing.T) {
	r, scheduler := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:    "course_created",
		CourseID: "crs_1",
	}, "usr_caller")

	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, scheduler.created, 1)
	assert.Equal(t, "usr_caller", scheduler.created[0].CreatedBy)
}

func TestEventHandler_CourseStarting_AcceptsBothDateFormats(t *testing.T) {
	r, scheduler := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:     "course_starting",
		CourseID:  "crs_1",
		StartDate: "2026-09-10T09:00:00Z",
	}, "usr_1")
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = postCourseEvent(t, r, CourseEventRequest{
		Event:     "course_starting",
		CourseID:  "crs_2",
		StartDate: "2026-09-12",
	}, "usr_1")
	assert.Equal(t, http.StatusAccepted, rr.Code)

	require.Len(t, scheduler.starting, 2)
	assert.True(t, scheduler.starting[0].StartDate.Equal(time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)))

	// Plain dates mean local midnight in the organization's timezone.
	ict, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	assert.True(t, scheduler.starting[1].StartDate.Equal(time.Date(2026, 9, 12, 0, 0, 0, 0, ict)))
}

func TestEventHandler_PlainDateParsedWestOfUTC(t *testing.T) {
	// For a zone behind UTC a plain date parsed as UTC midnight would land
	// on the previous local calendar day.
	r, scheduler := newEventRouterInZone(t, "America/New_York")

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:     "course_starting",
		CourseID:  "crs_ny",
		StartDate: "2026-09-12",
	}, "usr_1")
	assert.Equal(t, http.StatusAccepted, rr.Code)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	require.Len(t, scheduler.starting, 1)
	got := scheduler.starting[0].StartDate
	assert.True(t, got.Equal(time.Date(2026, 9, 12, 0, 0, 0, 0, ny)))
	assert.Equal(t, 12, got.In(ny).Day())
}

func TestEventHandler_CourseStarting_MissingDate(t *testing.T) {
	r, scheduler := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:    "course_starting",
		CourseID: "crs_1",
	}, "usr_1")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, scheduler.starting)

	var resp core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrCodeValidationMissingField), resp.Error.Code)
}

func TestEventHandler_CourseEnding_BadDate(t *testing.T) {
	r, _ := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:    "course_ending",
		CourseID: "crs_1",
		EndDate:  "next tuesday",
	}, "usr_1")

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrCodeValidationInvalidDate), resp.Error.Code)
}

func TestEventHandler_CourseCompleted(t *testing.T) {
	r, scheduler := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:    "course_completed",
		CourseID: "crs_1",
	}, "usr_1")

	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, scheduler.completed, 1)
	assert.Equal(t, "crs_1", scheduler.completed[0].CourseID)
}

func TestEventHandler_UnknownEvent(t *testing.T) {
	r, _ := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{
		Event:    "course_archived",
		CourseID: "crs_1",
	}, "usr_1")

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var resp core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrCodeValidationInvalidEvent), resp.Error.Code)
}

func TestEventHandler_MissingFields(t *testing.T) {
	r, _ := newTestEventRouter(t)

	rr := postCourseEvent(t, r, CourseEventRequest{Event: "course_created"}, "usr_1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventHandler_MissingActor(t *testing.T) {
	r, _ := newTestEventRouter(t)

	raw, err := json.Marshal(CourseEventRequest{Event: "course_completed", CourseID: "crs_1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events/course", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

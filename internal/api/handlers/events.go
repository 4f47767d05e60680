package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"traindeck/internal/core"
	"traindeck/internal/types"
)

// LifecycleScheduler defines the event handling contract the intake exposes.
// Mirrors the concrete schedule.LifecycleScheduler methods.
type LifecycleScheduler interface {
	HandleCourseCreated(ctx context.Context, ev types.CourseCreatedEvent) error
	HandleCourseStarting(ctx context.Context, ev types.CourseStartingEvent) error
	HandleCourseEnding(ctx context.Context, ev types.CourseEndingEvent) error
	HandleCourseCompleted(ctx context.Context, ev types.CourseCompletedEvent) error
}

// CourseEventRequest is the request body for POST /v1/events/course. Which
// fields are required depends on the event: starting needs start_date,
// ending needs end_date, created may carry audience filters.
type CourseEventRequest struct {
	Event         string   `json:"event" validate:"required"`
	CourseID      string   `json:"course_id" validate:"required"`
	StartDate     string   `json:"start_date,omitempty"`
	EndDate       string   `json:"end_date,omitempty"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
	Levels        []string `json:"levels,omitempty"`
	CreatedBy     string   `json:"created_by,omitempty"`
}

// EventAcceptedResponse acknowledges an accepted event.
type EventAcceptedResponse struct {
	Event    string `json:"event"`
	CourseID string `json:"course_id"`
}

// EventHandler is the domain event intake: the CRUD side of the platform
// posts course lifecycle transitions here and the scheduler registers the
// matching deferred reminder job. The intake is synchronous only up to job
// registration; delivery happens later in the worker.
type EventHandler struct {
	scheduler LifecycleScheduler
	validator *core.Validator
	loc       *time.Location
	logger    *slog.Logger
}

// NewEventHandler creates a new EventHandler. Plain calendar dates in the
// request body are interpreted in loc, the organization's timezone; parsing
// them in UTC would shift the calendar day for zones west of Greenwich.
func NewEventHandler(scheduler LifecycleScheduler, v *core.Validator, loc *time.Location, l *slog.Logger) *EventHandler {
	if loc == nil {
		loc = time.UTC
	}
	if l == nil {
		l = slog.Default()
	}
	return &EventHandler{scheduler: scheduler, validator: v, loc: loc, logger: l}
}

// RegisterRoutes mounts the event intake endpoint.
func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Post("/events/course", h.HandleCourseEvent)
}

// HandleCourseEvent handles POST /v1/events/course.
func (h *EventHandler) HandleCourseEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthIdentityMissing, "caller identity is required", nil))
		return
	}

	var req CourseEventRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	event := types.LifecycleEvent(req.Event)
	if !event.Valid() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidEvent,
			"event must be one of: course_created, course_starting, course_ending, course_completed",
			nil,
		))
		return
	}

	var err error
	switch event {
	case types.EventCourseCreated:
		createdBy := req.CreatedBy
		if createdBy == "" {
			createdBy = actor.UserID
		}
		err = h.scheduler.HandleCourseCreated(r.Context(), types.CourseCreatedEvent{
			CourseID:      req.CourseID,
			DepartmentIDs: req.DepartmentIDs,
			Levels:        req.Levels,
			CreatedBy:     createdBy,
		})

	case types.EventCourseStarting:
		var start time.Time
		if start, err = h.parseEventDate(req.StartDate, "start_date"); err == nil {
			err = h.scheduler.HandleCourseStarting(r.Context(), types.CourseStartingEvent{
				CourseID:  req.CourseID,
				StartDate: start,
			})
		}

	case types.EventCourseEnding:
		var end time.Time
		if end, err = h.parseEventDate(req.EndDate, "end_date"); err == nil {
			err = h.scheduler.HandleCourseEnding(r.Context(), types.CourseEndingEvent{
				CourseID: req.CourseID,
				EndDate:  end,
			})
		}

	case types.EventCourseCompleted:
		err = h.scheduler.HandleCourseCompleted(r.Context(), types.CourseCompletedEvent{
			CourseID: req.CourseID,
		})
	}

	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: EventAcceptedResponse{
		Event:    req.Event,
		CourseID: req.CourseID,
	}})
}

// parseEventDate parses a date field accepted as either RFC 3339 (which
// carries its own offset) or a plain calendar date (2006-01-02), which is
// taken as local midnight in the organization's timezone.
func (h *EventHandler) parseEventDate(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			field+" is required for this event",
			nil,
		)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, h.loc); err == nil {
		return t, nil
	}
	return time.Time{}, types.NewAppError(
		types.ErrCodeValidationInvalidDate,
		field+" must be an RFC 3339 timestamp or a 2006-01-02 date",
		nil,
	)
}

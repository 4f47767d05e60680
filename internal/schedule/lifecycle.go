package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"traindeck/internal/config"
	"traindeck/internal/types"
)

// JobRegistry is the minimal persistence interface the lifecycle scheduler
// needs: idempotent registration of deferred job descriptors. Implemented
// by db.JobRepository.
type JobRegistry interface {
	// Register inserts the descriptor unless one with the same identity key
	// already exists. Returns whether a new row was created.
	Register(ctx context.Context, job *types.JobDescriptor) (bool, error)
}

// LifecycleScheduler reacts to course domain events by computing a run-at
// time and registering exactly one deferred reminder job per qualifying
// event. It never touches messages, inboxes, or delivery logs; all of that
// happens later, inside the reminder worker.
type LifecycleScheduler struct {
	registry JobRegistry
	clock    types.Clock
	loc      *time.Location
	leadDays int
	delay    time.Duration
	logger   types.Logger
}

// NewLifecycleScheduler creates a LifecycleScheduler from the notify
// configuration. The configured timezone must be a valid IANA name.
func NewLifecycleScheduler(registry JobRegistry, cfg config.NotifyConfig, clock types.Clock, logger types.Logger) (*LifecycleScheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid timezone %q: %w", cfg.Timezone, err)
	}
	return &LifecycleScheduler{
		registry: registry,
		clock:    clock,
		loc:      loc,
		leadDays: cfg.ReminderLeadDays,
		delay:    cfg.CreatedDelay,
		logger:   logger,
	}, nil
}

// IdentityKey derives the deterministic job identity for an (event, course)
// pair. Re-processing the same domain event always produces the same key,
// which the registry's ON CONFLICT guard turns into a no-op.
func IdentityKey(event types.LifecycleEvent, courseID string) string {
	return fmt.Sprintf("%s:%s", event, courseID)
}

// HandleCourseCreated registers a near-immediate announcement job. The
// short delay decouples the CRUD request from the fan-out work; the
// audience filters travel in the payload because they are part of the event
// rather than the course row.
func (s *LifecycleScheduler) HandleCourseCreated(ctx context.Context, ev types.CourseCreatedEvent) error {
	payload := map[string]string{
		types.PayloadKeyCourseID:      ev.CourseID,
		types.PayloadKeyDepartmentIDs: strings.Join(ev.DepartmentIDs, ","),
		types.PayloadKeyLevels:        strings.Join(ev.Levels, ","),
		types.PayloadKeyCreatedBy:     ev.CreatedBy,
	}
	runAt := s.clock.Now().Add(s.delay)
	return s.register(ctx, types.EventCourseCreated, ev.CourseID, payload, runAt)
}

// HandleCourseStarting registers a start-date reminder at midnight local
// time, leadDays before the start date. A trigger date on or after today
// registers even when the midnight itself has passed (the dispatcher
// delivers it on its next cycle); only a trigger date before today is
// silently skipped.
func (s *LifecycleScheduler) HandleCourseStarting(ctx context.Context, ev types.CourseStartingEvent) error {
	runAt := TriggerTime(ev.StartDate, s.leadDays, s.loc)
	if Elapsed(runAt, s.clock.Now(), s.loc) {
		s.logger.Info("reminder window already passed, skipping registration",
			"event", string(types.EventCourseStarting),
			"course_id", ev.CourseID,
			"run_at", runAt.Format(time.RFC3339),
		)
		return nil
	}
	payload := map[string]string{types.PayloadKeyCourseID: ev.CourseID}
	return s.register(ctx, types.EventCourseStarting, ev.CourseID, payload, runAt)
}

// HandleCourseEnding registers an end-date reminder, same policy as
// HandleCourseStarting.
func (s *LifecycleScheduler) HandleCourseEnding(ctx context.Context, ev types.CourseEndingEvent) error {
	runAt := TriggerTime(ev.EndDate, s.leadDays, s.loc)
	if Elapsed(runAt, s.clock.Now(), s.loc) {
		s.logger.Info("reminder window already passed, skipping registration",
			"event", string(types.EventCourseEnding),
			"course_id", ev.CourseID,
			"run_at", runAt.Format(time.RFC3339),
		)
		return nil
	}
	payload := map[string]string{types.PayloadKeyCourseID: ev.CourseID}
	return s.register(ctx, types.EventCourseEnding, ev.CourseID, payload, runAt)
}

// HandleCourseCompleted registers a near-immediate review-prompt job for
// the course participants.
func (s *LifecycleScheduler) HandleCourseCompleted(ctx context.Context, ev types.CourseCompletedEvent) error {
	payload := map[string]string{types.PayloadKeyCourseID: ev.CourseID}
	runAt := s.clock.Now().Add(s.delay)
	return s.register(ctx, types.EventCourseCompleted, ev.CourseID, payload, runAt)
}

func (s *LifecycleScheduler) register(ctx context.Context, event types.LifecycleEvent, courseID string, payload map[string]string, runAt time.Time) error {
	job := &types.JobDescriptor{
		IdentityKey: IdentityKey(event, courseID),
		Event:       event,
		Payload:     payload,
		RunAt:       runAt,
	}

	created, err := s.registry.Register(ctx, job)
	if err != nil {
		return fmt.Errorf("register %s: %w", job.IdentityKey, err)
	}

	if created {
		s.logger.Info("reminder job registered",
			"identity_key", job.IdentityKey,
			"run_at", runAt.Format(time.RFC3339),
		)
	} else {
		s.logger.Info("reminder job already registered, ignoring",
			"identity_key", job.IdentityKey,
		)
	}

	return nil
}

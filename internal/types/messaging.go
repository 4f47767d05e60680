package types

import "time"

// Payload keys shared between job registration and the reminder worker.
// The deferred job payload is deliberately a flat string map so the durable
// scheduler never has to understand domain types.
const (
	PayloadKeyCourseID      = "course_id"
	PayloadKeyDepartmentIDs = "department_ids" // comma-separated
	PayloadKeyLevels        = "levels"         // comma-separated
	PayloadKeyCreatedBy     = "created_by"
)

// JobDescriptor is the durable deferred-job record owned by the scheduler.
// IdentityKey is unique per (event type, course); re-registering the same
// key is a no-op, which makes event re-processing safe.
type JobDescriptor struct {
	IdentityKey  string            `json:"identity_key"`
	Event        LifecycleEvent    `json:"event"`
	Payload      map[string]string `json:"payload"`
	RunAt        time.Time         `json:"run_at"`
	DispatchedAt *time.Time        `json:"dispatched_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ReminderJob is the SQS payload sent from the dispatcher to the reminder
// worker once a job's run-at time has passed. It carries the minimum the
// worker needs: the job identity and the flat payload map.
type ReminderJob struct {
	IdentityKey string            `json:"identity_key"`
	Event       LifecycleEvent    `json:"event"`
	Payload     map[string]string `json:"payload"`

	// Observability
	TraceID      string    `json:"trace_id"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// CourseCreatedEvent is emitted by the CRUD side when a course is created.
type CourseCreatedEvent struct {
	CourseID      string   `json:"course_id"`
	DepartmentIDs []string `json:"department_ids"`
	Levels        []string `json:"levels"`
	CreatedBy     string   `json:"created_by"`
}

// CourseStartingEvent is emitted when a course gains a confirmed start date.
type CourseStartingEvent struct {
	CourseID  string    `json:"course_id"`
	StartDate time.Time `json:"start_date"`
}

// CourseEndingEvent is emitted when a course gains a confirmed end date.
type CourseEndingEvent struct {
	CourseID string    `json:"course_id"`
	EndDate  time.Time `json:"end_date"`
}

// CourseCompletedEvent is emitted when a course transitions to completed.
type CourseCompletedEvent struct {
	CourseID string `json:"course_id"`
}

package notify

import (
	"context"
	"fmt"
	"strings"

	"traindeck/internal/types"
)

// Resolver maps audiences to push targets. Implemented by RecipientResolver.
type Resolver interface {
	ResolveAudience(ctx context.Context, departmentIDs, levels []string) ([]types.PushTarget, error)
	ResolveUsers(ctx context.Context, userIDs []string) ([]types.PushTarget, error)
}

// ContentComposer builds per-scenario notification content. Implemented by
// Composer.
type ContentComposer interface {
	CourseCreated(ctx context.Context, courseID string) (*Content, error)
	CourseStartingSoon(ctx context.Context, courseID string) (*Content, error)
	CourseEndingSoon(ctx context.Context, courseID string) (*Content, error)
	CourseReviewReminder(ctx context.Context, courseID, displayName string) (*Content, error)
}

// FanoutSender runs the delivery fan-out. Implemented by Fanout.
type FanoutSender interface {
	Send(ctx context.Context, event types.LifecycleEvent, content *Content, senderID string, targets []types.PushTarget) (*FanoutResult, error)
}

// CourseSource is the course lookup the runner needs. Implemented by
// db.CourseRepository.
type CourseSource interface {
	Get(ctx context.Context, id string) (*types.Course, error)
	ParticipantIDs(ctx context.Context, courseID string) ([]string, error)
}

// UserSource is the user lookup used for personalized reminders.
// Implemented by db.UserRepository.
type UserSource interface {
	Get(ctx context.Context, id string) (*types.User, error)
}

// JobRunner executes reminder jobs delivered by the scheduler queue. Each
// job resolves its recipients, composes the scenario content and hands off
// to the fan-out service. A returned error leaves the queue message visible
// for redelivery.
type JobRunner struct {
	resolver Resolver
	composer ContentComposer
	fanout   FanoutSender
	courses  CourseSource
	users    UserSource
	logger   types.Logger
}

// NewJobRunner creates a JobRunner.
func NewJobRunner(resolver Resolver, composer ContentComposer, fanout FanoutSender, courses CourseSource, users UserSource, logger types.Logger) *JobRunner {
	return &JobRunner{
		resolver: resolver,
		composer: composer,
		fanout:   fanout,
		courses:  courses,
		users:    users,
		logger:   logger,
	}
}

// Run dispatches one reminder job to its scenario handler.
func (j *JobRunner) Run(ctx context.Context, job *types.ReminderJob) error {
	courseID := job.Payload[types.PayloadKeyCourseID]
	if courseID == "" {
		// A job without a course reference can never succeed; drop it
		// instead of poisoning the queue.
		j.logger.Error("reminder job missing course id, dropping",
			"identity_key", job.IdentityKey,
		)
		return nil
	}

	switch job.Event {
	case types.EventCourseCreated:
		return j.runCourseCreated(ctx, job, courseID)
	case types.EventCourseStarting:
		return j.runDateReminder(ctx, job, courseID, j.composer.CourseStartingSoon)
	case types.EventCourseEnding:
		return j.runDateReminder(ctx, job, courseID, j.composer.CourseEndingSoon)
	case types.EventCourseCompleted:
		return j.runCourseCompleted(ctx, job, courseID)
	default:
		j.logger.Error("unknown reminder job event, dropping",
			"identity_key", job.IdentityKey,
			"event", string(job.Event),
		)
		return nil
	}
}

// runCourseCreated announces a new course to the audience carried in the
// job payload. The filters travel with the event rather than the course row
// because the announcement audience is fixed at creation time.
func (j *JobRunner) runCourseCreated(ctx context.Context, job *types.ReminderJob, courseID string) error {
	departments := splitList(job.Payload[types.PayloadKeyDepartmentIDs])
	levels := splitList(job.Payload[types.PayloadKeyLevels])

	targets, err := j.resolver.ResolveAudience(ctx, departments, levels)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.IdentityKey, err)
	}

	content, err := j.composer.CourseCreated(ctx, courseID)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.IdentityKey, err)
	}

	senderID := job.Payload[types.PayloadKeyCreatedBy]
	if _, err := j.fanout.Send(ctx, job.Event, content, senderID, targets); err != nil {
		return fmt.Errorf("job %s: %w", job.IdentityKey, err)
	}
	return nil
}

// runDateReminder handles the start-date and end-date reminders. The
// audience comes from the current course row: if the course was retargeted
// after scheduling, the reminder follows the latest filters, and if it was
// deleted the job completes without sending.
func (j *JobRunner) runDateReminder(ctx context.Context, job *types.ReminderJob, courseID string, compose func(context.Context, string) (*Content, error)) error {
	course, err := j.courses.Get(ctx, courseID)
	if err != nil {
		return fmt.Errorf("job %s: loading course: %w", job.IdentityKey, err)
	}
	if course == nil {
		j.logger.Info("course no longer exists, skipping reminder",
			"identity_key", job.IdentityKey,
			"course_id", courseID,
		)
		return nil
	}

	targets, err := j.resolver.ResolveAudience(ctx, course.DepartmentIDs, course.Levels)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.IdentityKey, err)
	}

	content, err := compose(ctx, courseID)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.IdentityKey, err)
	}

	if _, err := j.fanout.Send(ctx, job.Event, content, course.CreatedBy, targets); err != nil {
		return fmt.Errorf("job %s: %w", job.IdentityKey, err)
	}
	return nil
}

// runCourseCompleted sends each participant a personalized review prompt.
// One fan-out per participant: the message body carries their name, so no
// single shared record can serve the whole group. Per-participant failures
// are logged and the rest continue; the job only fails when every
// participant failed, so redelivery cannot silently drop the stragglers
// while a partial success avoids re-notifying everyone.
func (j *JobRunner) runCourseCompleted(ctx context.Context, job *types.ReminderJob, courseID string) error {
	participants, err := j.courses.ParticipantIDs(ctx, courseID)
	if err != nil {
		return fmt.Errorf("job %s: loading participants: %w", job.IdentityKey, err)
	}
	if len(participants) == 0 {
		j.logger.Info("course has no participants, skipping review prompts",
			"identity_key", job.IdentityKey,
			"course_id", courseID,
		)
		return nil
	}

	failures := 0
	for _, userID := range participants {
		if err := j.sendReviewPrompt(ctx, job, courseID, userID); err != nil {
			failures++
			j.logger.Error("review prompt failed",
				"identity_key", job.IdentityKey,
				"user_id", userID,
				"error", err.Error(),
			)
		}
	}

	if failures == len(participants) {
		return fmt.Errorf("job %s: all %d review prompts failed", job.IdentityKey, failures)
	}
	return nil
}

func (j *JobRunner) sendReviewPrompt(ctx context.Context, job *types.ReminderJob, courseID, userID string) error {
	user, err := j.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	displayName := ""
	if user != nil {
		displayName = user.FullName
	}

	targets, err := j.resolver.ResolveUsers(ctx, []string{userID})
	if err != nil {
		return err
	}

	content, err := j.composer.CourseReviewReminder(ctx, courseID, displayName)
	if err != nil {
		return err
	}

	_, err = j.fanout.Send(ctx, job.Event, content, "", targets)
	return err
}

// splitList parses the comma-joined list format used in job payloads.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

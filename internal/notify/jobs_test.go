package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindeck/internal/types"
)

type mockResolver struct {
	audienceDepts  []string
	audienceLevels []string
	userQueries    [][]string
	targets        []types.PushTarget
	err            error
}

func (m *mockResolver) ResolveAudience(_ context.Context, departmentIDs, levels []string) ([]types.PushTarget, error) {
	m.audienceDepts = departmentIDs
	m.audienceLevels = levels
	return m.targets, m.err
}

func (m *mockResolver) ResolveUsers(_ context.Context, userIDs []string) ([]types.PushTarget, error) {
	m.userQueries = append(m.userQueries, userIDs)
	return m.targets, m.err
}

// mockComposer records which scenario was composed.
type mockComposer struct {
	scenario    string
	displayName string
	err         error
}

func (m *mockComposer) compose(scenario string) (*Content, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.scenario = scenario
	return &Content{Title: scenario, Body: "body", Data: map[string]string{}}, nil
}

func (m *mockComposer) CourseCreated(_ context.Context, _ string) (*Content, error) {
	return m.compose("created")
}

func (m *mockComposer) CourseStartingSoon(_ context.Context, _ string) (*Content, error) {
	return m.compose("starting")
}

func (m *mockComposer) CourseEndingSoon(_ context.Context, _ string) (*Content, error) {
	return m.compose("ending")
}

func (m *mockComposer) CourseReviewReminder(_ context.Context, _ string, displayName string) (*Content, error) {
	m.displayName = displayName
	return m.compose("review")
}

type sentFanout struct {
	event    types.LifecycleEvent
	senderID string
	targets  []types.PushTarget
}

type mockFanout struct {
	sent   []sentFanout
	failOn int // 1-based call index to fail, 0 = never
	calls  int
	err    error
}

func (m *mockFanout) Send(_ context.Context, event types.LifecycleEvent, _ *Content, senderID string, targets []types.PushTarget) (*FanoutResult, error) {
	m.calls++
	if m.err != nil && (m.failOn == 0 || m.failOn == m.calls) {
		return nil, m.err
	}
	m.sent = append(m.sent, sentFanout{event: event, senderID: senderID, targets: targets})
	return &FanoutResult{}, nil
}

type mockCourseSource struct {
	course       *types.Course
	participants []string
	err          error
}

func (m *mockCourseSource) Get(_ context.Context, _ string) (*types.Course, error) {
	return m.course, m.err
}

func (m *mockCourseSource) ParticipantIDs(_ context.Context, _ string) ([]string, error) {
	return m.participants, m.err
}

type mockUserSource struct {
	users map[string]*types.User
	err   error
}

func (m *mockUserSource) Get(_ context.Context, id string) (*types.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

type runnerFixture struct {
	resolver *mockResolver
	composer *mockComposer
	fanout   *mockFanout
	courses  *mockCourseSource
	users    *mockUserSource
	runner   *JobRunner
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		resolver: &mockResolver{},
		composer: &mockComposer{},
		fanout:   &mockFanout{},
		courses:  &mockCourseSource{},
		users:    &mockUserSource{users: map[string]*types.User{}},
	}
	f.runner = NewJobRunner(f.resolver, f.composer, f.fanout, f.courses, f.users, nopLogger{})
	return f
}

func TestRun_MissingCourseIDDropsJob(t *testing.T) {
	f := newRunnerFixture()

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_created:?",
		Event:       types.EventCourseCreated,
		Payload:     map[string]string{},
	})
	require.NoError(t, err)
	assert.Zero(t, f.fanout.calls)
}

func TestRun_UnknownEventDropsJob(t *testing.T) {
	f := newRunnerFixture()

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_archived:crs_1",
		Event:       types.LifecycleEvent("course_archived"),
		Payload:     map[string]string{types.PayloadKeyCourseID: "crs_1"},
	})
	require.NoError(t, err)
	assert.Zero(t, f.fanout.calls)
}

func TestRun_CourseCreatedUsesPayloadAudience(t *testing.T) {
	f := newRunnerFixture()
	f.resolver.targets = []types.PushTarget{{DeviceID: "dev_1", UserID: "usr_1", Token: "tok_1"}}

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_created:crs_1",
		Event:       types.EventCourseCreated,
		Payload: map[string]string{
			types.PayloadKeyCourseID:      "crs_1",
			types.PayloadKeyDepartmentIDs: "dep_a, dep_b,",
			types.PayloadKeyLevels:        "junior",
			types.PayloadKeyCreatedBy:     "usr_admin",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"dep_a", "dep_b"}, f.resolver.audienceDepts)
	assert.Equal(t, []string{"junior"}, f.resolver.audienceLevels)
	assert.Equal(t, "created", f.composer.scenario)

	require.Len(t, f.fanout.sent, 1)
	assert.Equal(t, types.EventCourseCreated, f.fanout.sent[0].event)
	assert.Equal(t, "usr_admin", f.fanout.sent[0].senderID)
}

func TestRun_DateReminderUsesCurrentCourseRow(t *testing.T) {
	f := newRunnerFixture()
	f.courses.course = &types.Course{
		ID:            "crs_1",
		Name:          "Go Basics",
		DepartmentIDs: []string{"dep_new"},
		Levels:        []string{"senior"},
		CreatedBy:     "usr_owner",
	}

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_starting:crs_1",
		Event:       types.EventCourseStarting,
		Payload:     map[string]string{types.PayloadKeyCourseID: "crs_1"},
	})
	require.NoError(t, err)

	// The audience follows the course row at send time, not the payload.
	assert.Equal(t, []string{"dep_new"}, f.resolver.audienceDepts)
	assert.Equal(t, "starting", f.composer.scenario)
	require.Len(t, f.fanout.sent, 1)
	assert.Equal(t, "usr_owner", f.fanout.sent[0].senderID)
}

func TestRun_DateReminderSkipsDeletedCourse(t *testing.T) {
	f := newRunnerFixture()
	f.courses.course = nil

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_ending:crs_gone",
		Event:       types.EventCourseEnding,
		Payload:     map[string]string{types.PayloadKeyCourseID: "crs_gone"},
	})
	require.NoError(t, err)
	assert.Zero(t, f.fanout.calls)
}

func TestRun_CourseCompletedPromptsEachParticipant(t *testing.T) {
	f := newRunnerFixture()
	f.courses.participants = []string{"usr_1", "usr_2"}
	f.users.users = map[string]*types.User{
		"usr_1": {ID: "usr_1", FullName: "Linh"},
	}

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_completed:crs_1",
		Event:       types.EventCourseCompleted,
		Payload:     map[string]string{types.PayloadKeyCourseID: "crs_1"},
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"usr_1"}, {"usr_2"}}, f.resolver.userQueries)
	assert.Len(t, f.fanout.sent, 2)
	// The last composed prompt belongs to usr_2, who has no user row.
	assert.Equal(t, "", f.composer.displayName)
}

func TestRun_CourseCompletedPartialFailureSucceeds(t *testing.T) {
	f := newRunnerFixture()
	f.courses.participants = []string{"usr_1", "usr_2"}
	f.fanout.err = errors.New("sns unavailable")
	f.fanout.failOn = 1

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_completed:crs_1",
		Event:       types.EventCourseCompleted,
		Payload:     map[string]string{types.PayloadKeyCourseID: "crs_1"},
	})
	require.NoError(t, err)
	assert.Len(t, f.fanout.sent, 1)
}

func TestRun_CourseCompletedTotalFailureErrors(t *testing.T) {
	f := newRunnerFixture()
	f.courses.participants = []string{"usr_1", "usr_2"}
	f.fanout.err = errors.New("sns unavailable")

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_completed:crs_1",
		Event:       types.EventCourseCompleted,
		Payload:     map[string]string{types.PayloadKeyCourseID: "crs_1"},
	})
	require.Error(t, err)
}

func TestRun_ResolverErrorPropagatesForRedelivery(t *testing.T) {
	f := newRunnerFixture()
	f.resolver.err = errors.New("db down")

	err := f.runner.Run(context.Background(), &types.ReminderJob{
		IdentityKey: "course_created:crs_1",
		Event:       types.EventCourseCreated,
		Payload: map[string]string{
			types.PayloadKeyCourseID:      "crs_1",
			types.PayloadKeyDepartmentIDs: "dep_a",
		},
	})
	require.Error(t, err)
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"traindeck/internal/types"
)

// Deep-link discriminator carried in every push payload so the mobile client
// can route taps to the course detail screen.
const payloadTypeCourseDetail = "CourseDetail"

// Fallbacks used when a course row is missing or a display name is blank.
// Notifications must still compose for courses deleted between scheduling
// and dispatch.
const (
	fallbackCourseName  = "the course"
	fallbackDisplayName = "there"
)

// CourseReader is the read-only course lookup the composer needs.
// Implemented by db.CourseRepository. Absence is a valid outcome.
type CourseReader interface {
	Get(ctx context.Context, id string) (*types.Course, error)
}

// Content is a composed notification payload, ready for both the shared
// message record and the push channel.
type Content struct {
	Title string
	Body  string
	Data  map[string]string
}

// Composer builds per-scenario notification content from minimal course
// fields. It is read-only: no message or inbox writes happen here.
type Composer struct {
	courses CourseReader
}

// NewComposer creates a Composer backed by the given course lookup.
func NewComposer(courses CourseReader) *Composer {
	return &Composer{courses: courses}
}

// CourseCreated composes the announcement sent when a new course opens.
func (c *Composer) CourseCreated(ctx context.Context, courseID string) (*Content, error) {
	name, err := c.courseName(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return &Content{
		Title: "New course available",
		Body:  fmt.Sprintf("%s is now open for enrollment.", capitalize(name)),
		Data:  courseData(courseID),
	}, nil
}

// CourseStartingSoon composes the start-date reminder.
func (c *Composer) CourseStartingSoon(ctx context.Context, courseID string) (*Content, error) {
	name, err := c.courseName(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return &Content{
		Title: "Course starting soon",
		Body:  fmt.Sprintf("%s starts in 2 days. Get ready!", capitalize(name)),
		Data:  courseData(courseID),
	}, nil
}

// CourseEndingSoon composes the end-date reminder.
func (c *Composer) CourseEndingSoon(ctx context.Context, courseID string) (*Content, error) {
	name, err := c.courseName(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return &Content{
		Title: "Course ending soon",
		Body:  fmt.Sprintf("%s ends in 2 days. Don't forget to finish your work.", capitalize(name)),
		Data:  courseData(courseID),
	}, nil
}

// CourseReviewReminder composes the personalized post-completion review
// prompt. A blank display name falls back to a generic greeting.
func (c *Composer) CourseReviewReminder(ctx context.Context, courseID, displayName string) (*Content, error) {
	name, err := c.courseName(ctx, courseID)
	if err != nil {
		return nil, err
	}
	who := strings.TrimSpace(displayName)
	if who == "" {
		who = fallbackDisplayName
	}
	return &Content{
		Title: "How was your course?",
		Body:  fmt.Sprintf("Hi %s, please take a moment to review %s.", who, name),
		Data:  courseData(courseID),
	}, nil
}

// courseName loads the course and returns its name, falling back to a
// generic placeholder when the row is absent or the name is blank.
func (c *Composer) courseName(ctx context.Context, courseID string) (string, error) {
	course, err := c.courses.Get(ctx, courseID)
	if err != nil {
		return "", fmt.Errorf("loading course %s: %w", courseID, err)
	}
	if course == nil || strings.TrimSpace(course.Name) == "" {
		return fallbackCourseName, nil
	}
	return course.Name, nil
}

func courseData(courseID string) map[string]string {
	return map[string]string{
		"type":      payloadTypeCourseDetail,
		"course_id": courseID,
	}
}

// capitalize upper-cases the first rune. Course names are frequently
// Vietnamese, so byte slicing would mangle a multibyte first letter.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

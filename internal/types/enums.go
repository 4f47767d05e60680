package types

// LifecycleEvent identifies a course lifecycle transition that can trigger
// a notification reminder.
type LifecycleEvent string

const (
	EventCourseCreated   LifecycleEvent = "course_created"
	EventCourseStarting  LifecycleEvent = "course_starting"
	EventCourseEnding    LifecycleEvent = "course_ending"
	EventCourseCompleted LifecycleEvent = "course_completed"
)

// Valid reports whether the event is one of the known lifecycle events.
func (e LifecycleEvent) Valid() bool {
	switch e {
	case EventCourseCreated, EventCourseStarting, EventCourseEnding, EventCourseCompleted:
		return true
	}
	return false
}

// SendType distinguishes token-addressed pushes from topic broadcasts.
type SendType string

const (
	SendTypeToken SendType = "token"
	SendTypeTopic SendType = "topic"
)

// DeliveryStatus is the terminal outcome recorded for one push attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Platform identifies the mobile platform a device token belongs to.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// InboxFilter selects which read states an inbox listing returns.
type InboxFilter string

const (
	InboxFilterAll    InboxFilter = "all"
	InboxFilterUnread InboxFilter = "unread"
	InboxFilterRead   InboxFilter = "read"
)

// Valid reports whether the filter is one of the supported values.
func (f InboxFilter) Valid() bool {
	switch f {
	case InboxFilterAll, InboxFilterUnread, InboxFilterRead:
		return true
	}
	return false
}

// Package schedule implements the course-lifecycle side of the notification
// engine: computing timezone-aware reminder trigger times, registering
// deferred jobs idempotently, dispatching due jobs to the reminder queue,
// and retention maintenance.
package schedule

import "time"

// TriggerTime computes when a date-based reminder should fire: midnight of
// (the target's calendar date minus leadDays), evaluated in the
// organization's local timezone. Doing this arithmetic in UTC would shift
// the calendar date for any organization east of Greenwich, producing
// off-by-one reminder days.
func TriggerTime(target time.Time, leadDays int, loc *time.Location) time.Time {
	local := target.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -leadDays)
}

// Elapsed reports whether the trigger's local calendar date is strictly
// before today's. Comparing instants would be wrong here: a course starting
// exactly leadDays ahead triggers at today's local midnight, which has
// always already passed by the time the event arrives. Such a boundary job
// still registers and the dispatcher picks it up on its next cycle; only
// triggers on a prior calendar day are skipped.
func Elapsed(runAt, now time.Time, loc *time.Location) bool {
	r := runAt.In(loc)
	n := now.In(loc)
	runDay := time.Date(r.Year(), r.Month(), r.Day(), 0, 0, 0, 0, loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return runDay.Before(today)
}

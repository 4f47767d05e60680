package schedule

import "time"

// TaskType identifies which scheduled service the dispatcher Lambda should
// run for an EventBridge invocation. Each constant maps to one service
// method in the task multiplexer.
type TaskType string

const (
	TaskDispatchDue         TaskType = "dispatch_due"
	TaskArchiveDeliveryLogs TaskType = "archive_delivery_logs"
	TaskCleanupJobs         TaskType = "cleanup_jobs"
)

// TaskPayload is the JSON payload sent by EventBridge to the dispatcher
// Lambda. It identifies the task to execute and optionally overrides the
// reference time for manual invocation or backfilling.
//
//	{
//	  "task": "dispatch_due",
//	  "reference_time": "2026-08-30T03:00:00Z"  // optional
//	}
type TaskPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime allows manual invocation to specify a different "now"
	// for deterministic execution. If nil, the current UTC time is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverrideSweep deletes expired permission overrides.
	TaskOverrideSweep = "authz:override_sweep"
	// TaskStaleAmendmentSweep auto-rejects overtaken pending amendments.
	TaskStaleAmendmentSweep = "amendments:stale_sweep"
)

// NewOverrideSweepTask constructs the override sweep task.
func NewOverrideSweepTask() *asynq.Task {
	return asynq.NewTask(TaskOverrideSweep, nil)
}

// NewStaleAmendmentSweepTask constructs the stale amendment sweep task.
func NewStaleAmendmentSweepTask() *asynq.Task {
	return asynq.NewTask(TaskStaleAmendmentSweep, nil)
}

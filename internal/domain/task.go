package domain

import "time"

// TaskState is the lifecycle state of one in-flight provider task.
type TaskState string

const (
	TaskSubmitted  TaskState = "submitted"
	TaskWaiting    TaskState = "waiting"
	TaskQueuing    TaskState = "queuing"
	TaskGenerating TaskState = "generating"
	TaskSuccess    TaskState = "success"
	TaskFailed     TaskState = "failed"
)

// Terminal reports whether no further transition can occur.
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailed
}

// ProviderTask tracks one unit of work at an asynchronous provider. It
// is owned by the job client for the duration of a single request and
// never persisted or shared.
type ProviderTask struct {
	Provider   string
	ID         string
	State      TaskState
	CreatedAt  time.Time
	LastPolled time.Time
}

package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when neither the enqueuer nor the task names one.
const DefaultQueueName = "default"

// TaskState tracks a task through claim, retry and completion.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskRunning TaskState = "running"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
)

// Task is a unit of queued work. Kind selects the handler; Payload is the
// JSON-encoded argument passed to it.
type Task struct {
	ID          uuid.UUID
	Queue       string
	Kind        string
	Payload     []byte
	Status      TaskState
	Attempts    int8
	MaxAttempts int8
	RunAt       time.Time
	LeaseUntil  *time.Time // set while a worker holds the task
	DoneAt      *time.Time
	LastError   *string
	CreatedAt   time.Time
}

// Claimable reports whether a worker may take t at now: pending and due, or
// running with an expired lease.
func (t *Task) Claimable(now time.Time) bool {
	if t.RunAt.After(now) {
		return false
	}
	switch t.Status {
	case TaskPending:
		return true
	case TaskRunning:
		return t.LeaseUntil != nil && t.LeaseUntil.Before(now)
	}
	return false
}

// DeadLetter records a task that used up its attempts.
type DeadLetter struct {
	TaskID   uuid.UUID
	Queue    string
	Kind     string
	Payload  []byte
	Reason   string
	Attempts int8
	FailedAt time.Time
}

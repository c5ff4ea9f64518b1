package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements EnqueuerRepository, WorkerRepository and
// SchedulerRepository in process. Expired locks are reclaimed lazily on the next claim.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dlq   []DeadLetter
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tasks: make(map[uuid.UUID]*Task), now: time.Now}
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.tasks[task.ID]; ok {
		return errors.New("task already exists: " + task.ID.String())
	}
	t := *task
	ms.tasks[t.ID] = &t
	return nil
}

func (ms *MemoryStorage) ClaimTask(_ context.Context, _ uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !slices.Contains(queues, t.Queue) {
			continue
		}
		if !t.Claimable(now) {
			continue
		}
		if best == nil || t.RunAt.Before(best.RunAt) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lockDuration)
	best.Status = TaskRunning
	best.LeaseUntil = &until
	t := *best
	return &t, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	now := ms.now()
	t.Status = TaskDone
	t.DoneAt = &now
	t.LeaseUntil = nil
	ms.pruneDone(now.Add(-doneRetention))
	return nil
}

// doneRetention is how long completed tasks stay visible through Tasks.
const doneRetention = time.Hour

func (ms *MemoryStorage) pruneDone(before time.Time) {
	for id, t := range ms.tasks {
		if t.Status == TaskDone && t.DoneAt != nil && t.DoneAt.Before(before) {
			delete(ms.tasks, id)
		}
	}
}

func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.Attempts++
	t.LastError = &errorMsg
	t.LeaseUntil = nil
	if t.Attempts >= t.MaxAttempts {
		t.Status = TaskFailed
		return nil
	}
	t.Status = TaskPending
	t.RunAt = retryAt
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	dead := DeadLetter{
		TaskID:   t.ID,
		Queue:    t.Queue,
		Kind:     t.Kind,
		Payload:  t.Payload,
		Attempts: t.Attempts,
		FailedAt: ms.now(),
	}
	if t.LastError != nil {
		dead.Reason = *t.LastError
	}
	ms.dlq = append(ms.dlq, dead)
	delete(ms.tasks, taskID)
	return nil
}

// ActiveTask returns a copy of a pending or running task of kind.
func (ms *MemoryStorage) ActiveTask(_ context.Context, kind string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, t := range ms.tasks {
		if t.Kind == kind && (t.Status == TaskPending || t.Status == TaskRunning) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTaskNotFound
}

// DeadLetters returns a copy of the dead letter queue.
func (ms *MemoryStorage) DeadLetters() []DeadLetter {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dlq)
}

// Tasks returns copies of the stored tasks with the given status.
func (ms *MemoryStorage) Tasks(status TaskState) []Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []Task
	for _, t := range ms.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

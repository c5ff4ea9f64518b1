package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository stores new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

type Enqueuer struct {
	repo       EnqueuerRepository
	queue      string
	maxRetries int8
	now        func() time.Time
}

type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(name string) EnqueuerOption {
	return func(e *Enqueuer) {
		if name != "" {
			e.queue = name
		}
	}
}

// WithDefaultMaxRetries sets retries for tasks that do not override it (0-10).
func WithDefaultMaxRetries(n int8) EnqueuerOption {
	return func(e *Enqueuer) {
		if n >= 0 && n <= 10 {
			e.maxRetries = n
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{repo: repo, queue: DefaultQueueName, maxRetries: 3, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue      string
	taskName   string
	maxRetries int8
	delay      time.Duration
}

func WithQueue(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.queue = name
		}
	}
}

// WithKind overrides the name derived from the payload type.
func WithKind(name string) EnqueueOption {
	return func(o *enqueueOptions) { o.taskName = name }
}

func WithMaxRetries(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 0 && n <= 10 {
			o.maxRetries = n
		}
	}
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// Enqueue marshals payload to JSON and stores it as a pending task.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if payload == nil {
		return ErrPayloadNil
	}
	o := enqueueOptions{queue: e.queue, maxRetries: e.maxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}
	name := o.taskName
	if name == "" {
		name = qualifiedName(payload)
	}

	now := e.now()
	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		Kind:        name,
		Payload:     data,
		Status:      TaskPending,
		MaxAttempts: o.maxRetries,
		RunAt:       now.Add(o.delay),
		CreatedAt:   now,
	}
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to create task %q in queue %q: %w", task.Kind, task.Queue, err)
	}
	return nil
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerRepository claims tasks and records their outcome.
type WorkerRepository interface {
	// ClaimTask locks the oldest due pending task in one of queues.
	// It returns ErrNoTaskToClaim when nothing is due.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records the error and reschedules the task at retryAt.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
}

// TaskObserver is notified of every finished task. Outcomes are
// "completed", "retry", "dead" and "no_handler".
type TaskObserver interface {
	ObserveTask(name, outcome string, d time.Duration)
}

type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	workerID uuid.UUID
	opts     workerOptions
	sem      chan struct{}

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues       []string
	pullInterval time.Duration
	lockTimeout  time.Duration
	retryDelay   time.Duration
	concurrency  int
	logger       *slog.Logger
	observer     TaskObserver
}

func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout bounds a single handler run.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithRetryDelay sets the base delay; attempt n waits n*delay.
func WithRetryDelay(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithTaskObserver(obs TaskObserver) WorkerOption {
	return func(o *workerOptions) { o.observer = obs }
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	o := workerOptions{
		queues:       []string{DefaultQueueName},
		pullInterval: time.Second,
		lockTimeout:  2 * time.Minute,
		retryDelay:   30 * time.Second,
		concurrency:  1,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Worker{
		repo:     repo,
		handlers: make(map[string]Handler),
		workerID: uuid.New(),
		opts:     o,
		sem:      make(chan struct{}, o.concurrency),
	}, nil
}

func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start launches the polling loop in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx)

	w.opts.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.opts.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for running tasks to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerStopped
	}
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	<-done
	w.wg.Wait()

	w.opts.logger.Info("worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function for errgroup that runs the worker until ctx is done.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.opts.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		w.drain(ctx)
	}
}

// drain claims due tasks until none are left or every slot is busy.
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}
		task, err := w.repo.ClaimTask(ctx, w.workerID, w.opts.queues, w.opts.lockTimeout)
		if err != nil {
			<-w.sem
			if !errors.Is(err, ErrNoTaskToClaim) && ctx.Err() == nil {
				w.opts.logger.Error("failed to claim task",
					slog.String("worker_id", w.workerID.String()),
					slog.String("error", err.Error()))
			}
			return
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.process(task)
		}()
	}
}

// process runs the handler on a context detached from the worker lifecycle,
// so Stop lets in-flight tasks finish.
func (w *Worker) process(task *Task) {
	start := time.Now()
	log := w.opts.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_kind", task.Kind))

	w.mu.Lock()
	h, ok := w.handlers[task.Kind]
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.lockTimeout)
	defer cancel()

	if !ok {
		log.Error("no handler registered for task type")
		msg := ErrHandlerNotFound.Error() + ": " + task.Kind
		if err := w.repo.FailTask(ctx, task.ID, msg, time.Now()); err == nil {
			_ = w.repo.MoveToDLQ(ctx, task.ID)
		}
		w.observe(task.Kind, "no_handler", time.Since(start))
		return
	}

	err := w.safeHandle(ctx, h, task)
	d := time.Since(start)
	if err == nil {
		if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
			log.Error("failed to mark task completed", slog.String("error", err.Error()))
		}
		w.observe(task.Kind, "completed", d)
		log.Debug("task completed", slog.Duration("duration", d))
		return
	}

	attempt := task.Attempts + 1
	retryAt := time.Now().Add(time.Duration(attempt) * w.opts.retryDelay)
	if ferr := w.repo.FailTask(ctx, task.ID, err.Error(), retryAt); ferr != nil {
		log.Error("failed to record task failure", slog.String("error", ferr.Error()))
		return
	}
	if attempt >= task.MaxAttempts {
		if derr := w.repo.MoveToDLQ(ctx, task.ID); derr != nil {
			log.Error("failed to move task to dead letter queue", slog.String("error", derr.Error()))
		}
		w.observe(task.Kind, "dead", d)
		log.Warn("task moved to dead letter queue",
			slog.Int("retry_count", int(attempt)),
			slog.String("error", err.Error()))
		return
	}
	w.observe(task.Kind, "retry", d)
	log.Warn("task failed, will retry",
		slog.Int("retry_count", int(attempt)),
		slog.Time("retry_at", retryAt),
		slog.String("error", err.Error()))
}

func (w *Worker) safeHandle(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return h.Handle(ctx, task.Payload)
}

func (w *Worker) observe(name, outcome string, d time.Duration) {
	if w.opts.observer != nil {
		w.opts.observer.ObserveTask(name, outcome, d)
	}
}

package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchedulerRepository stores the tasks a Scheduler creates.
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
	// ActiveTask returns a pending or running task of kind, or
	// ErrTaskNotFound when there is none.
	ActiveTask(ctx context.Context, kind string) (*Task, error)
}

// Scheduler turns registered schedules into tasks for a Worker. A periodic
// task is not created again while a previous run is still pending or
// running, so slow runs never overlap.
type Scheduler struct {
	repo SchedulerRepository
	opts schedulerOptions

	mu      sync.Mutex
	entries map[string]*periodic
}

type periodic struct {
	kind        string
	schedule    Schedule
	queue       string
	maxAttempts int8
	last        time.Time // RunAt of the latest task created, zero before the first
}

type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// WithCheckInterval sets how often schedules are evaluated.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// PeriodicOption configures one registered schedule.
type PeriodicOption func(*periodic)

func WithPeriodicQueue(name string) PeriodicOption {
	return func(p *periodic) {
		if name != "" {
			p.queue = name
		}
	}
}

// WithPeriodicAttempts bounds retries of a single run. Values outside 1..10
// are ignored.
func WithPeriodicAttempts(n int8) PeriodicOption {
	return func(p *periodic) {
		if n >= 1 && n <= 10 {
			p.maxAttempts = n
		}
	}
}

func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	o := schedulerOptions{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Scheduler{repo: repo, opts: o, entries: make(map[string]*periodic)}, nil
}

// Add registers kind to run on schedule. The worker must have a handler
// named kind, see NewPeriodicHandler.
func (s *Scheduler) Add(kind string, schedule Schedule, opts ...PeriodicOption) error {
	if kind == "" || schedule == nil {
		return ErrSchedulerNotConfigured
	}
	p := &periodic{kind: kind, schedule: schedule, queue: DefaultQueueName, maxAttempts: 1}
	for _, opt := range opts {
		opt(p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[kind]; ok {
		return ErrTaskAlreadyRegistered
	}
	s.entries[kind] = p
	s.opts.logger.Info("periodic task registered",
		slog.String("task_kind", kind),
		slog.String("schedule", schedule.String()))
	return nil
}

func (s *Scheduler) Remove(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, kind)
}

// Kinds lists the registered task kinds in sorted order.
func (s *Scheduler) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Start evaluates the schedules immediately and then every check interval
// until ctx is done. It returns ErrSchedulerNotConfigured when nothing is
// registered.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.Kinds()) == 0 {
		return ErrSchedulerNotConfigured
	}
	ticker := time.NewTicker(s.opts.checkInterval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.opts.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Run returns a function for errgroup that runs the scheduler until ctx is done.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error { return s.Start(ctx) }
}

// Tick creates a task for every schedule that is due.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	due := make([]*periodic, 0, len(s.entries))
	for _, p := range s.entries {
		due = append(due, p)
	}
	s.mu.Unlock()

	now := s.opts.now()
	for _, p := range due {
		if err := s.enqueue(ctx, p, now); err != nil && ctx.Err() == nil {
			s.opts.logger.Error("periodic task not created",
				slog.String("task_kind", p.kind),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, p *periodic, now time.Time) error {
	s.mu.Lock()
	last := p.last
	s.mu.Unlock()

	// The first run is due one period after start, like a ticker.
	var runAt time.Time
	if last.IsZero() {
		runAt = p.schedule.Next(now)
	} else {
		runAt = p.schedule.Next(last)
		if runAt.After(now) {
			return nil
		}
		runAt = now
	}

	active, err := s.repo.ActiveTask(ctx, p.kind)
	switch {
	case err == nil:
		s.setLast(p, active.RunAt)
		s.opts.logger.Debug("periodic task still active",
			slog.String("task_kind", p.kind),
			slog.Time("run_at", active.RunAt))
		return nil
	case !errors.Is(err, ErrTaskNotFound):
		return err
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       p.queue,
		Kind:        p.kind,
		Status:      TaskPending,
		MaxAttempts: p.maxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return err
	}
	s.setLast(p, runAt)
	s.opts.logger.Debug("periodic task created",
		slog.String("task_kind", p.kind),
		slog.Time("run_at", runAt))
	return nil
}

func (s *Scheduler) setLast(p *periodic, t time.Time) {
	s.mu.Lock()
	p.last = t
	s.mu.Unlock()
}

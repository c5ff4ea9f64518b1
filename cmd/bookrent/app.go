package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/bookrent/pkg/archive"
	"github.com/dmitrymomot/bookrent/pkg/config"
	"github.com/dmitrymomot/bookrent/pkg/email"
	"github.com/dmitrymomot/bookrent/pkg/gateway"
	"github.com/dmitrymomot/bookrent/pkg/httpserver"
	"github.com/dmitrymomot/bookrent/pkg/locker"
	"github.com/dmitrymomot/bookrent/pkg/logger"
	"github.com/dmitrymomot/bookrent/pkg/metrics"
	"github.com/dmitrymomot/bookrent/pkg/notify"
	"github.com/dmitrymomot/bookrent/pkg/pg"
	"github.com/dmitrymomot/bookrent/pkg/queue"
	"github.com/dmitrymomot/bookrent/pkg/ratelimiter"
	"github.com/dmitrymomot/bookrent/pkg/redis"
	"github.com/dmitrymomot/bookrent/pkg/requestid"
	"github.com/dmitrymomot/bookrent/pkg/subscription"
	"github.com/dmitrymomot/bookrent/svc/billing"
)

// Config is the whole process configuration, read from the environment
// and an optional .env file.
type Config struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	Name       string `env:"APP_NAME" envDefault:"bookrent"`
	AdminToken string `env:"ADMIN_TOKEN"`

	Log       logger.Config
	Gateway   gateway.Config
	Postgres  pg.Config
	Redis     redis.Config
	Locker    locker.Config
	HTTP      httpserver.Config
	Queue     queue.Config
	Email     email.Config
	Archive   archive.Config
	Plans     subscription.Config
	Reconcile billing.ReconcilerConfig
	RateLimit ratelimiter.Config
}

// app holds the wired components shared by every command.
type app struct {
	cfg Config
	log *slog.Logger

	store    subscription.Store
	catalog  *subscription.Catalog
	client   *gateway.Client
	orch     *billing.Orchestrator
	proc     *billing.Processor
	recon    *billing.Reconciler
	tasks    *queue.MemoryStorage
	worker   *queue.Worker
	sched    *queue.Scheduler
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	checks   []httpserver.Check

	closers []func()
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newApp connects external services and wires the pipeline. Postgres,
// Redis and S3 are used when configured; otherwise in-process fallbacks
// take their place.
func newApp(ctx context.Context, cfg Config) (_ *app, err error) {
	logOverrides, err := logger.WithConfig(cfg.Log)
	if err != nil {
		return nil, err
	}
	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logOverrides,
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	slog.SetDefault(log)

	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	metrics.RegisterRuntime(a.registry)
	if a.metrics, err = metrics.New(a.registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	lock, err := a.initLocker(ctx)
	if err != nil {
		return nil, err
	}
	arch, err := a.initArchive(ctx)
	if err != nil {
		return nil, err
	}

	a.catalog = subscription.NewCatalog(subscription.SourceFromConfig(cfg.Plans), cfg.Plans.PlansCacheTTL)
	a.catalog.OnReload(func() { log.Info("plan catalog reloaded") })

	a.client, err = gateway.NewClient(cfg.Gateway,
		gateway.WithLogger(log),
		gateway.WithObserver(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}

	dispatcher, err := a.initNotifications()
	if err != nil {
		return nil, err
	}

	orchOpts := []billing.OrchestratorOption{
		billing.WithLogger(log),
		billing.WithDispatcher(dispatcher),
	}
	procOpts := []billing.ProcessorOption{
		billing.WithProcessorLogger(log),
		billing.WithArchive(arch),
		billing.WithCallbackObserver(a.metrics),
	}
	if lock != nil {
		orchOpts = append(orchOpts, billing.WithLocker(lock))
		procOpts = append(procOpts, billing.WithReferenceLocker(lock))
	}

	a.orch = billing.NewOrchestrator(a.store, a.catalog, a.client, orchOpts...)
	a.proc = billing.NewProcessor(a.store, a.orch, cfg.Gateway.SigningSecret(), procOpts...)
	a.recon = billing.NewReconciler(a.store, a.client, a.proc, cfg.Reconcile,
		billing.WithReconcilerLogger(log),
		billing.WithReconcileObserver(a.metrics))

	if err := a.initSchedule(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) initStore(ctx context.Context) error {
	if !a.cfg.Postgres.Enabled() {
		a.log.Warn("PG_CONN_URL is empty, using in-memory store")
		a.store = subscription.NewMemoryStore()
		return nil
	}

	pool, err := pg.Connect(ctx, a.cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.checks = append(a.checks, httpserver.Check{Name: "postgres", Probe: pg.Probe(pool)})

	store := subscription.NewPostgresStore(pool)
	if a.cfg.Postgres.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	a.store = store
	return nil
}

func (a *app) initLocker(ctx context.Context) (locker.Locker, error) {
	if !a.cfg.Redis.Enabled() {
		return locker.NewMemory(a.cfg.Locker), nil
	}

	client, err := redis.Connect(ctx, a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { closeRedis(a.log, client) })
	a.checks = append(a.checks, httpserver.Check{Name: "redis", Probe: redis.Probe(client)})
	return locker.NewRedis(client, a.cfg.Locker), nil
}

func closeRedis(log *slog.Logger, c *goredis.Client) {
	if err := c.Close(); err != nil {
		log.Warn("redis close failed", logger.Error(err))
	}
}

func (a *app) initArchive(ctx context.Context) (archive.Archiver, error) {
	if !a.cfg.Archive.Enabled() {
		return archive.Nop{}, nil
	}
	s3, err := archive.NewS3(ctx, a.cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("callback archive: %w", err)
	}
	return s3, nil
}

// initNotifications builds the queue-backed dispatcher and the worker that
// drains it into email.
func (a *app) initNotifications() (notify.Dispatcher, error) {
	sender, err := email.NewSender(a.cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("email sender: %w", err)
	}

	a.tasks = queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(a.tasks, queue.WithDefaultMaxRetries(a.cfg.Queue.MaxRetries))
	if err != nil {
		return nil, fmt.Errorf("queue enqueuer: %w", err)
	}

	opts := append(a.cfg.Queue.WorkerOptions(),
		queue.WithWorkerLogger(a.log.With(logger.Component("queue"))),
		queue.WithTaskObserver(a.metrics))
	a.worker, err = queue.NewWorker(a.tasks, opts...)
	if err != nil {
		return nil, fmt.Errorf("queue worker: %w", err)
	}
	a.worker.RegisterHandlers(notify.NewHandler(sender))

	return notify.NewQueueDispatcher(enq), nil
}

// initSchedule hands the reconcile sweep to the queue: the scheduler creates
// a task every RECONCILE_INTERVAL and the worker runs it.
func (a *app) initSchedule() error {
	opts := append(a.cfg.Queue.SchedulerOptions(),
		queue.WithSchedulerLogger(a.log.With(logger.Component("scheduler"))))
	var err error
	if a.sched, err = queue.NewScheduler(a.tasks, opts...); err != nil {
		return fmt.Errorf("queue scheduler: %w", err)
	}
	a.worker.RegisterHandlers(a.recon.Handler())
	if err := a.recon.Schedule(a.sched); err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	return nil
}

func (a *app) metricsHandler() http.Handler {
	return metrics.Handler(a.registry)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

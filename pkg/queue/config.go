package queue

import "time"

type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"2m"`
	RetryDelay         time.Duration `env:"QUEUE_RETRY_DELAY" envDefault:"30s"`
	MaxRetries         int8          `env:"QUEUE_MAX_RETRIES" envDefault:"5"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"4"`
	ScheduleInterval   time.Duration `env:"QUEUE_SCHEDULE_INTERVAL" envDefault:"30s"` // how often periodic schedules are checked
}

// WorkerOptions converts the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithRetryDelay(c.RetryDelay),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
	}
}

func (c Config) SchedulerOptions() []SchedulerOption {
	return []SchedulerOption{WithCheckInterval(c.ScheduleInterval)}
}

package queue

import "errors"

var (
	ErrRepositoryNil   = errors.New("repository cannot be nil")
	ErrPayloadNil      = errors.New("payload cannot be nil")
	ErrHandlerNotFound = errors.New("no handler registered for task type")
	ErrNoHandlers      = errors.New("no task handlers registered")
	ErrNoTaskToClaim   = errors.New("no task available to claim")
	ErrTaskNotFound    = errors.New("task not found")
	ErrWorkerStarted   = errors.New("worker already started")
	ErrWorkerStopped   = errors.New("worker not started")

	ErrTaskAlreadyRegistered  = errors.New("periodic task already registered")
	ErrSchedulerNotConfigured = errors.New("scheduler has no periodic tasks")
)

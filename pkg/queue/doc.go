// Package queue is a small persistent-task queue used for work that must not
// block a request: enqueue a JSON payload, and a Worker claims and runs it
// later, retrying failures with a growing delay until MaxAttempts is spent and
// the task lands in the dead letter queue.
//
// Tasks are matched to handlers by name. NewTaskHandler derives the name
// from the payload type, so enqueuing a value of type T reaches the handler
// registered for T without any string keys:
//
//	type SendEmail struct{ To string }
//
//	worker.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p SendEmail) error {
//	    return mailer.Send(ctx, p.To)
//	}))
//	enqueuer.Enqueue(ctx, SendEmail{To: "reader@example.com"})
//
// A Scheduler creates payload-less tasks on a Schedule for handlers built
// with NewPeriodicHandler:
//
//	worker.RegisterHandlers(queue.NewPeriodicHandler("billing.reconcile", sweep))
//	scheduler.Add("billing.reconcile", queue.Every(5*time.Minute))
//
// MemoryStorage implements every repository interface for a single process.
// Handler panics are recovered and counted as failures.
package queue

// Package httpserver runs an http.Handler with configurable timeouts and a
// context-driven graceful shutdown, and provides liveness and readiness
// handlers.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// Run returns once ctx is cancelled and in-flight requests have drained, or
// when the shutdown timeout expires. Errors wrap ErrStart or ErrShutdown.
package httpserver

package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/bookrent/pkg/logger"
)

type timeouts struct {
	read, write, idle, drain time.Duration
}

type settings struct {
	listen  string
	limits  timeouts
	base    *http.Server
	log     *slog.Logger
	onStart []func(*slog.Logger)
	onStop  []func(*slog.Logger)
}

// Server serves HTTP until its context is cancelled and then drains in-flight
// requests within the shutdown timeout.
type Server struct {
	set settings

	mu    sync.Mutex
	hs    *http.Server
	bound net.Addr

	stopOnce sync.Once
	stopErr  error
}

func New(opts ...Option) *Server {
	set := settings{
		listen: ":8080",
		limits: timeouts{drain: 5 * time.Second},
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(&set)
	}
	if set.log == nil {
		set.log = logger.Discard()
	}
	return &Server{set: set}
}

// Addr returns the bound listener address once Run has started listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Run listens on the configured address and blocks until ctx is cancelled,
// Shutdown is called or the listener fails. Listen failures wrap ErrStart.
// Signal handling belongs to the caller, usually via signal.NotifyContext.
func (s *Server) Run(ctx context.Context, h http.Handler) error {
	if h == nil {
		h = http.NotFoundHandler()
	}
	hs, ln, err := s.listen(h)
	if err != nil {
		return errors.Join(ErrStart, err)
	}

	s.set.log.InfoContext(ctx, "http server listening", slog.String("addr", ln.Addr().String()))
	for _, fn := range s.set.onStart {
		fn(s.set.log)
	}

	served := make(chan error, 1)
	go func() { served <- hs.Serve(ln) }()

	var serveErr error
	select {
	case serveErr = <-served:
	case <-ctx.Done():
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.set.log.ErrorContext(ctx, "http server shutdown failed", logger.Error(err))
		}
		serveErr = <-served
	}
	if errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	if serveErr != nil {
		return errors.Join(ErrStart, serveErr)
	}
	return nil
}

func (s *Server) listen(h http.Handler) (*http.Server, net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hs != nil {
		return nil, nil, ErrAlreadyRunning
	}

	hs := s.set.base
	if hs == nil {
		hs = new(http.Server)
	}
	fill := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	if hs.Addr == "" {
		hs.Addr = s.set.listen
	}
	fill(&hs.ReadTimeout, s.set.limits.read)
	fill(&hs.ReadHeaderTimeout, s.set.limits.read)
	fill(&hs.WriteTimeout, s.set.limits.write)
	fill(&hs.IdleTimeout, s.set.limits.idle)
	hs.Handler = h

	ln, err := net.Listen("tcp", hs.Addr)
	if err != nil {
		return nil, nil, err
	}
	s.hs, s.bound = hs, ln.Addr()
	return hs, ln, nil
}

// Shutdown drains the server within the configured timeout. Only the first
// call does any work; later calls return its result. Failures wrap
// ErrShutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.hs
	s.mu.Unlock()
	if hs == nil {
		return nil
	}

	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.set.limits.drain)
		defer cancel()
		if err := hs.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.stopErr = errors.Join(ErrShutdown, err)
		}
		s.set.log.InfoContext(ctx, "http server stopped")
		for _, fn := range s.set.onStop {
			fn(s.set.log)
		}
	})
	return s.stopErr
}

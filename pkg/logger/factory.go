// Package logger builds the service's slog.Logger: JSON in production, text
// in development, with request-scoped attributes injected from context.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dmitrymomot/bookrent/pkg/environment"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config overrides the environment defaults. Empty fields keep them.
type Config struct {
	Level  string `env:"LOG_LEVEL"`  // debug, info, warn, error
	Format string `env:"LOG_FORMAT"` // json or text
}

type Option func(*builder)

type builder struct {
	level  slog.Leveler
	format Format
	out    io.Writer
	attrs  []slog.Attr
	extrs  []ContextExtractor
}

func WithLevel(l slog.Level) Option {
	return func(b *builder) { b.level = l }
}

// WithFormat panics on unknown formats; a misconfigured logger should stop
// the process at startup.
func WithFormat(f Format) Option {
	if f != FormatJSON && f != FormatText {
		panic(fmt.Errorf("logger: unknown format %q", f))
	}
	return func(b *builder) { b.format = f }
}

func WithOutput(w io.Writer) Option {
	return func(b *builder) {
		if w != nil {
			b.out = w
		}
	}
}

// WithContextExtractors registers extractors run on every record. Nil
// entries are skipped.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(b *builder) {
		for _, ex := range extractors {
			if ex != nil {
				b.extrs = append(b.extrs, ex)
			}
		}
	}
}

// WithEnvironment picks debug text output for development and info JSON
// everywhere else, and tags records with service and env.
func WithEnvironment(env, service string) Option {
	e := environment.Parse(env)
	return func(b *builder) {
		b.level, b.format = slog.LevelInfo, FormatJSON
		if e.IsDevelopment() {
			b.level, b.format = slog.LevelDebug, FormatText
		}
		if service != "" {
			b.attrs = append(b.attrs, slog.String("service", service))
		}
		b.attrs = append(b.attrs, slog.String("env", e.String()))
	}
}

// WithConfig applies LOG_LEVEL and LOG_FORMAT. Place it after
// WithEnvironment so it overrides the environment defaults.
func WithConfig(cfg Config) (Option, error) {
	var opts []Option
	if cfg.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("logger: LOG_LEVEL: %w", err)
		}
		opts = append(opts, WithLevel(lvl))
	}
	if cfg.Format != "" {
		f := Format(strings.ToLower(cfg.Format))
		if f != FormatJSON && f != FormatText {
			return nil, fmt.Errorf("logger: LOG_FORMAT: unknown format %q", cfg.Format)
		}
		opts = append(opts, WithFormat(f))
	}
	return func(b *builder) {
		for _, o := range opts {
			o(b)
		}
	}, nil
}

// New creates a logger. Defaults to info-level JSON on stdout.
func New(opts ...Option) *slog.Logger {
	b := &builder{level: slog.LevelInfo, format: FormatJSON, out: os.Stdout}
	for _, opt := range opts {
		opt(b)
	}

	hopts := &slog.HandlerOptions{Level: b.level}
	var h slog.Handler = slog.NewJSONHandler(b.out, hopts)
	if b.format == FormatText {
		h = slog.NewTextHandler(b.out, hopts)
	}
	if len(b.attrs) > 0 {
		h = h.WithAttrs(b.attrs)
	}
	return slog.New(newContextHandler(h, b.extrs))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

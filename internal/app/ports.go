// Package app defines the application layer "ports" (interfaces) and the
// fallback orchestrator that drives generation attempts across credential
// pools and upstream providers. Concrete adapters (environment key loading,
// HTTP upstream clients, SQLite metrics) live in their own packages; this
// package performs no I/O of its own beyond calling through its ports.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/haukened/deckgen/internal/keys"
	"github.com/haukened/deckgen/internal/provider"
)

// KeySource hands out credential pools by name. *keys.Store satisfies it.
type KeySource interface {
	Pool(name string) *keys.Pool
}

// Recorder receives counters and summary observations. *metrics.Manager
// satisfies it. Implementations must not block.
type Recorder interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}

// RetryPolicy lists the waits between same-key attempts. The number of extra
// attempts equals len(Delays); an empty policy means one attempt per key.
type RetryPolicy struct {
	Delays []time.Duration
}

// Upstream is one row of the provider table: a client, the pool its keys
// come from, and how retryable failures are handled.
type Upstream struct {
	Client provider.Client
	Pool   string
	Retry  RetryPolicy
}

type nopRecorder struct{}

func (nopRecorder) Inc(string, int64)     {}
func (nopRecorder) Observe(string, int64) {}

type loggerCtxKey struct{}

// ContextWithLogger attaches a request-scoped logger (typically carrying a
// correlation id) for the orchestrator to use.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, l)
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

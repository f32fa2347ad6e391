package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/haukened/deckgen/internal/domain"
	"github.com/haukened/deckgen/internal/keys"
	"github.com/haukened/deckgen/internal/metrics"
	"github.com/haukened/deckgen/internal/provider"
)

// DefaultTextRetry is the same-key schedule for retryable text failures.
var DefaultTextRetry = RetryPolicy{Delays: []time.Duration{time.Second, 2500 * time.Millisecond}}

// Service is the fallback orchestrator. It is safe for concurrent use once
// constructed; the only shared mutable state is each pool's cursor.
type Service struct {
	Keys    KeySource
	Text    Upstream
	Images  []Upstream    // tried in order, each across its own pool
	Timeout time.Duration // overall per-request deadline, 0 disables
	Metrics Recorder
	Logger  *slog.Logger  // fallback when the context carries none

	// NewTimer supplies the clock for same-key backoff waits. Nil uses the
	// backoff package's real timer.
	NewTimer func() backoff.Timer
}

// run carries per-request bookkeeping.
type run struct {
	attempts int
}

// Handle validates req and drives it through the matching provider table
// until one attempt succeeds or every key is exhausted. Per-key failures are
// logged and absorbed; only configuration and exhaustion errors surface.
func (s *Service) Handle(ctx context.Context, req domain.Request) (domain.Result, error) {
	if err := req.Validate(); err != nil {
		return domain.Result{}, err
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	rec := s.recorder()
	rec.Inc(metrics.CounterRequests, 1)
	start := time.Now()
	r := &run{}

	var (
		res domain.Result
		err error
	)
	switch req.Action {
	case domain.ActionDeck:
		res, err = s.handleText(ctx, r, req)
	case domain.ActionImage:
		res, err = s.handleImage(ctx, r, req)
	}

	rec.Observe(metrics.SummaryAttemptsPerRequest, int64(r.attempts))
	rec.Observe(metrics.SummaryRequestMillis, time.Since(start).Milliseconds())
	if err != nil {
		s.logger(ctx).Warn("generate failed", "domain", "generate", "action", req.Action.String(), "attempts", r.attempts, "err", err)
	}
	return res, err
}

func (s *Service) handleText(ctx context.Context, r *run, req domain.Request) (domain.Result, error) {
	up := s.Text
	if up.Client == nil {
		return s.configError("text provider not configured")
	}
	if c, ok := up.Client.(provider.Checker); ok {
		if err := c.Check(); err != nil {
			s.recorder().Inc(metrics.CounterConfigErrors, 1)
			return domain.Result{}, err
		}
	}
	pool := s.Keys.Pool(up.Pool)
	if pool.Len() == 0 {
		return s.configError("no keys in pool " + up.Pool)
	}
	if text, ok := s.runPool(ctx, r, up, pool, req); ok {
		s.recorder().Inc(metrics.CounterTextGenerated, 1)
		return domain.Result{Text: text}, nil
	}
	return s.exhausted(ctx)
}

func (s *Service) handleImage(ctx context.Context, r *run, req domain.Request) (domain.Result, error) {
	if len(s.Images) == 0 {
		return s.configError("no image providers configured")
	}
	if req.Token != "" {
		// The caller's own token gets exactly one try on the primary provider.
		out := s.tryKey(ctx, r, s.Images[0], keys.Key{Secret: req.Token}, req)
		if out.OK() {
			s.recorder().Inc(metrics.CounterImagesGenerated, 1)
			return domain.Result{Image: out.Payload}, nil
		}
		s.recorder().Inc(metrics.CounterOverrideFailed, 1)
	}
	anyKeys := false
	for _, up := range s.Images {
		pool := s.Keys.Pool(up.Pool)
		if pool.Len() == 0 {
			continue
		}
		anyKeys = true
		if img, ok := s.runPool(ctx, r, up, pool, req); ok {
			s.recorder().Inc(metrics.CounterImagesGenerated, 1)
			return domain.Result{Image: img}, nil
		}
		if ctx.Err() != nil {
			break
		}
		s.logger(ctx).Info("image provider exhausted", "domain", "generate", "provider", up.Client.Name())
	}
	if !anyKeys {
		return s.configError("no keys in any image pool")
	}
	return s.exhausted(ctx)
}

// runPool walks one lap of pool in rotation order. It returns the first
// successful payload.
func (s *Service) runPool(ctx context.Context, r *run, up Upstream, pool *keys.Pool, req domain.Request) (string, bool) {
	lap := pool.Lap()
	for {
		if ctx.Err() != nil {
			return "", false
		}
		k, ok := lap.Next()
		if !ok {
			return "", false
		}
		if out := s.tryKey(ctx, r, up, k, req); out.OK() {
			return out.Payload, true
		}
	}
}

func (s *Service) configError(msg string) (domain.Result, error) {
	s.recorder().Inc(metrics.CounterConfigErrors, 1)
	return domain.Result{}, fmt.Errorf("%w: %s", domain.ErrConfiguration, msg)
}

func (s *Service) exhausted(ctx context.Context) (domain.Result, error) {
	s.recorder().Inc(metrics.CounterKeysExhausted, 1)
	if err := ctx.Err(); err != nil {
		return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrAllKeysExhausted, err)
	}
	return domain.Result{}, domain.ErrAllKeysExhausted
}

func (s *Service) recorder() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}

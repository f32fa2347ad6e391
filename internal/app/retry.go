package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/haukened/deckgen/internal/domain"
	"github.com/haukened/deckgen/internal/keys"
	"github.com/haukened/deckgen/internal/metrics"
)

// schedule is a backoff.BackOff that replays a fixed list of waits and then
// stops.
type schedule struct {
	delays []time.Duration
	next   int
}

func (p RetryPolicy) backOff() *schedule { return &schedule{delays: p.Delays} }

func (s *schedule) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *schedule) Reset() { s.next = 0 }

// outcomeError carries a failed attempt through the backoff loop.
type outcomeError struct {
	out domain.Outcome
}

func (e outcomeError) Error() string { return e.out.String() }

// tryKey runs the attempt sequence for a single key: one attempt plus one
// retry per policy delay while the outcome stays retryable. A done context
// ends the wait early and returns the last outcome.
func (s *Service) tryKey(ctx context.Context, r *run, up Upstream, k keys.Key, req domain.Request) domain.Outcome {
	log := s.logger(ctx).With("domain", "generate", "provider", up.Client.Name(), "key", k.String())
	rec := s.recorder()

	var (
		last    domain.Outcome
		attempt int
	)
	op := func() error {
		attempt++
		r.attempts++
		rec.Inc(metrics.CounterUpstreamAttempts, 1)
		last = up.Client.Generate(ctx, k.Secret, req)
		switch last.Kind {
		case domain.OutcomeSuccess:
			return nil
		case domain.OutcomeRetryable:
			return outcomeError{last}
		default:
			return backoff.Permanent(outcomeError{last})
		}
	}
	notify := func(_ error, wait time.Duration) {
		log.Info("retrying key", "attempt", attempt, "status", last.Status, "backoff", wait)
		rec.Inc(metrics.CounterUpstreamRetries, 1)
	}

	var timer backoff.Timer
	if s.NewTimer != nil {
		timer = s.NewTimer()
	}
	if err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(up.Retry.backOff(), ctx), notify, timer); err != nil {
		log.Info("key failed", "attempt", attempt, "outcome", last.Kind.String(), "status", last.Status, "reason", last.Reason, "err", err)
		return last
	}
	log.Debug("attempt succeeded", "attempt", attempt)
	return last
}

// Package metrics records how the generate path behaves: requests, upstream
// attempts, retries, exhaustion and per-request latency. Observations are
// buffered in memory and written to SQLite on an interval. The default DSN is
// an in-memory database, so totals only outlive the process when an operator
// points the DSN at a file.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Counter names.
const (
	CounterRequests         = "generate_requests_total"
	CounterTextGenerated    = "text_generated_total"
	CounterImagesGenerated  = "images_generated_total"
	CounterUpstreamAttempts = "upstream_attempts_total"
	CounterUpstreamRetries  = "upstream_retries_total"
	CounterOverrideFailed   = "override_token_failed_total"
	CounterKeysExhausted    = "keys_exhausted_total"
	CounterConfigErrors     = "configuration_errors_total"
)

// Summary names.
const (
	SummaryAttemptsPerRequest = "attempts_per_request"
	SummaryRequestMillis      = "request_duration_ms"
)

const (
	kindCounter = "counter"
	kindSummary = "summary"
)

// Summary aggregates every observation recorded under one name.
type Summary struct {
	Count int64 `json:"count"`
	Sum   int64 `json:"sum"`
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
}

func (s *Summary) merge(o Summary) {
	if o.Count == 0 {
		return
	}
	if s.Count == 0 {
		*s = o
		return
	}
	s.Count += o.Count
	s.Sum += o.Sum
	s.Min = min(s.Min, o.Min)
	s.Max = max(s.Max, o.Max)
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Counters  map[string]int64   `json:"counters"`
	Summaries map[string]Summary `json:"summaries"`
}

func newSnapshot() Snapshot {
	return Snapshot{Counters: map[string]int64{}, Summaries: map[string]Summary{}}
}

func (s Snapshot) empty() bool { return len(s.Counters) == 0 && len(s.Summaries) == 0 }

func (s Snapshot) merge(o Snapshot) {
	for n, v := range o.Counters {
		s.Counters[n] += v
	}
	for n, v := range o.Summaries {
		cur := s.Summaries[n]
		cur.merge(v)
		s.Summaries[n] = cur
	}
}

// Config controls flush cadence and logging.
type Config struct {
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Manager buffers observations and persists them. It satisfies the
// orchestrator's Recorder and is safe for concurrent use.
type Manager struct {
	db       *sql.DB
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	pending Snapshot
}

// New creates a Manager on db. Call InitSchema before first use.
func New(db *sql.DB, cfg Config) *Manager {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		db:       db,
		interval: cfg.FlushInterval,
		log:      cfg.Logger.With("domain", "metrics"),
		pending:  newSnapshot(),
	}
}

// InitSchema creates the metrics table. Counters keep their total in sum.
func (m *Manager) InitSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS deckgen_metrics (
		name  TEXT PRIMARY KEY,
		kind  TEXT NOT NULL CHECK (kind IN ('counter', 'summary')),
		count INTEGER NOT NULL DEFAULT 0,
		sum   INTEGER NOT NULL DEFAULT 0,
		min   INTEGER NOT NULL DEFAULT 0,
		max   INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("create metrics table: %w", err)
	}
	return nil
}

// Inc adds delta to a counter. Non-positive deltas are ignored.
func (m *Manager) Inc(name string, delta int64) {
	if delta <= 0 {
		return
	}
	m.mu.Lock()
	m.pending.Counters[name] += delta
	m.mu.Unlock()
}

// Observe records one value for a summary.
func (m *Manager) Observe(name string, value int64) {
	m.mu.Lock()
	cur := m.pending.Summaries[name]
	cur.merge(Summary{Count: 1, Sum: value, Min: value, Max: value})
	m.pending.Summaries[name] = cur
	m.mu.Unlock()
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := m.Flush(context.WithoutCancel(ctx)); err != nil {
				m.log.Error("final flush failed", "err", err)
			}
			return
		case <-t.C:
			if err := m.Flush(ctx); err != nil {
				m.log.Warn("flush failed", "err", err)
			}
		}
	}
}

// Flush writes buffered observations in one transaction. On failure the
// observations go back into the buffer for the next attempt.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.pending
	m.pending = newSnapshot()
	m.mu.Unlock()
	if batch.empty() {
		return nil
	}
	if err := m.write(ctx, batch); err != nil {
		m.mu.Lock()
		m.pending.merge(batch)
		m.mu.Unlock()
		return err
	}
	return nil
}

const upsert = `INSERT INTO deckgen_metrics (name, kind, count, sum, min, max)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		count = deckgen_metrics.count + excluded.count,
		sum   = deckgen_metrics.sum + excluded.sum,
		min   = MIN(deckgen_metrics.min, excluded.min),
		max   = MAX(deckgen_metrics.max, excluded.max)`

func (m *Manager) write(ctx context.Context, batch Snapshot) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for n, v := range batch.Counters {
		if _, err := stmt.ExecContext(ctx, n, kindCounter, 0, v, 0, 0); err != nil {
			return fmt.Errorf("write counter %s: %w", n, err)
		}
	}
	for n, s := range batch.Summaries {
		if _, err := stmt.ExecContext(ctx, n, kindSummary, s.Count, s.Sum, s.Min, s.Max); err != nil {
			return fmt.Errorf("write summary %s: %w", n, err)
		}
	}
	return tx.Commit()
}

// Snapshot returns persisted totals with unflushed observations layered on top.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	out, err := m.load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	out.merge(m.pending)
	m.mu.Unlock()
	return out, nil
}

// load drains its rows before returning so a single-connection pool never
// waits on itself.
func (m *Manager) load(ctx context.Context) (Snapshot, error) {
	out := newSnapshot()
	rows, err := m.db.QueryContext(ctx, `SELECT name, kind, count, sum, min, max FROM deckgen_metrics`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, kind string
			s          Summary
		)
		if err := rows.Scan(&name, &kind, &s.Count, &s.Sum, &s.Min, &s.Max); err != nil {
			return out, err
		}
		if kind == kindCounter {
			out.Counters[name] = s.Sum
			continue
		}
		out.Summaries[name] = s
	}
	return out, rows.Err()
}

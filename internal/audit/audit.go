// Package audit is an async, buffered writer of coordination events to
// Postgres: leader elections, membership digest changes, callback runs,
// automaton transitions. It is additive history for operators, never read
// back by the core actors — not a queue (spec.md Non-goals).
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is a single coordination event.
type Entry struct {
	EventType string          // e.g. "membership_changed"
	PodKey    string          // the pod base-62 key this event concerns, if any
	Detail    json.RawMessage // event-specific payload, serialized by the caller
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer buffers Entry values and flushes them to Postgres in the
// background. Log never blocks; a full buffer drops the entry with a
// warning, since audit history must never slow down coordination.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates a Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background flush loop in its own goroutine and returns
// immediately. Close waits for the loop's final flush.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops accepting new entries and waits for the final flush.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an event for async writing.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit buffer full, dropping entry", "event_type", entry.EventType, "pod_key", entry.PodKey)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		w.logger.Error("acquiring connection for audit flush", "error", err)
		return
	}
	defer conn.Release()

	for _, e := range entries {
		if _, err := conn.Exec(ctx,
			`INSERT INTO audit_events (event_type, pod_key, detail) VALUES ($1, $2, $3)`,
			e.EventType, e.PodKey, e.Detail,
		); err != nil {
			w.logger.Error("writing audit event", "error", err, "event_type", e.EventType)
		}
	}
}

// MarshalDetail is a convenience for callers building Entry.Detail.
func MarshalDetail(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	return b
}

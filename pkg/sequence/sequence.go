// Package sequence implements the master sequence actor (spec.md §4.2): a
// single-threaded actor that assigns a monotone seq to each newly-seen pod
// key, publishes the pod record to the KV store, and touches the dirty
// sentinel so the leader's watch wakes.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wisbric/kontrol/internal/kvstore"
	"github.com/wisbric/kontrol/internal/telemetry"
	"github.com/wisbric/kontrol/pkg/pod"
)

// request is a single inbound update, processed to completion before the
// actor's mailbox accepts the next one.
type request struct {
	rec   pod.Record
	reply chan error
}

// Actor owns the in-memory key→seq assignment table. It must not be used
// concurrently from outside Update/Run.
type Actor struct {
	store  kvstore.Store
	prefix string
	ttl    time.Duration
	logger *slog.Logger

	mailbox chan request

	seqByKey map[string]int64
	maxSeq   int64
}

// New constructs a sequence actor. Call Run in its own goroutine before
// sending Update requests.
func New(store kvstore.Store, prefix string, ttl time.Duration, logger *slog.Logger) *Actor {
	return &Actor{
		store:    store,
		prefix:   prefix,
		ttl:      ttl,
		logger:   logger,
		mailbox:  make(chan request),
		seqByKey: map[string]int64{},
	}
}

// Run processes the mailbox until ctx is cancelled.
func (a *Actor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-a.mailbox:
			req.reply <- a.handle(ctx, req.rec)
		}
	}
}

// Update submits a pod record from /ping and blocks until the actor has
// assigned its seq (if new) and published the record.
func (a *Actor) Update(ctx context.Context, rec pod.Record) error {
	req := request{rec: rec, reply: make(chan error, 1)}
	select {
	case a.mailbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) handle(ctx context.Context, rec pod.Record) error {
	if rec.Key == "" {
		rec.Key = pod.KeyForIP(rec.IP)
	}
	if rec.Key == "" {
		return fmt.Errorf("sequence: record has no derivable key: %+v", rec)
	}

	if seq, ok := a.seqByKey[rec.Key]; ok {
		rec.Seq = seq
	} else {
		a.maxSeq++
		a.seqByKey[rec.Key] = a.maxSeq
		rec.Seq = a.maxSeq
	}

	body, err := pod.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sequence: marshal record %s: %w", rec.Key, err)
	}

	podKey := a.prefix + "/pods/" + rec.Key
	if err := a.store.Put(ctx, podKey, string(body), a.ttl); err != nil {
		return fmt.Errorf("sequence: put %s: %w", podKey, err)
	}

	if err := a.store.Notify(ctx, a.prefix+"/_dirty"); err != nil {
		a.logger.Warn("sequence: dirty notify failed", "error", err)
	}

	telemetry.PodsReporting.Set(float64(len(a.seqByKey)))
	return nil
}

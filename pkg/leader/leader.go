// Package leader implements the master leader elector (spec.md §4.3): an
// acquire/watch two-phase loop over an append-only lock primitive, and the
// membership-digest computation that drives callback dispatch.
package leader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/wisbric/kontrol/internal/kvstore"
	"github.com/wisbric/kontrol/internal/telemetry"
	"github.com/wisbric/kontrol/pkg/callback"
	"github.com/wisbric/kontrol/pkg/pod"
)

// Elector runs the acquire/watch loop for one master process.
type Elector struct {
	store    kvstore.Store
	prefix   string
	fover    time.Duration
	damper   time.Duration
	driver    *callback.Driver
	logger    *slog.Logger
	onDigest  func(digest string, pods []pod.Record) // optional, e.g. audit/notify hook
	onElected func(lockKey string)                   // optional, e.g. notify hook

	lockKey string
}

// New builds an Elector. fover governs lock TTL, refresh cadence (fover/8),
// and watch timeout (fover*0.375), per spec.md §5.
func New(store kvstore.Store, prefix string, fover, damper time.Duration, driver *callback.Driver, logger *slog.Logger) *Elector {
	return &Elector{store: store, prefix: prefix, fover: fover, damper: damper, driver: driver, logger: logger}
}

// OnDigestChange registers a hook invoked whenever the membership digest
// changes, in addition to the callback dispatch (e.g. for audit/Slack
// notification).
func (e *Elector) OnDigestChange(fn func(digest string, pods []pod.Record)) {
	e.onDigest = fn
}

// OnElected registers a hook invoked each time this process wins the leader
// lock, before it starts watching for membership changes (e.g. for a Slack
// notification).
func (e *Elector) OnElected(fn func(lockKey string)) {
	e.onElected = fn
}

// Run repeatedly acquires the lock and watches for membership changes,
// restarting from acquire whenever the lock is lost, until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) error {
	var lastDigest string
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := e.acquire(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Warn("leader: acquire failed, retrying", "error", err)
			continue
		}

		telemetry.LockObtainedTotal.Inc()
		if e.onElected != nil {
			e.onElected(e.lockKey)
		}
		if err := e.watch(ctx, &lastDigest); err != nil {
			if ctx.Err() != nil {
				e.releaseLock(context.Background())
				return nil
			}
			e.logger.Warn("leader: lost leadership, restarting from acquire", "error", err)
		}
	}
}

// acquire appends a lock key and refreshes/compares until this node holds
// the lexicographically smallest lock child.
func (e *Elector) acquire(ctx context.Context) error {
	lockPrefix := e.prefix + "/locks/leader-"
	key, err := e.store.AppendCreate(ctx, lockPrefix, "", e.fover)
	if err != nil {
		return fmt.Errorf("leader: appending lock: %w", err)
	}
	e.lockKey = key

	ticker := time.NewTicker(e.fover / 8)
	defer ticker.Stop()

	for {
		if err := e.store.Refresh(ctx, e.lockKey, e.fover); err != nil {
			return fmt.Errorf("leader: lock refresh failed (lagged): %w", err)
		}

		children, err := e.store.List(ctx, e.prefix+"/locks/")
		if err != nil {
			return fmt.Errorf("leader: listing locks: %w", err)
		}
		if len(children) == 0 {
			return fmt.Errorf("leader: no lock children found after append")
		}

		smallest := children[0].Key
		for _, c := range children {
			if c.Key < smallest {
				smallest = c.Key
			}
		}
		if smallest == e.lockKey {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// watch refreshes the held lock while blocking on the dirty sentinel,
// recomputing the membership digest and dispatching a callback whenever it
// changes. It returns an error (triggering a restart from acquire) if the
// lock refresh itself fails.
func (e *Elector) watch(ctx context.Context, lastDigest *string) error {
	refreshTicker := time.NewTicker(e.fover / 8)
	defer refreshTicker.Stop()

	watchTimeout := time.Duration(float64(e.fover) * 0.375)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refreshTicker.C:
			if err := e.store.Refresh(ctx, e.lockKey, e.fover); err != nil {
				return fmt.Errorf("leader: lock refresh failed: %w", err)
			}
		default:
		}

		// Blocking watch on the dirty sentinel; timeouts are benign and just
		// fall through to a rehash (spec.md §4.3).
		_, err := e.store.WatchOnce(ctx, e.prefix+"/_dirty", watchTimeout)
		if err != nil {
			return err
		}

		digest, pods, err := e.computeDigest(ctx)
		if err != nil {
			e.logger.Warn("leader: computing digest failed", "error", err)
			continue
		}

		if digest == *lastDigest {
			continue
		}
		*lastDigest = digest
		telemetry.DigestChangedTotal.Inc()

		if e.onDigest != nil {
			e.onDigest(digest, pods)
		}

		podsJSON, err := json.Marshal(pods)
		if err != nil {
			e.logger.Warn("leader: marshalling pods for callback env failed", "error", err)
			continue
		}

		req := callback.Request{
			Env: map[string]string{
				"MD5":  digest,
				"PODS": string(podsJSON),
			},
			TTL: time.Now().Add(e.damper),
		}
		if err := e.driver.Submit(ctx, req); err != nil {
			e.logger.Warn("leader: submitting callback request failed", "error", err)
		}
	}
}

// computeDigest reads all pod records, drops down=true entries, sorts by
// seq, and returns the MD5 over the canonical JSON encoding plus the
// filtered/sorted list itself.
func (e *Elector) computeDigest(ctx context.Context) (string, []pod.Record, error) {
	items, err := e.store.List(ctx, e.prefix+"/pods/")
	if err != nil {
		return "", nil, fmt.Errorf("leader: listing pods: %w", err)
	}

	pods := make([]pod.Record, 0, len(items))
	for _, it := range items {
		rec, err := pod.Parse([]byte(it.Value))
		if err != nil {
			e.logger.Warn("leader: skipping malformed pod record", "key", it.Key, "error", err)
			continue
		}
		if rec.Down {
			continue
		}
		pods = append(pods, rec)
	}

	sort.Slice(pods, func(i, j int) bool { return pods[i].Seq < pods[j].Seq })

	canonical, err := json.Marshal(pods)
	if err != nil {
		return "", nil, fmt.Errorf("leader: marshalling pods: %w", err)
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), pods, nil
}

// releaseLock best-effort deletes the held lock key to accelerate failover
// on graceful shutdown (spec.md §4.3).
func (e *Elector) releaseLock(ctx context.Context) {
	if e.lockKey == "" {
		return
	}
	if err := e.store.Delete(ctx, e.lockKey); err != nil {
		e.logger.Warn("leader: releasing lock on shutdown failed", "error", err)
	}
}

// Shutdown releases the held lock, if any. Safe to call even if this node
// never held the lock.
func (e *Elector) Shutdown(ctx context.Context) error {
	e.releaseLock(ctx)
	return nil
}

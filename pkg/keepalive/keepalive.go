// Package keepalive implements the slave-side keepalive emitter (spec.md
// §4.1): one goroutine per configured master, each periodically PUTting this
// pod's record to /ping, with a payload-file fast path and a final
// down=true emit on graceful shutdown.
package keepalive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wisbric/kontrol/internal/backoffx"
	"github.com/wisbric/kontrol/internal/telemetry"
	"github.com/wisbric/kontrol/pkg/pod"
)

// putTimeout bounds a single PUT /ping attempt (spec.md §5's 1s HTTP PUT
// timeout discipline).
const putTimeout = 1 * time.Second

// Emitter periodically reports this pod's state to every configured
// master. Construct with New and run with Run; Run blocks until ctx is
// cancelled, at which point it sends one final down=true emit before
// returning.
type Emitter struct {
	masters     []string
	period      time.Duration
	payloadPath string
	base        pod.Record
	client      *http.Client
	logger      *slog.Logger

	lastMtime time.Time
}

// New builds an Emitter. period is typically ttl*0.75 (spec.md §4.1).
func New(masters []string, period time.Duration, payloadPath string, base pod.Record, logger *slog.Logger) *Emitter {
	return &Emitter{
		masters:     masters,
		period:      period,
		payloadPath: payloadPath,
		base:        base,
		client:      &http.Client{Timeout: putTimeout},
		logger:      logger,
	}
}

// Run drives the emit loop until ctx is cancelled, then performs one final
// down=true emit before returning.
func (e *Emitter) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Each master gets its own force channel: a payload-file change must
	// wake every emitLoop goroutine, and a shared channel would only ever
	// deliver the signal to one of them.
	forces := make([]chan struct{}, len(e.masters))
	for i := range forces {
		forces[i] = make(chan struct{}, 1)
	}
	tickerStop := make(chan struct{})

	g.Go(func() error {
		e.payloadWatchLoop(gctx, forces, tickerStop)
		return nil
	})

	for i, m := range e.masters {
		master := m
		force := forces[i]
		g.Go(func() error {
			return e.emitLoop(gctx, master, force)
		})
	}

	err := g.Wait()
	close(tickerStop)

	final := e.base
	final.Down = true
	e.emitOnce(context.Background(), e.masters, final)

	return err
}

// payloadWatchLoop stats the payload file every tick; if its mtime has
// advanced, it reloads the payload and signals an immediate emit to every
// master's force channel.
func (e *Emitter) payloadWatchLoop(ctx context.Context, forces []chan struct{}, stop <-chan struct{}) {
	if e.payloadPath == "" {
		return
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			info, err := os.Stat(e.payloadPath)
			if err != nil {
				continue
			}
			if info.ModTime().After(e.lastMtime) {
				e.lastMtime = info.ModTime()
				data, err := os.ReadFile(e.payloadPath)
				if err != nil {
					e.logger.Warn("reading payload file", "path", e.payloadPath, "error", err)
					continue
				}
				var raw json.RawMessage
				if err := json.Unmarshal(data, &raw); err != nil {
					e.logger.Warn("parsing payload file as JSON", "path", e.payloadPath, "error", err)
					continue
				}
				e.base.Payload = raw
				for _, force := range forces {
					select {
					case force <- struct{}{}:
					default:
					}
				}
			}
		}
	}
}

// emitLoop sends the pod record to one master on a fixed period, waking
// early whenever force fires.
func (e *Emitter) emitLoop(ctx context.Context, master string, force <-chan struct{}) error {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		if err := e.emit(ctx, master, e.base); err != nil {
			e.logger.Warn("ping failed", "master", master, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-force:
			ticker.Reset(e.period)
		}
	}
}

// emit sends one pod record to master via PUT /ping, retrying with backoff
// for at most putTimeout (1s); a failure after that is returned and the
// next tick tries again.
func (e *Emitter) emit(ctx context.Context, master string, rec pod.Record) error {
	body, err := pod.Marshal(rec)
	if err != nil {
		return err
	}

	err = backoffx.RetryNotify(ctx, putTimeout, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("http://%s/ping", master), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ping to %s: status %d", master, resp.StatusCode)
		}
		return nil
	}, nil)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.KeepaliveEmittedTotal.WithLabelValues(master, outcome).Inc()
	return err
}

// emitOnce is the best-effort final emit used during shutdown: it does not
// propagate errors since the process is already exiting.
func (e *Emitter) emitOnce(ctx context.Context, masters []string, rec pod.Record) {
	for _, m := range masters {
		if err := e.emit(ctx, m, rec); err != nil {
			e.logger.Warn("final down=true ping failed", "master", m, "error", err)
		}
	}
}

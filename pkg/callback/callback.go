// Package callback implements the master's callback driver (spec.md §4.4):
// a FIFO where only the latest request survives to execution, gated by a
// damper window, running at most one subprocess at a time.
package callback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wisbric/kontrol/internal/kvstore"
	"github.com/wisbric/kontrol/internal/procexec"
	"github.com/wisbric/kontrol/internal/telemetry"
)

// Request is one callback invocation request, e.g. issued by the leader
// after a membership digest change.
type Request struct {
	Env map[string]string
	TTL time.Time // the request is not runnable before this instant (the damper)
}

// Driver is the single-threaded actor owning the callback FIFO.
type Driver struct {
	store   kvstore.Store
	prefix  string
	cmd     procexec.Command
	mailbox chan Request
	logger  *slog.Logger
}

// New builds a Driver that invokes rawCmd (parsed once via
// procexec.ParseCommand) whenever a coalesced request becomes runnable.
func New(store kvstore.Store, prefix, rawCmd string, logger *slog.Logger) *Driver {
	return &Driver{
		store:   store,
		prefix:  prefix,
		cmd:     procexec.ParseCommand(rawCmd, nil),
		mailbox: make(chan Request, 64),
		logger:  logger,
	}
}

// Submit enqueues req. Only the most recently submitted request survives to
// execution; earlier ones are coalesced away.
func (d *Driver) Submit(ctx context.Context, req Request) error {
	select {
	case d.mailbox <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the FIFO until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	var pending *Request
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-d.mailbox:
			r := req
			pending = &r

			// Drain any requests already buffered behind this one before
			// arming the timer. Without this, a long execute() can let the
			// mailbox fill with several requests whose TTLs have all
			// already lapsed; arming the timer on the first of them would
			// race timer.C against the remaining buffered sends, and
			// select's non-determinism could let a stale request win
			// instead of the latest (spec.md §4.4).
		drain:
			for {
				select {
				case next := <-d.mailbox:
					r := next
					pending = &r
				default:
					break drain
				}
			}

			wait := time.Until(pending.TTL)
			if wait < 0 {
				wait = 0
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)

		case <-timer.C:
			if pending == nil {
				continue
			}
			req := *pending
			pending = nil
			d.execute(ctx, req)
		}
	}
}

// execute spawns the configured callback command with the merged
// environment (process env + request env + STATE), and on success writes
// the concatenated stdout back to the state key.
func (d *Driver) execute(ctx context.Context, req Request) {
	start := time.Now()

	state, err := d.store.Get(ctx, d.prefix+"/state")
	if err != nil && err != kvstore.ErrNotFound {
		d.logger.Warn("callback: reading state key failed", "error", err)
	}

	env := os.Environ()
	for k, v := range req.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	env = append(env, "STATE="+state)

	cmd := d.cmd
	cmd.Env = env

	res, err := procexec.Run(ctx, cmd)
	telemetry.CallbackDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// Fatal spawn failure: discard the head request, return to idle.
		telemetry.CallbackRunsTotal.WithLabelValues("spawn_error").Inc()
		d.logger.Error("callback: spawn failed", "error", err)
		return
	}

	if err := d.store.Put(ctx, d.prefix+"/state", res.Stdout, 0); err != nil {
		// Parse/write errors are logged but non-fatal, per spec.md §4.4.
		d.logger.Warn("callback: writing state key failed", "error", err)
	}

	outcome := "ok"
	if res.ExitCode != 0 {
		outcome = "nonzero_exit"
	}
	telemetry.CallbackRunsTotal.WithLabelValues(outcome).Inc()
}

// Package script implements the slave-side script actor (spec.md §4.5): a
// serialized, single-shot subprocess executor backing PUT /script and the
// RPC invoke verb. Unlike the callback driver, every request produces
// exactly one execution in arrival order — nothing is coalesced.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wisbric/kontrol/internal/procexec"
)

type mailboxEntry struct {
	raw   []byte
	reply chan result
}

type result struct {
	stdout string
	err    error
}

// invokeBody is the wire shape of a script invocation.
type invokeBody struct {
	Cmd string            `json:"cmd"`
	Env map[string]string `json:"env"`
}

// Actor serializes script executions: one subprocess runs to completion
// before the next begins, in arrival order.
type Actor struct {
	mailbox chan mailboxEntry
	logger  *slog.Logger
}

// New constructs a script actor. Call Run in its own goroutine before
// calling Invoke.
func New(logger *slog.Logger) *Actor {
	return &Actor{mailbox: make(chan mailboxEntry), logger: logger}
}

// Run processes queued invocations one at a time until ctx is cancelled.
func (a *Actor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry := <-a.mailbox:
			entry.reply <- a.handle(ctx, entry.raw)
		}
	}
}

// Invoke submits raw (a {cmd, env} JSON body) and blocks until the
// subprocess it describes has run to completion, returning its stdout.
func (a *Actor) Invoke(ctx context.Context, raw []byte) (string, error) {
	entry := mailboxEntry{raw: raw, reply: make(chan result, 1)}
	select {
	case a.mailbox <- entry:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-entry.reply:
		return res.stdout, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *Actor) handle(ctx context.Context, raw []byte) result {
	var body invokeBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return result{err: fmt.Errorf("script: parsing request: %w", err)}
	}
	if body.Cmd == "" {
		return result{err: fmt.Errorf("script: request has no cmd")}
	}

	var env []string
	for k, v := range body.Env {
		env = append(env, k+"="+v)
	}

	cmd := procexec.ParseCommand(body.Cmd, env)
	res, err := procexec.Run(ctx, cmd)
	if err != nil {
		a.logger.Error("script: spawn failed", "error", err)
		return result{err: err}
	}
	return result{stdout: res.Stdout}
}

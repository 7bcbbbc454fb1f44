package automaton

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/wisbric/kontrol/internal/procexec"
	"github.com/wisbric/kontrol/internal/telemetry"
)

// preemptDampener is the minimum age a second-oldest queued request must
// reach before it can preempt the running state (spec.md §4.6): it keeps a
// script's own self-dispatched transition from killing itself.
const preemptDampener = 1 * time.Second

// tickInterval is the polling resolution for preemption checks and
// subprocess-completion detection (spec.md §5).
const tickInterval = 250 * time.Millisecond

type request struct {
	target string
	extra  string
	wait   bool
	tick   time.Time
	reply  chan string // "OK" or "KO", buffered 1
}

type setCmd struct {
	key, val string
	done     chan struct{}
}

type stateQuery struct {
	reply chan string
}

// Machine is the automaton actor: one goroutine owning the current state,
// the private environment map, and the transition FIFO.
type Machine struct {
	manifest *Manifest
	cur      State
	env      map[string]string
	socket   string
	logger   *slog.Logger

	mailbox chan any
	fifo    []*request
}

// New builds a Machine starting in manifest.Initial, with env seeded from
// a copy of the process environment — never aliased, per spec.md §9's bug
// note that SET must not leak into the real process environment.
func New(manifest *Manifest, socketPath string, logger *slog.Logger) *Machine {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}

	return &Machine{
		manifest: manifest,
		cur:      manifest.States[manifest.Initial],
		env:      env,
		socket:   socketPath,
		logger:   logger,
		mailbox:  make(chan any),
	}
}

// Submit enqueues a transition request to target (which may be a declared
// tag or, for admission purposes against glob next-patterns, any string)
// and returns "OK" or "KO". For wait=true, it blocks until the spawned
// state's process exits; for wait=false, it returns as soon as the request
// is admitted or rejected.
func (m *Machine) Submit(ctx context.Context, target, extra string, wait bool) (string, error) {
	req := &request{target: target, extra: extra, wait: wait, tick: time.Now(), reply: make(chan string, 1)}
	select {
	case m.mailbox <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case reply := <-req.reply:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Die enqueues a non-blocking transition to the manifest's terminal state.
func (m *Machine) Die(ctx context.Context) (string, error) {
	if m.manifest.Terminal == "" {
		return "KO", nil
	}
	return m.Submit(ctx, m.manifest.Terminal, "", false)
}

// Set mutates the actor's private environment map for future spawns.
func (m *Machine) Set(ctx context.Context, key, val string) error {
	cmd := setCmd{key: key, val: val, done: make(chan struct{})}
	select {
	case m.mailbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentState returns the tag of the state the machine currently occupies.
func (m *Machine) CurrentState(ctx context.Context) (string, error) {
	q := stateQuery{reply: make(chan string, 1)}
	select {
	case m.mailbox <- q:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case tag := <-q.reply:
		return tag, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run drives the actor until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if len(m.fifo) == 0 {
			select {
			case msg := <-m.mailbox:
				m.handle(msg)
			case <-ctx.Done():
				return nil
			}
			continue
		}

		head := m.fifo[0]
		if !m.admitted(head.target) {
			m.fifo = m.fifo[1:]
			m.replyAndCount(head, "KO")
			continue
		}

		proc, err := m.spawn(head)
		if err != nil {
			m.fifo = m.fifo[1:]
			m.logger.Error("automaton: spawn failed", "target", head.target, "error", err)
			m.replyAndCount(head, "KO")
			continue
		}

		m.cur = m.manifest.States[head.target]
		if !head.wait {
			m.replyAndCount(head, "OK")
		} else {
			telemetry.AutomatonTransitionsTotal.WithLabelValues("admitted").Inc()
		}

		m.runUntilComplete(ctx, proc, head)
		m.fifo = m.fifo[1:]
	}
}

func (m *Machine) replyAndCount(req *request, outcome string) {
	label := "rejected"
	if outcome == "OK" {
		label = "admitted"
	}
	telemetry.AutomatonTransitionsTotal.WithLabelValues(label).Inc()
	if req.reply != nil {
		req.reply <- outcome
	}
}

// runUntilComplete waits for proc to exit, servicing the mailbox and
// checking the preemption condition on every tick.
func (m *Machine) runUntilComplete(ctx context.Context, proc *procexec.Process, head *request) {
	done := make(chan procexec.Result, 1)
	go func() { done <- proc.Wait(false) }()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			if head.wait {
				head.reply <- "OK"
			}
			return

		case msg := <-m.mailbox:
			m.handle(msg)

		case <-ticker.C:
			if len(m.fifo) >= 2 && time.Since(m.fifo[1].tick) > preemptDampener {
				proc.Kill()
			}

		case <-ctx.Done():
			proc.Kill()
			<-done
			return
		}
	}
}

func (m *Machine) handle(msg any) {
	switch v := msg.(type) {
	case *request:
		m.fifo = append(m.fifo, v)
	case setCmd:
		m.env[v.key] = v.val
		close(v.done)
	case stateQuery:
		v.reply <- m.cur.Tag
	}
}

// admitted implements spec.md §4.6's transition admission: allowed =
// cur.next ∪ {terminal}, unless cur is terminal (in which case only a
// terminal→terminal no-op is admitted).
func (m *Machine) admitted(target string) bool {
	if m.manifest.Terminal != "" && m.cur.Tag == m.manifest.Terminal {
		return target == m.manifest.Terminal
	}

	allowed := append([]string{}, m.cur.Next...)
	if m.manifest.Terminal != "" {
		allowed = append(allowed, m.manifest.Terminal)
	}
	for _, pattern := range allowed {
		if ok, _ := path.Match(pattern, target); ok {
			return true
		}
	}
	return false
}

func (m *Machine) spawn(req *request) (*procexec.Process, error) {
	state, ok := m.manifest.States[req.target]
	if !ok {
		return nil, fmt.Errorf("automaton: no declared state %q to spawn", req.target)
	}

	env := make([]string, 0, len(m.env)+2)
	for k, v := range m.env {
		env = append(env, k+"="+v)
	}
	env = append(env, "SOCKET="+m.socket, "INPUT="+req.extra)

	// A state without a shell snippet (such as the implicit idle state)
	// runs a no-op command.
	shell := state.Shell
	if shell == "" {
		shell = "true"
	}
	return procexec.Start(procexec.Command{Shell: shell, Env: env})
}

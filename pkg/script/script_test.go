package script

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestActor() (*Actor, context.CancelFunc) {
	a := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	return a, cancel
}

func TestInvoke_ReturnsStdout(t *testing.T) {
	a, cancel := newTestActor()
	defer cancel()

	out, err := a.Invoke(context.Background(), []byte(`{"cmd":"echo hello"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("out = %q", out)
	}
}

func TestInvoke_SerializesInOrder(t *testing.T) {
	a, cancel := newTestActor()
	defer cancel()

	// The first invocation is slow; if the two ran concurrently, "two"
	// would finish first.
	done := make(chan string, 2)
	go func() {
		out, _ := a.Invoke(context.Background(), []byte(`{"cmd":"sleep 0.2; echo one"}`))
		done <- strings.TrimSpace(out)
	}()
	time.Sleep(50 * time.Millisecond)
	go func() {
		out, _ := a.Invoke(context.Background(), []byte(`{"cmd":"echo two"}`))
		done <- strings.TrimSpace(out)
	}()

	first, second := <-done, <-done
	if first != "one" || second != "two" {
		t.Errorf("completion order = [%s %s], want [one two]", first, second)
	}
}

func TestInvoke_MissingCmd(t *testing.T) {
	a, cancel := newTestActor()
	defer cancel()

	if _, err := a.Invoke(context.Background(), []byte(`{}`)); err == nil {
		t.Error("expected error for missing cmd")
	}
}

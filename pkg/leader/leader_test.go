package leader

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wisbric/kontrol/internal/kvstore"
	"github.com/wisbric/kontrol/pkg/callback"
	"github.com/wisbric/kontrol/pkg/pod"
)

func TestElector_AcquiresLockAndDispatchesCallback(t *testing.T) {
	store := kvstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	prefix := "/kontrol/ns/app"

	rec := pod.Record{App: "app", ID: "p1", Key: "k1", Seq: 1}
	body, _ := pod.Marshal(rec)
	if err := store.Put(ctx, prefix+"/pods/k1", string(body), 0); err != nil {
		t.Fatalf("seed pod: %v", err)
	}

	driver := callback.New(store, prefix, "echo $MD5", logger)
	driverCtx, cancelDriver := context.WithCancel(ctx)
	defer cancelDriver()
	go driver.Run(driverCtx)

	e := New(store, prefix, 80*time.Millisecond, 10*time.Millisecond, driver, logger)

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	go e.Run(runCtx)

	time.Sleep(20 * time.Millisecond)
	if err := store.Notify(ctx, prefix+"/_dirty"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		val, err := store.Get(ctx, prefix+"/state")
		if err == nil && val != "" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for callback dispatch after digest change")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestElector_ComputeDigest_ExcludesDown(t *testing.T) {
	store := kvstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	prefix := "/kontrol/ns/app"

	up := pod.Record{App: "app", ID: "p1", Key: "k1", Seq: 1}
	down := pod.Record{App: "app", ID: "p2", Key: "k2", Seq: 2, Down: true}
	b1, _ := pod.Marshal(up)
	b2, _ := pod.Marshal(down)
	_ = store.Put(ctx, prefix+"/pods/k1", string(b1), 0)
	_ = store.Put(ctx, prefix+"/pods/k2", string(b2), 0)

	e := New(store, prefix, time.Second, time.Second, nil, logger)
	digest, pods, err := e.computeDigest(ctx)
	if err != nil {
		t.Fatalf("computeDigest: %v", err)
	}
	if len(pods) != 1 || pods[0].Key != "k1" {
		t.Fatalf("pods = %+v, want only k1", pods)
	}
	if digest == "" {
		t.Error("expected non-empty digest")
	}
}

func TestElector_ComputeDigest_StableAcrossEqualInput(t *testing.T) {
	store := kvstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	prefix := "/kontrol/ns/app"

	rec := pod.Record{App: "app", ID: "p1", Key: "k1", Seq: 1}
	b, _ := pod.Marshal(rec)
	_ = store.Put(ctx, prefix+"/pods/k1", string(b), 0)

	e := New(store, prefix, time.Second, time.Second, nil, logger)
	d1, _, err := e.computeDigest(ctx)
	if err != nil {
		t.Fatalf("computeDigest: %v", err)
	}
	d2, _, err := e.computeDigest(ctx)
	if err != nil {
		t.Fatalf("computeDigest: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digest not stable: %q vs %q", d1, d2)
	}
}

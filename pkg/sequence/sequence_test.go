package sequence

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wisbric/kontrol/internal/kvstore"
	"github.com/wisbric/kontrol/pkg/pod"
)

func newTestActor() (*Actor, kvstore.Store, context.CancelFunc) {
	store := kvstore.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(store, "/kontrol/ns/app", 30*time.Second, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	return a, store, cancel
}

func TestUpdate_AssignsSeqOnce(t *testing.T) {
	a, store, cancel := newTestActor()
	defer cancel()
	ctx := context.Background()

	rec := pod.Record{App: "app", ID: "p1", IP: "10.0.0.1", Key: "4tE"}
	if err := a.Update(ctx, rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := a.Update(ctx, rec); err != nil {
		t.Fatalf("Update (again): %v", err)
	}

	raw, err := store.Get(ctx, "/kontrol/ns/app/pods/4tE")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got pod.Record
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Seq != 1 {
		t.Errorf("Seq = %d, want 1 (stable across repeated updates)", got.Seq)
	}
}

func TestUpdate_MonotoneAcrossKeys(t *testing.T) {
	a, store, cancel := newTestActor()
	defer cancel()
	ctx := context.Background()

	_ = a.Update(ctx, pod.Record{App: "app", ID: "p1", Key: "k1"})
	_ = a.Update(ctx, pod.Record{App: "app", ID: "p2", Key: "k2"})

	items, err := store.List(ctx, "/kontrol/ns/app/pods/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("List() = %d items, want 2", len(items))
	}

	seqs := map[string]int64{}
	for _, it := range items {
		var r pod.Record
		_ = json.Unmarshal([]byte(it.Value), &r)
		seqs[r.Key] = r.Seq
	}
	if seqs["k1"] == seqs["k2"] {
		t.Errorf("expected distinct seqs, got %v", seqs)
	}
}

func TestUpdate_TouchesDirtySentinel(t *testing.T) {
	a, store, cancel := newTestActor()
	defer cancel()
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() {
		woken, _ := store.WatchOnce(ctx, "/kontrol/ns/app/_dirty", time.Second)
		done <- woken
	}()
	time.Sleep(10 * time.Millisecond)

	if err := a.Update(ctx, pod.Record{App: "app", ID: "p1", Key: "k1"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	select {
	case woken := <-done:
		if !woken {
			t.Error("expected dirty watcher to wake")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dirty notify")
	}
}

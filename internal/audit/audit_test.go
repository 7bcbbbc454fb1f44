package audit

import (
	"io"
	"log/slog"
	"testing"
)

func TestWriter_LogDropsWhenFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWriter(nil, logger)

	for i := 0; i < bufferSize+10; i++ {
		w.Log(Entry{EventType: "test"})
	}
	if len(w.entries) != bufferSize {
		t.Errorf("entries channel len = %d, want %d (full, excess dropped)", len(w.entries), bufferSize)
	}
}

func TestMarshalDetail(t *testing.T) {
	out := MarshalDetail(map[string]int{"seq": 3})
	if string(out) != `{"seq":3}` {
		t.Errorf("MarshalDetail = %s", out)
	}
}

package rpcserver

import (
	"context"
	"io"
	"log/slog"
	"net/rpc"
	"testing"
)

func TestPingInvoke(t *testing.T) {
	var gotPing string
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := Listen("127.0.0.1:0", Deps{
		OnPing: func(_ context.Context, raw []byte) error {
			gotPing = string(raw)
			return nil
		},
		RunScript: func(_ context.Context, raw []byte) (string, error) {
			return "ok:" + string(raw), nil
		},
	}, logger)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	client, err := rpc.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var none struct{}
	if err := client.Call("Kontrol.Ping", `{"id":"p1"}`, &none); err != nil {
		t.Fatalf("Ping call: %v", err)
	}
	if gotPing != `{"id":"p1"}` {
		t.Errorf("OnPing got %q", gotPing)
	}

	var reply string
	if err := client.Call("Kontrol.Invoke", `{"cmd":"echo hi"}`, &reply); err != nil {
		t.Fatalf("Invoke call: %v", err)
	}
	if reply != `ok:{"cmd":"echo hi"}` {
		t.Errorf("Invoke reply = %q", reply)
	}
}

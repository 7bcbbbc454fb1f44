package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(deps Deps) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(deps, logger, prometheus.NewRegistry())
}

func TestHandlePing_OK(t *testing.T) {
	var gotBody string
	s := newTestServer(Deps{
		OnPing: func(_ context.Context, body []byte) error {
			gotBody = string(body)
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/ping", strings.NewReader(`{"id":"p1"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotBody != `{"id":"p1"}` {
		t.Errorf("OnPing got body %q", gotBody)
	}
}

func TestHandlePing_Error(t *testing.T) {
	s := newTestServer(Deps{
		OnPing: func(_ context.Context, _ []byte) error { return errors.New("boom") },
	})

	req := httptest.NewRequest(http.MethodPut, "/ping", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleState(t *testing.T) {
	s := newTestServer(Deps{
		GetState: func(_ context.Context) (string, error) { return "all good", nil },
	})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "all good" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestHandleScript(t *testing.T) {
	s := newTestServer(Deps{
		RunScript: func(_ context.Context, body []byte) (string, error) {
			return "ran:" + string(body), nil
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/script", strings.NewReader(`{"cmd":"echo hi"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `ran:{"cmd":"echo hi"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleDown(t *testing.T) {
	called := false
	s := newTestServer(Deps{
		Shutdown: func(_ context.Context) error { called = true; return nil },
	})

	req := httptest.NewRequest(http.MethodPost, "/down", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !called {
		t.Error("expected Shutdown to be called")
	}
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

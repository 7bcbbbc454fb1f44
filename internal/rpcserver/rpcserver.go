// Package rpcserver exposes the same two coordination verbs as the HTTP
// surface (ping, invoke) over stdlib net/rpc, mirroring spec.md §6's
// ping/invoke RPC contract for clients that prefer a long-lived connection
// over HTTP. No protobuf/gRPC framework appears anywhere in the reference
// corpus, and hand-authoring .pb.go stubs without a compiler to generate
// them would mean fabricating code rather than depending on it — so this
// is the one surface that intentionally stays on the standard library.
package rpcserver

import (
	"context"
	"log/slog"
	"net"
	"net/rpc"
)

// Deps mirror httpserver.Deps for the subset of verbs net/rpc exposes.
type Deps struct {
	OnPing    func(ctx context.Context, raw []byte) error
	RunScript func(ctx context.Context, raw []byte) (string, error)
}

// Service is the net/rpc receiver registered under the name "Kontrol".
type Service struct {
	deps   Deps
	logger *slog.Logger
}

// Ping is the RPC equivalent of PUT /ping.
func (s *Service) Ping(raw string, _ *struct{}) error {
	return s.deps.OnPing(context.Background(), []byte(raw))
}

// Invoke is the RPC equivalent of PUT /script; reply is the captured stdout.
func (s *Service) Invoke(raw string, reply *string) error {
	out, err := s.deps.RunScript(context.Background(), []byte(raw))
	if err != nil {
		return err
	}
	*reply = out
	return nil
}

// Server listens for net/rpc connections and serves Service until the
// listener is closed.
type Server struct {
	ln     net.Listener
	logger *slog.Logger
}

// Listen binds addr and registers the RPC service.
func Listen(addr string, deps Deps, logger *slog.Logger) (*Server, error) {
	svc := &Service{deps: deps, logger: logger}
	server := rpc.NewServer()
	if err := server.RegisterName("Kontrol", svc); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go server.ServeConn(conn)
		}
	}()

	return &Server{ln: ln, logger: logger}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close stops accepting new RPC connections.
func (s *Server) Close() error { return s.ln.Close() }

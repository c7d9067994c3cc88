// Package proxyserver binds the dual HTTP/HTTPS TCP listeners and dispatches
// each accepted connection to its upstream: a cluster pod over a
// port-forward bridge, or a local TCP address, chosen by sniffing what
// actually arrives on the wire rather than which port it arrived on.
package proxyserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/hydraproxy/ingressproxy/internal/bridge"
	"github.com/hydraproxy/ingressproxy/internal/route"
	"github.com/hydraproxy/ingressproxy/internal/tlsca"
)

// defaultPeekTimeout bounds how long the dispatcher waits for enough bytes
// to sniff a connection's protocol — an explicit slowloris guard the core
// contract does not itself require.
const defaultPeekTimeout = 10 * time.Second

// Server dispatches accepted connections between cluster port-forwards and
// local TCP addresses, per the route table, terminating TLS itself when the
// wire content calls for it.
type Server struct {
	Logger      *slog.Logger
	Routes      *route.Table
	Clusters    map[string]bridge.ClusterClient // cluster ID -> pod/port-forward handle
	TLSProvider *tlsca.Provider                 // nil disables the TLS path entirely
	PeekTimeout time.Duration                   // defaults to 10s when zero
}

// ListenAndServe binds listeners at httpAddr and httpsAddr and serves until
// ctx is cancelled. Despite the names, both listeners run the identical
// dispatch logic — the HTTP/HTTPS split is nominal, and what each
// connection actually is gets sniffed off the wire.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, httpsAddr string) error {
	errCh := make(chan error, 2)
	listeners := make([]net.Listener, 0, 2)

	for _, addr := range []string{httpAddr, httpsAddr} {
		if addr == "" {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return err
		}
		listeners = append(listeners, ln)
		go s.acceptLoop(ctx, ln, errCh)
	}

	<-ctx.Done()
	for _, ln := range listeners {
		_ = ln.Close()
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, errCh chan<- error) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if s.Logger != nil {
				s.Logger.Error("proxyserver: accept failed", "error", err, "addr", ln.Addr().String())
			}
			errCh <- err
			return
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) peekTimeout() time.Duration {
	if s.PeekTimeout > 0 {
		return s.PeekTimeout
	}
	return defaultPeekTimeout
}

// newConnID returns a short correlation id for tagging one connection's log
// lines across its whole state machine: the first 8 characters of a
// random uuid.
func newConnID() string {
	return uuid.New().String()[:8]
}

func (s *Server) logState(connID string, state bridge.State, peer string, fields ...any) {
	if s.Logger == nil {
		return
	}
	args := append([]any{"conn", connID, "state", state, "peer", peer}, fields...)
	s.Logger.Debug("proxyserver: connection state", args...)
}

func (s *Server) fail(connID string, conn net.Conn, stage bridge.State, err error) {
	if s.Logger != nil {
		s.Logger.Warn("proxyserver: connection failed", "conn", connID, "state", bridge.StateFailed, "stage", stage, "peer", conn.RemoteAddr().String(), "error", err)
	}
	_ = conn.Close()
}

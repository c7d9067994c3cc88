package proxyserver

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/hydraproxy/ingressproxy/internal/bridge"
	"github.com/hydraproxy/ingressproxy/internal/route"
	"github.com/hydraproxy/ingressproxy/internal/tlsca"
)

// handle runs the per-connection state machine: NEW -> PEEKED ->
// (SNI_READ | HOST_READ) -> UPSTREAM_RESOLVED -> UPSTREAM_OPENED ->
// SPLICING -> DRAIN -> CLOSED, with any step able to fail out to FAILED.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	connID := newConnID()
	peer := conn.RemoteAddr().String()
	s.logState(connID, bridge.StateNew, peer)

	br := bufio.NewReaderSize(conn, plaintextPeekSize)

	_ = conn.SetReadDeadline(time.Now().Add(s.peekTimeout()))
	peek3, err := br.Peek(3)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		s.fail(connID, conn, bridge.StateNew, err)
		return
	}
	s.logState(connID, bridge.StatePeeked, peer)

	if isTLS(peek3) {
		s.handleTLS(ctx, conn, br, connID, peer)
		return
	}
	s.handlePlain(ctx, conn, br, connID, peer)
}

func (s *Server) handlePlain(ctx context.Context, conn net.Conn, br *bufio.Reader, connID, peer string) {
	_ = conn.SetReadDeadline(time.Now().Add(s.peekTimeout()))
	peeked, _ := br.Peek(br.Buffered())
	for len(peeked) < plaintextPeekSize && !bytes.Contains(peeked, []byte("\r\n\r\n")) {
		_, err := br.Peek(len(peeked) + 1)
		peeked, _ = br.Peek(br.Buffered())
		if err != nil {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	host := peekHost(peeked)
	if host == "" {
		s.fail(connID, conn, bridge.StateHostRead, fmt.Errorf("no usable Host header"))
		return
	}
	s.logState(connID, bridge.StateHostRead, peer, "host", host)

	client := newBufConn(conn, br)

	if cluster, ok := s.Routes.ClusterFor(host); ok {
		s.dialCluster(ctx, conn, client, cluster, false, connID, peer)
		return
	}

	if addr, ok := s.Routes.AddressFor(host); ok {
		s.dialAddress(conn, client, addr, connID, peer)
		return
	}

	if cluster, ok := s.Routes.SoleCluster(); ok {
		s.logState(connID, bridge.StateUpstreamResolved, peer, "cluster", cluster.ID(), "fallback", "sole-cluster")
		s.dialClusterOpen(ctx, conn, client, cluster, false, connID, peer)
		return
	}

	s.fail(connID, conn, bridge.StateHostRead, fmt.Errorf("no route for host %q", host))
}

// dialCluster logs the upstream-resolved state for an exact route-table
// match and opens the bridge.
func (s *Server) dialCluster(ctx context.Context, conn net.Conn, client io.ReadWriteCloser, cluster route.ClusterClient, secure bool, connID, peer string) {
	s.logState(connID, bridge.StateUpstreamResolved, peer, "cluster", cluster.ID())
	s.dialClusterOpen(ctx, conn, client, cluster, secure, connID, peer)
}

// dialClusterOpen looks up cluster's bridge handle, opens the port-forward
// stream, and splices it against client. Shared by the exact-match and
// sole-cluster-fallback paths, which differ only in how they logged the
// resolved state.
func (s *Server) dialClusterOpen(ctx context.Context, conn net.Conn, client io.ReadWriteCloser, cluster route.ClusterClient, secure bool, connID, peer string) {
	clusterClient, ok := s.Clusters[cluster.ID()]
	if !ok {
		s.fail(connID, conn, bridge.StateUpstreamResolved, fmt.Errorf("no bridge handle for cluster %q", cluster.ID()))
		return
	}

	stream, err := bridge.Open(ctx, clusterClient, secure)
	if err != nil {
		s.fail(connID, conn, bridge.StateUpstreamResolved, err)
		return
	}
	s.logState(connID, bridge.StateUpstreamOpened, peer)

	if secure {
		upstream := tls.Client(bridge.AsConn(stream), tlsca.ClientConfig())
		s.splice(connID, peer, client, upstream)
		return
	}
	s.splice(connID, peer, client, stream)
}

// dialAddress dials a static local-client address and splices it against
// client.
func (s *Server) dialAddress(conn net.Conn, client io.ReadWriteCloser, addr string, connID, peer string) {
	s.logState(connID, bridge.StateUpstreamResolved, peer, "addr", addr)
	upstream, err := net.Dial("tcp", addr)
	if err != nil {
		s.fail(connID, conn, bridge.StateUpstreamResolved, err)
		return
	}
	s.logState(connID, bridge.StateUpstreamOpened, peer)
	s.splice(connID, peer, client, upstream)
}

func (s *Server) handleTLS(ctx context.Context, conn net.Conn, br *bufio.Reader, connID, peer string) {
	if s.TLSProvider == nil {
		s.fail(connID, conn, bridge.StatePeeked, fmt.Errorf("tls not configured"))
		return
	}

	var sni string
	tlsConf := &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			sni = hello.ServerName
			return s.TLSProvider.ConfigFor(ctx, hello.ServerName)
		},
	}

	tlsConn := tls.Server(newBufConn(conn, br), tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.fail(connID, conn, bridge.StateSNIRead, err)
		return
	}
	s.logState(connID, bridge.StateSNIRead, peer, "sni", sni)

	if cluster, ok := s.Routes.ClusterFor(sni); ok {
		s.dialCluster(ctx, conn, tlsConn, cluster, true, connID, peer)
		return
	}

	if addr, ok := s.Routes.AddressFor(sni); ok {
		s.dialAddress(conn, tlsConn, addr, connID, peer)
		return
	}

	if cluster, ok := s.Routes.SoleCluster(); ok {
		s.logState(connID, bridge.StateUpstreamResolved, peer, "cluster", cluster.ID(), "fallback", "sole-cluster")
		s.dialClusterOpen(ctx, conn, tlsConn, cluster, true, connID, peer)
		return
	}

	s.fail(connID, conn, bridge.StateSNIRead, fmt.Errorf("no route for sni %q", sni))
}

func (s *Server) splice(connID, peer string, client, upstream io.ReadWriteCloser) {
	s.logState(connID, bridge.StateSplicing, peer)
	err := bridge.Splice(client, upstream)
	s.logState(connID, bridge.StateDrain, peer)
	if err != nil && s.Logger != nil {
		s.Logger.Warn("proxyserver: splice ended with error", "conn", connID, "peer", peer, "error", err)
	}
	_ = client.Close()
	_ = upstream.Close()
	s.logState(connID, bridge.StateClosed, peer)
}

package dnsserver

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydraproxy/ingressproxy/internal/dns"
	"github.com/hydraproxy/ingressproxy/internal/wire"
)

// newEchoUpstream starts a fake upstream resolver on 127.0.0.1 that answers
// every request with respond(parsedRequest); the caller closes the returned
// conn, which also stops the answering goroutine.
func newEchoUpstream(t *testing.T, respond func(dns.Packet) dns.Packet) net.PacketConn {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		buf := make([]byte, 4096)
		for {
			n, peer, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			req, err := dns.ReadPacket(buf[:n])
			if err != nil {
				continue
			}
			resp := respond(req)

			out := wire.NewBuffer(wire.DefaultCap * 4)
			if err := dns.WritePacket(resp, out); err != nil {
				continue
			}
			_, _ = conn.WriteTo(out.Bytes(), peer)
		}
	}()

	return conn
}

// closedUpstreamAddr returns the address of a UDP socket that has already
// been closed, reliably producing a connection-refused (ICMP port
// unreachable) error on the next send over loopback.
func closedUpstreamAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

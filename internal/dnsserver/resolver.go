package dnsserver

import (
	"context"
	"fmt"
	"net"

	"github.com/hydraproxy/ingressproxy/internal/dns"
	"github.com/hydraproxy/ingressproxy/internal/wire"
)

// upstreamReadBufferSize is sized for the largest UDP response an upstream
// resolver can send (EDNS(0) permits up to a full 64KB UDP payload, though
// in practice responses are far smaller).
const upstreamReadBufferSize = 65535

// lookup forwards req to the configured upstream resolver on port 53 and
// returns its parsed response. It clears the additional section first
// (some upstreams reject arbitrary OPT passthrough) and uses one fresh
// ephemeral socket per forward — there is no transaction table, since the
// upstream's own response carries the ID we sent.
func (s *Server) lookup(ctx context.Context, req dns.Packet) (dns.Packet, error) {
	req.Additionals = nil

	out := wire.NewBuffer(wire.DefaultCap * 4)
	if err := dns.WritePacket(req, out); err != nil {
		return dns.Packet{}, fmt.Errorf("dnsserver: serializing upstream request: %w", err)
	}

	upstreamAddr := s.Upstream
	if _, _, err := net.SplitHostPort(upstreamAddr); err != nil {
		upstreamAddr = net.JoinHostPort(upstreamAddr, "53")
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "udp", upstreamAddr)
	if err != nil {
		return dns.Packet{}, fmt.Errorf("dnsserver: dialing upstream %q: %w", upstreamAddr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(out.Bytes()); err != nil {
		return dns.Packet{}, fmt.Errorf("dnsserver: writing to upstream: %w", err)
	}

	buf := make([]byte, upstreamReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return dns.Packet{}, fmt.Errorf("dnsserver: reading from upstream: %w", err)
	}

	resp, err := dns.ReadPacket(buf[:n])
	if err != nil {
		return dns.Packet{}, fmt.Errorf("dnsserver: parsing upstream response: %w", err)
	}
	return resp, nil
}

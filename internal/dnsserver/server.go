// Package dnsserver answers DNS queries over a single UDP socket: cache
// hits are served directly from the host cache, misses are forwarded to one
// upstream resolver. Unlike a recursive resolver with a transaction table,
// each forward uses a fresh ephemeral socket and trusts the upstream to
// echo back the query's own transaction ID.
package dnsserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/hydraproxy/ingressproxy/internal/dns"
	"github.com/hydraproxy/ingressproxy/internal/hostcache"
	"github.com/hydraproxy/ingressproxy/internal/pool"
	"github.com/hydraproxy/ingressproxy/internal/wire"
)

// bufferPool reduces allocations for incoming datagrams; sized for the
// largest request this server accepts (see dns.MaxIncomingDNSMessageSize).
var bufferPool = pool.New(func() *[]byte {
	buf := make([]byte, dns.MaxIncomingDNSMessageSize)
	return &buf
})

// Server answers DNS queries from a host cache, forwarding cache misses to
// a single upstream resolver on port 53.
type Server struct {
	Logger   *slog.Logger
	Cache    *hostcache.Cache
	Upstream string // upstream resolver IP (or IP:port; ":53" assumed if no port)
}

// ListenAndServe binds a single UDP socket at addr and serves until ctx is
// canceled or the socket errors. Each inbound datagram is handled in its
// own goroutine; the receive loop never blocks on a slow query.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("dnsserver: binding %q: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		bufPtr := bufferPool.Get()
		n, peer, err := conn.ReadFrom(*bufPtr)
		if err != nil {
			bufferPool.Put(bufPtr)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dnsserver: reading datagram: %w", err)
		}

		go s.handleQuery(ctx, conn, bufPtr, n, peer)
	}
}

// handleQuery implements the per-datagram contract: parse, consult the
// cache, forward on miss, serialize, send. Errors after serialization are
// logged but never propagate to the receive loop.
func (s *Server) handleQuery(ctx context.Context, conn net.PacketConn, bufPtr *[]byte, n int, peer net.Addr) {
	defer bufferPool.Put(bufPtr)

	reqBytes := make([]byte, n)
	copy(reqBytes, (*bufPtr)[:n])

	resp, ok := s.buildResponse(ctx, reqBytes)
	if !ok {
		return
	}

	out := wire.NewBuffer(wire.DefaultCap * 8)
	if err := dns.WritePacket(resp, out); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("dnsserver: failed to serialize response", "peer", peer, "error", err)
		}
		return
	}

	if _, err := conn.WriteTo(out.Bytes(), peer); err != nil && s.Logger != nil {
		s.Logger.Warn("dnsserver: failed to send response", "peer", peer, "error", err)
	}
}

// buildResponse implements handle_query: build a response carrying the
// request's ID with response/recursion-desired/recursion-available all
// set, then FORMERR on a questionless request, else serve from cache or
// forward upstream. ok is false only when even the header could not be
// recovered, in which case nothing is sent.
func (s *Server) buildResponse(ctx context.Context, reqBytes []byte) (dns.Packet, bool) {
	req, err := dns.ParseRequestBounded(reqBytes)
	if err != nil {
		h, recovered := recoverHeader(reqBytes)
		if !recovered {
			if s.Logger != nil {
				s.Logger.Warn("dnsserver: dropping unparseable datagram", "error", err)
			}
			return dns.Packet{}, false
		}
		resp := baseResponseHeader(h.ID)
		resp.SetRCode(dns.RCodeFormErr)
		return dns.Packet{Header: resp}, true
	}

	resp := baseResponseHeader(req.Header.ID)

	question, _ := dns.LastQuestion(req)

	if entry, hit := s.Cache.Find(question.Name); hit {
		resp.SetRCode(dns.RCodeNoError)
		resp.QuestionCount = 1
		resp.AnswerCount = uint16(len(entry.Records))
		return dns.Packet{Header: resp, Questions: []dns.Question{question}, Answers: entry.Records}, true
	}

	upstreamResp, err := s.lookup(ctx, req)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("dnsserver: upstream lookup failed", "qname", question.Name, "error", err)
		}
		resp.SetRCode(dns.RCodeServFail)
		resp.QuestionCount = 1
		return dns.Packet{Header: resp, Questions: []dns.Question{question}}, true
	}

	if upstreamResp.Header.Truncated() && s.Logger != nil {
		s.Logger.Warn("dnsserver: upstream response was truncated", "qname", question.Name)
	}
	return upstreamResp, true
}

func baseResponseHeader(id uint16) dns.Header {
	h := dns.Header{ID: id}
	h.SetResponse(true)
	h.SetRecursionDesired(true)
	h.SetRecursionAvailable(true)
	return h
}

// recoverHeader attempts to decode just the 12-byte header from an
// otherwise-unparseable datagram, so a FORMERR can still carry the
// request's transaction ID.
func recoverHeader(reqBytes []byte) (dns.Header, bool) {
	if len(reqBytes) < 12 {
		return dns.Header{}, false
	}
	buf := wire.WrapBuffer(reqBytes)
	h, err := dns.ReadHeaderFrom(buf)
	if err != nil {
		return dns.Header{}, false
	}
	return h, true
}

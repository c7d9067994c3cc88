package proxyserver

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
)

// plaintextPeekSize is how much of a non-TLS connection is peeked to find
// an HTTP Host header, per SPEC_FULL §4.5.
const plaintextPeekSize = 4096

// isTLS reports whether the first three bytes look like a TLS record
// header carrying a ClientHello: content type 22 (handshake), and a
// legacy record version of either TLS 1.0 (3.1) or TLS 1.2/"TLS 1.3 wire
// compat" (3.3). A TLS 1.1 record version (3.2) is deliberately not
// recognized; see the design notes.
func isTLS(b []byte) bool {
	return len(b) >= 3 && b[0] == 22 && b[1] == 3 && (b[2] == 1 || b[2] == 3)
}

// peekHost extracts the Host header from a plaintext HTTP request found in
// peeked, a best-effort, possibly-truncated prefix of the connection. An
// empty return means no usable Host was found, and the connection should be
// closed.
func peekHost(peeked []byte) string {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(peeked)))
	if err != nil || req == nil {
		return ""
	}
	host := req.Host
	if host == "" {
		host = req.Header.Get("Host")
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

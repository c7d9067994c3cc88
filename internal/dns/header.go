package dns

import (
	"fmt"

	"github.com/hydraproxy/ingressproxy/internal/wire"
)

// Header is the fixed 12-byte DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID              uint16
	Flags           uint16
	QuestionCount   uint16
	AnswerCount     uint16
	AuthorityCount  uint16
	AdditionalCount uint16
}

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool { return h.Flags&flagQR != 0 }

// Authoritative reports the AA bit.
func (h Header) Authoritative() bool { return h.Flags&flagAA != 0 }

// Truncated reports the TC bit.
func (h Header) Truncated() bool { return h.Flags&flagTC != 0 }

// RecursionDesired reports the RD bit.
func (h Header) RecursionDesired() bool { return h.Flags&flagRD != 0 }

// RecursionAvailable reports the RA bit.
func (h Header) RecursionAvailable() bool { return h.Flags&flagRA != 0 }

// Opcode extracts the 4-bit opcode field.
func (h Header) Opcode() uint8 { return uint8((h.Flags & flagOpcode) >> 11) }

// RCode extracts the 4-bit response code field.
func (h Header) RCode() RCode { return RCode(h.Flags & flagRCode) }

func (h *Header) setFlag(mask uint16, set bool) {
	if set {
		h.Flags |= mask
	} else {
		h.Flags &^= mask
	}
}

// SetResponse sets or clears the QR bit.
func (h *Header) SetResponse(v bool) { h.setFlag(flagQR, v) }

// SetAuthoritative sets or clears the AA bit.
func (h *Header) SetAuthoritative(v bool) { h.setFlag(flagAA, v) }

// SetTruncated sets or clears the TC bit.
func (h *Header) SetTruncated(v bool) { h.setFlag(flagTC, v) }

// SetRecursionDesired sets or clears the RD bit.
func (h *Header) SetRecursionDesired(v bool) { h.setFlag(flagRD, v) }

// SetRecursionAvailable sets or clears the RA bit.
func (h *Header) SetRecursionAvailable(v bool) { h.setFlag(flagRA, v) }

// SetRCode replaces the 4-bit response code field.
func (h *Header) SetRCode(rc RCode) {
	h.Flags = (h.Flags &^ flagRCode) | (uint16(rc) & flagRCode)
}

// WriteTo encodes the header at buf's current position. Returns false if it
// doesn't fit (callers treat this as "no room for a DNS message at all").
func (h Header) WriteTo(buf *wire.Buffer) bool {
	return buf.WriteUint16(h.ID) &&
		buf.WriteUint16(h.Flags) &&
		buf.WriteUint16(h.QuestionCount) &&
		buf.WriteUint16(h.AnswerCount) &&
		buf.WriteUint16(h.AuthorityCount) &&
		buf.WriteUint16(h.AdditionalCount)
}

// ReadHeaderFrom decodes a 12-byte header from buf's current position.
func ReadHeaderFrom(buf *wire.Buffer) (Header, error) {
	var h Header
	var err error

	if h.ID, err = buf.ReadUint16(); err != nil {
		return Header{}, fmt.Errorf("header id: %w", ErrCodec)
	}
	if h.Flags, err = buf.ReadUint16(); err != nil {
		return Header{}, fmt.Errorf("header flags: %w", ErrCodec)
	}
	if h.QuestionCount, err = buf.ReadUint16(); err != nil {
		return Header{}, fmt.Errorf("header qdcount: %w", ErrCodec)
	}
	if h.AnswerCount, err = buf.ReadUint16(); err != nil {
		return Header{}, fmt.Errorf("header ancount: %w", ErrCodec)
	}
	if h.AuthorityCount, err = buf.ReadUint16(); err != nil {
		return Header{}, fmt.Errorf("header nscount: %w", ErrCodec)
	}
	if h.AdditionalCount, err = buf.ReadUint16(); err != nil {
		return Header{}, fmt.Errorf("header arcount: %w", ErrCodec)
	}
	return h, nil
}

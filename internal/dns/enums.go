// Package dns provides DNS protocol parsing, encoding, and packet manipulation.
package dns

// RecordType is the closed set of resource record types this system
// understands structurally (RFC 1035, RFC 3596, RFC 2782, RFC 6891).
// Anything else round-trips with its original wire type preserved on
// Record.Type and its RDATA carried opaquely as UnknownData.
type RecordType uint16

const (
	TypeA     RecordType = 1  // IPv4 address
	TypeNS    RecordType = 2  // Authoritative name server
	TypeCNAME RecordType = 5  // Canonical name (alias)
	TypeSOA   RecordType = 6  // Start of Authority
	TypeMX    RecordType = 15 // Mail exchange
	TypeTXT   RecordType = 16 // Text strings
	TypeAAAA  RecordType = 28 // IPv6 address (RFC 3596)
	TypeSRV   RecordType = 33 // Service locator (RFC 2782)
	TypeOPT   RecordType = 41 // EDNS pseudo-record (RFC 6891), pass-through only
)

// RecordClass represents DNS resource record classes (RFC 1035). This system
// only ever produces or expects ClassIN.
type RecordClass uint16

const ClassIN RecordClass = 1

// RCode represents DNS response codes (RFC 1035 §4.1.1).
type RCode uint16

const (
	RCodeNoError  RCode = 0 // No error
	RCodeFormErr  RCode = 1 // Format error: query malformed
	RCodeServFail RCode = 2 // Server failure: internal error
	RCodeNXDomain RCode = 3 // Non-existent domain
	RCodeNotImp   RCode = 4 // Not implemented: unsupported query type
	RCodeRefused  RCode = 5 // Query refused by policy
)

// Header flag bit layout (RFC 1035 §4.1.1):
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|QR|   Opcode  |AA|TC|RD|RA| Z|AD|CD|   RCODE   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 15 14 13 12 11 10  9  8  7  6  5  4  3  2  1  0
const (
	flagQR     uint16 = 0x8000
	flagOpcode uint16 = 0x7800
	flagAA     uint16 = 0x0400
	flagTC     uint16 = 0x0200
	flagRD     uint16 = 0x0100
	flagRA     uint16 = 0x0080
	flagAD     uint16 = 0x0020
	flagCD     uint16 = 0x0010
	flagRCode  uint16 = 0x000F
)

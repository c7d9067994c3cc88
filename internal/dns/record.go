package dns

import (
	"fmt"
	"net"

	"github.com/hydraproxy/ingressproxy/internal/wire"
)

// RecordData is the type-specific RDATA payload of a Record. All
// implementations are plain value types (fixed-size arrays, strings, and
// integers) so that Record itself stays a comparable, hashable, trivially
// cloneable struct — no slices or maps anywhere in the payload.
type RecordData interface {
	recordData()
	writeTo(buf *wire.Buffer) bool
}

// Record is one resource record: a domain, a class-independent TTL, and a
// type-specific payload (RFC 1035 §4.1.3, plus RFC 3596 AAAA and RFC 2782
// SRV). Record.Type always reflects the wire type, even when Data is
// UnknownData.
type Record struct {
	Name  string
	Type  RecordType
	Class RecordClass
	TTL   uint32
	Data  RecordData
}

// AData is the RDATA for an A record: a 4-byte IPv4 address.
type AData struct{ Addr [4]byte }

func (AData) recordData() {}
func (d AData) writeTo(buf *wire.Buffer) bool {
	return buf.WriteBytes(d.Addr[:])
}

// IP returns the address as a net.IP.
func (d AData) IP() net.IP { return net.IPv4(d.Addr[0], d.Addr[1], d.Addr[2], d.Addr[3]) }

// AAAAData is the RDATA for an AAAA record: a 16-byte IPv6 address (RFC 3596).
type AAAAData struct{ Addr [16]byte }

func (AAAAData) recordData() {}
func (d AAAAData) writeTo(buf *wire.Buffer) bool {
	return buf.WriteBytes(d.Addr[:])
}

// IP returns the address as a net.IP.
func (d AAAAData) IP() net.IP { return net.IP(d.Addr[:]) }

// NameData is the RDATA for record types whose payload is a single domain
// name written via the name encoder: CNAME and NS.
type NameData struct{ Target string }

func (NameData) recordData() {}
func (d NameData) writeTo(buf *wire.Buffer) bool {
	n, err := wire.EncodeName(d.Target)
	return err == nil && buf.WriteBytes(n)
}

// MXData is the RDATA for an MX record.
type MXData struct {
	Preference uint16
	Exchange   string
}

func (MXData) recordData() {}
func (d MXData) writeTo(buf *wire.Buffer) bool {
	n, err := wire.EncodeName(d.Exchange)
	return err == nil && buf.WriteUint16(d.Preference) && buf.WriteBytes(n)
}

// SRVData is the RDATA for an SRV record (RFC 2782).
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (SRVData) recordData() {}
func (d SRVData) writeTo(buf *wire.Buffer) bool {
	n, err := wire.EncodeName(d.Target)
	return err == nil &&
		buf.WriteUint16(d.Priority) &&
		buf.WriteUint16(d.Weight) &&
		buf.WriteUint16(d.Port) &&
		buf.WriteBytes(n)
}

// SOAData is the RDATA for a SOA record.
type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (SOAData) recordData() {}
func (d SOAData) writeTo(buf *wire.Buffer) bool {
	mname, err := wire.EncodeName(d.MName)
	if err != nil {
		return false
	}
	rname, err := wire.EncodeName(d.RName)
	if err != nil {
		return false
	}
	return buf.WriteBytes(mname) &&
		buf.WriteBytes(rname) &&
		buf.WriteUint32(d.Serial) &&
		buf.WriteUint32(d.Refresh) &&
		buf.WriteUint32(d.Retry) &&
		buf.WriteUint32(d.Expire) &&
		buf.WriteUint32(d.Minimum)
}

// TXTData is the RDATA for a TXT record. Stored as the raw data_len bytes,
// unstructured (not split into RFC 1035 character-strings) per the wire
// contract this system round-trips rather than interprets.
type TXTData struct{ Raw string }

func (TXTData) recordData() {}
func (d TXTData) writeTo(buf *wire.Buffer) bool { return buf.WriteBytes([]byte(d.Raw)) }

// OPTData is the RDATA for an EDNS(0) pseudo-record (RFC 6891). Carried
// through as raw bytes; options are never parsed or generated.
type OPTData struct{ Raw string }

func (OPTData) recordData() {}
func (d OPTData) writeTo(buf *wire.Buffer) bool { return buf.WriteBytes([]byte(d.Raw)) }

// UnknownData is the RDATA for any record type outside the closed set this
// system understands structurally. Round-trips byte for byte.
type UnknownData struct{ Raw string }

func (UnknownData) recordData() {}
func (d UnknownData) writeTo(buf *wire.Buffer) bool { return buf.WriteBytes([]byte(d.Raw)) }

// WriteTo encodes the record (name, fixed fields, and RDATA with its
// rdlength) at buf's current position. RDATA is marshaled into a scratch
// buffer first so rdlength can be written before the RDATA bytes without
// needing to backpatch the destination buffer.
func (rr Record) WriteTo(buf *wire.Buffer) bool {
	name, err := wire.EncodeName(rr.Name)
	if err != nil {
		return false
	}

	rdataBuf := wire.NewBuffer(wire.DefaultCap * 4)
	if !rr.Data.writeTo(rdataBuf) {
		return false
	}
	rdata := rdataBuf.Bytes()

	return buf.WriteBytes(name) &&
		buf.WriteUint16(uint16(rr.Type)) &&
		buf.WriteUint16(uint16(rr.Class)) &&
		buf.WriteUint32(rr.TTL) &&
		buf.WriteUint16(uint16(len(rdata))) &&
		buf.WriteBytes(rdata)
}

// ReadRecordFrom decodes one resource record from buf's current position.
func ReadRecordFrom(buf *wire.Buffer) (Record, error) {
	name, err := buf.DecodeName()
	if err != nil {
		return Record{}, fmt.Errorf("record name: %w", err)
	}

	rtype, err := buf.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("record type: %w", ErrCodec)
	}
	rclass, err := buf.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("record class: %w", ErrCodec)
	}
	ttl, err := buf.ReadUint32()
	if err != nil {
		return Record{}, fmt.Errorf("record ttl: %w", ErrCodec)
	}
	rdlen, err := buf.ReadUint16()
	if err != nil {
		return Record{}, fmt.Errorf("record rdlength: %w", ErrCodec)
	}

	rdataStart := buf.Pos()
	data, err := parseRData(buf, RecordType(rtype), int(rdlen))
	if err != nil {
		return Record{}, err
	}
	if buf.Pos() != rdataStart+int(rdlen) {
		return Record{}, fmt.Errorf("record rdata length mismatch: %w", ErrCodec)
	}

	return Record{
		Name:  wire.NormalizeName(name),
		Type:  RecordType(rtype),
		Class: RecordClass(rclass),
		TTL:   ttl,
		Data:  data,
	}, nil
}

func parseRData(buf *wire.Buffer, rtype RecordType, rdlen int) (RecordData, error) {
	switch rtype {
	case TypeA:
		raw, err := buf.ReadRange(4)
		if err != nil || rdlen != 4 {
			return nil, fmt.Errorf("a record rdata: %w", ErrCodec)
		}
		var d AData
		copy(d.Addr[:], raw)
		return d, nil

	case TypeAAAA:
		raw, err := buf.ReadRange(16)
		if err != nil || rdlen != 16 {
			return nil, fmt.Errorf("aaaa record rdata: %w", ErrCodec)
		}
		var d AAAAData
		copy(d.Addr[:], raw)
		return d, nil

	case TypeCNAME, TypeNS:
		n, err := buf.DecodeName()
		if err != nil {
			return nil, fmt.Errorf("name record rdata: %w", err)
		}
		return NameData{Target: wire.NormalizeName(n)}, nil

	case TypeMX:
		pref, err := buf.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("mx preference: %w", ErrCodec)
		}
		ex, err := buf.DecodeName()
		if err != nil {
			return nil, fmt.Errorf("mx exchange: %w", err)
		}
		return MXData{Preference: pref, Exchange: wire.NormalizeName(ex)}, nil

	case TypeSRV:
		priority, err := buf.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("srv priority: %w", ErrCodec)
		}
		weight, err := buf.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("srv weight: %w", ErrCodec)
		}
		port, err := buf.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("srv port: %w", ErrCodec)
		}
		target, err := buf.DecodeName()
		if err != nil {
			return nil, fmt.Errorf("srv target: %w", err)
		}
		return SRVData{Priority: priority, Weight: weight, Port: port, Target: wire.NormalizeName(target)}, nil

	case TypeSOA:
		mname, err := buf.DecodeName()
		if err != nil {
			return nil, fmt.Errorf("soa mname: %w", err)
		}
		rname, err := buf.DecodeName()
		if err != nil {
			return nil, fmt.Errorf("soa rname: %w", err)
		}
		serial, err := buf.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("soa serial: %w", ErrCodec)
		}
		refresh, err := buf.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("soa refresh: %w", ErrCodec)
		}
		retry, err := buf.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("soa retry: %w", ErrCodec)
		}
		expire, err := buf.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("soa expire: %w", ErrCodec)
		}
		minimum, err := buf.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("soa minimum: %w", ErrCodec)
		}
		return SOAData{
			MName: wire.NormalizeName(mname), RName: wire.NormalizeName(rname),
			Serial: serial, Refresh: refresh, Retry: retry, Expire: expire, Minimum: minimum,
		}, nil

	case TypeTXT:
		raw, err := buf.ReadRange(rdlen)
		if err != nil {
			return nil, fmt.Errorf("txt record rdata: %w", ErrCodec)
		}
		return TXTData{Raw: string(raw)}, nil

	case TypeOPT:
		raw, err := buf.ReadRange(rdlen)
		if err != nil {
			return nil, fmt.Errorf("opt record rdata: %w", ErrCodec)
		}
		return OPTData{Raw: string(raw)}, nil

	default:
		raw, err := buf.ReadRange(rdlen)
		if err != nil {
			return nil, fmt.Errorf("unknown record rdata: %w", ErrCodec)
		}
		return UnknownData{Raw: string(raw)}, nil
	}
}

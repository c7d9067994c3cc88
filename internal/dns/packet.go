package dns

import (
	"fmt"

	"github.com/hydraproxy/ingressproxy/internal/wire"
)

// Packet is a complete DNS message (RFC 1035 §4): a header and four
// sections (questions, answers, authorities, additionals).
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// ReadPacket decodes a complete message from msg, driven by the header's
// section counts (bounded by MaxQuestions/MaxRRPerSection to avoid
// allocating large slices off an attacker-controlled count in a short
// message).
func ReadPacket(msg []byte) (Packet, error) {
	buf := wire.WrapBuffer(msg)

	h, err := ReadHeaderFrom(buf)
	if err != nil {
		return Packet{}, err
	}
	p := Packet{Header: h}

	p.Questions = make([]Question, 0, boundedCount(h.QuestionCount, MaxQuestions))
	for i := uint16(0); i < h.QuestionCount; i++ {
		q, err := ReadQuestionFrom(buf)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}

	if p.Answers, err = readRecords(buf, h.AnswerCount); err != nil {
		return Packet{}, err
	}
	if p.Authorities, err = readRecords(buf, h.AuthorityCount); err != nil {
		return Packet{}, err
	}
	if p.Additionals, err = readRecords(buf, h.AdditionalCount); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func readRecords(buf *wire.Buffer, count uint16) ([]Record, error) {
	out := make([]Record, 0, boundedCount(count, MaxRRPerSection))
	for i := uint16(0); i < count; i++ {
		rr, err := ReadRecordFrom(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}

func boundedCount(count uint16, limit int) int {
	if int(count) > limit {
		return limit
	}
	return int(count)
}

// WritePacket encodes the packet into buf: header, questions, then answers,
// authorities, additionals in that order. If a record mid-write would not
// fit in buf's capacity, writing stops there, the header's section counts
// are truncated to the number of records fully serialized, the truncated
// flag is set, and the buffer is rewound and rewritten with the adjusted
// counts — the resulting datagram is always well-formed. A question name
// that cannot be encoded (for example a label over 63 bytes) is an error,
// not a truncation.
func WritePacket(p Packet, buf *wire.Buffer) error {
	for _, q := range p.Questions {
		if _, err := wire.EncodeName(q.Name); err != nil {
			return fmt.Errorf("packet question name %q: %w", q.Name, err)
		}
	}

	qn, an, nsn, arn, complete := probeWrite(p, buf)
	if complete {
		return nil
	}

	h := p.Header
	h.QuestionCount = uint16(qn)
	h.AnswerCount = uint16(an)
	h.AuthorityCount = uint16(nsn)
	h.AdditionalCount = uint16(arn)
	h.SetTruncated(true)

	buf.Reset()
	if !h.WriteTo(buf) {
		return fmt.Errorf("packet header on truncation rewrite: %w", ErrCodec)
	}
	for i := 0; i < qn; i++ {
		if !p.Questions[i].WriteTo(buf) {
			return fmt.Errorf("packet question on truncation rewrite: %w", ErrCodec)
		}
	}
	if err := writeRecords(buf, p.Answers[:an]); err != nil {
		return err
	}
	if err := writeRecords(buf, p.Authorities[:nsn]); err != nil {
		return err
	}
	return writeRecords(buf, p.Additionals[:arn])
}

// probeWrite attempts the full packet in one pass, returning how many
// records of each section were actually written before the buffer filled.
func probeWrite(p Packet, buf *wire.Buffer) (qn, an, nsn, arn int, complete bool) {
	h := p.Header
	h.QuestionCount = wireCount(len(p.Questions))
	h.AnswerCount = wireCount(len(p.Answers))
	h.AuthorityCount = wireCount(len(p.Authorities))
	h.AdditionalCount = wireCount(len(p.Additionals))

	if !h.WriteTo(buf) {
		return 0, 0, 0, 0, false
	}

	for _, q := range p.Questions {
		if !q.WriteTo(buf) {
			return qn, an, nsn, arn, false
		}
		qn++
	}
	for _, rr := range p.Answers {
		if !rr.WriteTo(buf) {
			return qn, an, nsn, arn, false
		}
		an++
	}
	for _, rr := range p.Authorities {
		if !rr.WriteTo(buf) {
			return qn, an, nsn, arn, false
		}
		nsn++
	}
	for _, rr := range p.Additionals {
		if !rr.WriteTo(buf) {
			return qn, an, nsn, arn, false
		}
		arn++
	}
	return qn, an, nsn, arn, true
}

func writeRecords(buf *wire.Buffer, rrs []Record) error {
	for _, rr := range rrs {
		if !rr.WriteTo(buf) {
			return fmt.Errorf("packet record on truncation rewrite: %w", ErrCodec)
		}
	}
	return nil
}

func wireCount(n int) uint16 {
	if n > 0xFFFF {
		return 0xFFFF
	}
	return uint16(n)
}

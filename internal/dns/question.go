package dns

import (
	"fmt"

	"github.com/hydraproxy/ingressproxy/internal/wire"
)

// Question is a DNS question-section entry (RFC 1035 §4.1.2): what the
// client is asking for. Name is always stored normalized (lowercase, no
// trailing dot) so it can be compared directly against cache/route keys.
type Question struct {
	Name  string
	Type  RecordType
	Class RecordClass
}

// WriteTo encodes the question at buf's current position.
func (q Question) WriteTo(buf *wire.Buffer) bool {
	name, err := wire.EncodeName(q.Name)
	if err != nil {
		return false
	}
	return buf.WriteBytes(name) &&
		buf.WriteUint16(uint16(q.Type)) &&
		buf.WriteUint16(uint16(q.Class))
}

// ReadQuestionFrom decodes a question from buf's current position.
func ReadQuestionFrom(buf *wire.Buffer) (Question, error) {
	name, err := buf.DecodeName()
	if err != nil {
		return Question{}, fmt.Errorf("question name: %w", err)
	}

	qtype, err := buf.ReadUint16()
	if err != nil {
		return Question{}, fmt.Errorf("question type: %w", ErrCodec)
	}
	class, err := buf.ReadUint16()
	if err != nil {
		return Question{}, fmt.Errorf("question class: %w", ErrCodec)
	}

	return Question{
		Name:  wire.NormalizeName(name),
		Type:  RecordType(qtype),
		Class: RecordClass(class),
	}, nil
}

package dns

import (
	"errors"
	"fmt"

	"github.com/hydraproxy/ingressproxy/internal/helpers"
)

// Limits for incoming DNS messages, guarding against resource exhaustion.
const (
	MaxIncomingDNSMessageSize = 4096
	MaxQuestions              = 4
	MaxRRPerSection           = 100
	MaxTotalRR                = 200
)

// ParseRequestBounded parses a DNS request with resource-exhaustion bounds
// checking: rejects oversized messages, response packets misdirected at the
// query path, unsupported opcodes, and section counts outside sane limits.
func ParseRequestBounded(msg []byte) (Packet, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Packet{}, errors.New("dns: message exceeds size limit")
	}

	p, err := ReadPacket(msg)
	if err != nil {
		return Packet{}, err
	}

	if p.Header.IsResponse() {
		return Packet{}, errors.New("dns: response packet received on query path")
	}
	if opcode := p.Header.Opcode(); opcode != 0 {
		return Packet{}, fmt.Errorf("dns: unsupported opcode %d", opcode)
	}
	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}
	if len(p.Questions) == 0 {
		return Packet{}, ErrNoQuestions
	}

	return p, nil
}

func validateSectionCounts(h Header) error {
	qd := int(h.QuestionCount)
	an := int(h.AnswerCount)
	ns := int(h.AuthorityCount)
	ar := int(h.AdditionalCount)

	if qd > MaxQuestions {
		return fmt.Errorf("dns: too many questions: %w", ErrTooManyRecords)
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return fmt.Errorf("dns: too many records in a section: %w", ErrTooManyRecords)
	}
	if an+ns+ar > MaxTotalRR {
		return fmt.Errorf("dns: too many total records: %w", ErrTooManyRecords)
	}
	return nil
}

// LastQuestion returns the final question in the request, per the
// convention this resolver uses when a query carries more than one
// question: the last one wins.
func LastQuestion(p Packet) (Question, bool) {
	if len(p.Questions) == 0 {
		return Question{}, false
	}
	return p.Questions[len(p.Questions)-1], true
}

// BuildErrorResponse constructs a response packet carrying rcode and no
// answers, preserving the request's transaction ID, RD flag, and questions.
func BuildErrorResponse(req Packet, rcode RCode) Packet {
	h := Header{
		ID:            req.Header.ID,
		QuestionCount: helpers.ClampIntToUint16(len(req.Questions)),
	}
	h.SetResponse(true)
	h.SetRecursionDesired(req.Header.RecursionDesired())
	h.SetRecursionAvailable(true)
	h.SetRCode(rcode)

	return Packet{Header: h, Questions: req.Questions}
}

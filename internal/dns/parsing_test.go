package dns

import (
	"testing"

	"github.com/hydraproxy/ingressproxy/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildQuery(t *testing.T, questions ...Question) []byte {
	t.Helper()
	h := Header{ID: 0x1111}
	h.SetRecursionDesired(true)
	buf := wire.NewBuffer(wire.DefaultCap)
	require.NoError(t, WritePacket(Packet{Header: h, Questions: questions}, buf))
	return buf.Bytes()
}

func TestParseRequestBoundedAcceptsQuery(t *testing.T) {
	msg := buildQuery(t, Question{Name: "example.com", Type: TypeA, Class: ClassIN})

	p, err := ParseRequestBounded(msg)
	require.NoError(t, err)
	assert.Len(t, p.Questions, 1)
}

func TestParseRequestBoundedRejectsOversized(t *testing.T) {
	msg := make([]byte, MaxIncomingDNSMessageSize+1)
	_, err := ParseRequestBounded(msg)
	assert.Error(t, err)
}

func TestParseRequestBoundedRejectsResponse(t *testing.T) {
	h := Header{ID: 1}
	h.SetResponse(true)
	buf := wire.NewBuffer(wire.DefaultCap)
	require.NoError(t, WritePacket(Packet{Header: h, Questions: []Question{
		{Name: "example.com", Type: TypeA, Class: ClassIN},
	}}, buf))

	_, err := ParseRequestBounded(buf.Bytes())
	assert.Error(t, err)
}

func TestParseRequestBoundedRejectsNoQuestions(t *testing.T) {
	buf := wire.NewBuffer(wire.DefaultCap)
	require.NoError(t, WritePacket(Packet{Header: Header{ID: 1}}, buf))

	_, err := ParseRequestBounded(buf.Bytes())
	require.ErrorIs(t, err, ErrNoQuestions)
}

func TestLastQuestionTakesFinalEntry(t *testing.T) {
	p := Packet{Questions: []Question{
		{Name: "first.example.com", Type: TypeA, Class: ClassIN},
		{Name: "second.example.com", Type: TypeA, Class: ClassIN},
	}}

	q, ok := LastQuestion(p)
	require.True(t, ok)
	assert.Equal(t, "second.example.com", q.Name)
}

func TestLastQuestionEmpty(t *testing.T) {
	_, ok := LastQuestion(Packet{})
	assert.False(t, ok)
}

func TestBuildErrorResponse(t *testing.T) {
	req := Packet{
		Header:    Header{ID: 0xBEEF},
		Questions: []Question{{Name: "example.com", Type: TypeA, Class: ClassIN}},
	}
	req.Header.SetRecursionDesired(true)

	resp := BuildErrorResponse(req, RCodeServFail)

	assert.Equal(t, req.Header.ID, resp.Header.ID)
	assert.True(t, resp.Header.IsResponse())
	assert.True(t, resp.Header.RecursionDesired())
	assert.Equal(t, RCodeServFail, resp.Header.RCode())
	assert.Equal(t, req.Questions, resp.Questions)
	assert.Empty(t, resp.Answers)
}

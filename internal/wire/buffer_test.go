package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeName_RoundTrip(t *testing.T) {
	enc, err := EncodeName("WWW.Example.COM")
	require.NoError(t, err)

	buf := WrapBuffer(enc)
	name, err := buf.DecodeName()
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", name)
	assert.Equal(t, len(enc), buf.Pos())
}

func TestEncodeName_LabelBoundary(t *testing.T) {
	label63 := strings.Repeat("a", 63)
	_, err := EncodeName(label63 + ".com")
	require.NoError(t, err)

	label64 := strings.Repeat("a", 64)
	_, err = EncodeName(label64 + ".com")
	require.ErrorIs(t, err, ErrLabelTooLong)
}

func TestDecodeName_Compression(t *testing.T) {
	// "example.com" at offset 0, then a pointer back to it.
	msg := []byte{}
	enc, _ := EncodeName("example.com")
	msg = append(msg, enc...)
	ptrOff := len(msg)
	msg = append(msg, 0xC0, 0x00) // pointer to offset 0

	buf := WrapBuffer(msg)
	buf.SetPos(ptrOff)
	name, err := buf.DecodeName()
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, ptrOff+2, buf.Pos())
}

func TestDecodeName_PointerCycleFailsWithinJumpBudget(t *testing.T) {
	// Two pointers that point at each other: an infinite cycle without the
	// jump-count guard.
	msg := make([]byte, 4)
	msg[0], msg[1] = 0xC0, 0x02 // offset 0 points to offset 2
	msg[2], msg[3] = 0xC0, 0x00 // offset 2 points to offset 0

	buf := WrapBuffer(msg)
	_, err := buf.DecodeName()
	require.ErrorIs(t, err, ErrJumpsExceeded)
}

func TestBuffer_WriteDropsPastCapacity(t *testing.T) {
	buf := NewBuffer(4)
	assert.True(t, buf.WriteUint16(0x1234))
	assert.True(t, buf.WriteUint16(0x5678))
	assert.False(t, buf.WriteUint8(0x01))
	assert.Equal(t, 4, buf.Pos())
}

func TestBuffer_ReadFailsPastCapacity(t *testing.T) {
	buf := WrapBuffer([]byte{0x01, 0x02})
	_, err := buf.ReadUint32()
	require.ErrorIs(t, err, ErrEndOfBuffer)
}

func TestBuffer_WriteBytesAllOrNothing(t *testing.T) {
	buf := NewBuffer(3)
	ok := buf.WriteBytes([]byte{1, 2, 3, 4})
	assert.False(t, ok)
	assert.Equal(t, 0, buf.Pos())
}

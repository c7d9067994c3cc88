package proxyserver

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufConnReplaysPeekedBytes(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	go func() {
		_, _ = clientSide.Write([]byte("hello world"))
	}()

	br := bufio.NewReaderSize(serverSide, 64)
	serverSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	peeked, err := br.Peek(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(peeked))

	bc := newBufConn(serverSide, br)
	rest, err := io.ReadAll(io.LimitReader(bc, 11))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(rest))
}

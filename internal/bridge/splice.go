package bridge

import (
	"errors"
	"io"
	"sync"
	"syscall"
)

// halfCloser is implemented by connection types that support shutting down
// only their write half (*net.TCPConn, *tls.Conn); Splice uses it so the
// peer sees a clean EOF instead of the whole connection dropping.
type halfCloser interface {
	CloseWrite() error
}

// Splice copies bytes bidirectionally between a and b until both directions
// have reached EOF, then returns. Each direction closes its own write half
// (or the whole stream, if it doesn't support a half-close) once its source
// returns EOF, so the peer observes a clean shutdown rather than a reset.
// io.ErrUnexpectedEOF is absorbed, since it is the ordinary shape of a TLS
// close-notify; a connection reset (syscall.ECONNRESET) is absorbed too,
// since either leg dropping mid-splice is an ordinary way for a client or
// pod to go away, not a failure of the bridge itself. Any other I/O error
// is returned.
func Splice(a, b io.ReadWriteCloser) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	record := func(err error) {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	pump := func(dst, src io.ReadWriteCloser) {
		defer wg.Done()
		_, err := io.Copy(dst, src)
		record(err)
		if hc, ok := dst.(halfCloser); ok {
			_ = hc.CloseWrite()
		} else {
			_ = dst.Close()
		}
	}

	wg.Add(2)
	go pump(a, b)
	go pump(b, a)
	wg.Wait()

	return firstErr
}

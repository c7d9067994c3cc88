package k8s

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"k8s.io/apimachinery/pkg/util/httpstream"
)

// SPDY port-forward protocol v1 stream headers, mirroring what
// k8s.io/client-go/tools/portforward sends per forwarded connection.
const (
	headerPort      = "port"
	headerRequestID = "requestID"
	headerStreamType = "streamType"

	streamTypeError = "error"
	streamTypeData  = "data"
)

// forwardedStream wraps one port-forward data stream plus its paired error
// stream, surfacing the error stream's payload (if any) as a read error once
// the connection is torn down — the same pairing
// k8s.io/client-go/tools/portforward keeps per forwarded port, unwound here
// into a single io.ReadWriteCloser since the bridge only ever needs one
// upstream leg per client connection.
type forwardedStream struct {
	conn       httpstream.Connection
	dataStream httpstream.Stream
	errStream  httpstream.Stream

	errCh chan error
}

func newForwardedStream(conn httpstream.Connection, port int) (*forwardedStream, error) {
	requestID := "1"

	errHeaders := http.Header{}
	errHeaders.Set(headerPort, strconv.Itoa(port))
	errHeaders.Set(headerRequestID, requestID)
	errHeaders.Set(headerStreamType, streamTypeError)
	errStream, err := conn.CreateStream(errHeaders)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("k8s: creating error stream: %w", err)
	}
	errStream.Close()

	dataHeaders := http.Header{}
	dataHeaders.Set(headerPort, strconv.Itoa(port))
	dataHeaders.Set(headerRequestID, requestID)
	dataHeaders.Set(headerStreamType, streamTypeData)
	dataStream, err := conn.CreateStream(dataHeaders)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("k8s: creating data stream: %w", err)
	}

	fs := &forwardedStream{conn: conn, dataStream: dataStream, errStream: errStream, errCh: make(chan error, 1)}

	go fs.watchErrors()

	return fs, nil
}

func (fs *forwardedStream) watchErrors() {
	buf := make([]byte, 4096)
	n, err := fs.errStream.Read(buf)
	if n > 0 {
		fs.errCh <- fmt.Errorf("k8s: port-forward error: %s", buf[:n])
		return
	}
	if err != nil && err != io.EOF {
		fs.errCh <- err
	}
}

func (fs *forwardedStream) Read(p []byte) (int, error) {
	select {
	case err := <-fs.errCh:
		return 0, err
	default:
	}
	return fs.dataStream.Read(p)
}

func (fs *forwardedStream) Write(p []byte) (int, error) {
	return fs.dataStream.Write(p)
}

func (fs *forwardedStream) Close() error {
	dataErr := fs.dataStream.Close()
	connErr := fs.conn.Close()
	if dataErr != nil {
		return dataErr
	}
	return connErr
}

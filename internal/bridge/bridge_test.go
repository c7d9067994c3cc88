package bridge

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydraproxy/ingressproxy/internal/k8s"
)

type nopStream struct{}

func (nopStream) Read([]byte) (int, error)  { return 0, io.EOF }
func (nopStream) Write(p []byte) (int, error) { return len(p), nil }
func (nopStream) Close() error              { return nil }

type fakeCluster struct {
	id            string
	pods          []k8s.Pod
	listPodsErr   error
	forwardErr    error
	forwardedPod  string
	forwardSecure bool
}

func (f *fakeCluster) ID() string { return f.id }

func (f *fakeCluster) ListPods(ctx context.Context) ([]k8s.Pod, error) {
	return f.pods, f.listPodsErr
}

func (f *fakeCluster) PortForward(ctx context.Context, podName string, secure bool) (io.ReadWriteCloser, error) {
	f.forwardedPod = podName
	f.forwardSecure = secure
	if f.forwardErr != nil {
		return nil, f.forwardErr
	}
	return nopStream{}, nil
}

func TestOpenPicksLastPod(t *testing.T) {
	cluster := &fakeCluster{id: "c1", pods: []k8s.Pod{{Name: "pod-a"}, {Name: "pod-b"}, {Name: "pod-c"}}}

	stream, err := Open(context.Background(), cluster, true)
	require.NoError(t, err)
	assert.NotNil(t, stream)
	assert.Equal(t, "pod-c", cluster.forwardedPod)
	assert.True(t, cluster.forwardSecure)
}

func TestOpenNoPodsIsError(t *testing.T) {
	cluster := &fakeCluster{id: "c1"}
	_, err := Open(context.Background(), cluster, false)
	assert.Error(t, err)
}

func TestOpenListPodsError(t *testing.T) {
	cluster := &fakeCluster{id: "c1", listPodsErr: errors.New("api unavailable")}
	_, err := Open(context.Background(), cluster, false)
	assert.Error(t, err)
}

func TestOpenPortForwardError(t *testing.T) {
	cluster := &fakeCluster{id: "c1", pods: []k8s.Pod{{Name: "pod-a"}}, forwardErr: errors.New("dial failed")}
	_, err := Open(context.Background(), cluster, false)
	assert.Error(t, err)
}

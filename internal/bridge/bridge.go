// Package bridge opens the upstream leg of a proxied connection: it picks a
// backing pod from a cluster client's pod listing and asks that cluster to
// open a port-forward stream to it.
package bridge

import (
	"context"
	"fmt"
	"io"

	"github.com/hydraproxy/ingressproxy/internal/k8s"
)

// ClusterClient is the subset of *k8s.Cluster the bridge needs: list the
// pods backing this cluster's ingress, and open a port-forward to one of
// them.
type ClusterClient interface {
	ID() string
	ListPods(ctx context.Context) ([]k8s.Pod, error)
	PortForward(ctx context.Context, podName string, secure bool) (io.ReadWriteCloser, error)
}

// Open selects a backing pod for cluster and opens a port-forward stream to
// its HTTP (secure=false) or HTTPS (secure=true) port. Pod selection pops
// the last entry of the current listing — arbitrary but deterministic, with
// no load balancing of its own; the cluster's own service routing is
// expected to handle that.
func Open(ctx context.Context, cluster ClusterClient, secure bool) (io.ReadWriteCloser, error) {
	pods, err := cluster.ListPods(ctx)
	if err != nil {
		return nil, fmt.Errorf("bridge: listing pods for cluster %q: %w", cluster.ID(), err)
	}
	if len(pods) == 0 {
		return nil, fmt.Errorf("bridge: no free pod for cluster %q", cluster.ID())
	}
	pod := pods[len(pods)-1]

	stream, err := cluster.PortForward(ctx, pod.Name, secure)
	if err != nil {
		return nil, fmt.Errorf("bridge: port-forwarding to pod %q in cluster %q: %w", pod.Name, cluster.ID(), err)
	}
	return stream, nil
}

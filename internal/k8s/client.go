package k8s

import (
	"context"
	"io"
)

// ClientAPI is the raw external Kubernetes API contract: list Ingresses,
// Secrets, and Pods in a namespace, and open a port-forward to a pod. It is
// the seam a fake implementation fills in tests; Cluster binds it to the
// namespaces/selector/ports one cluster client owns.
type ClientAPI interface {
	ListIngresses(ctx context.Context, namespace string) ([]Ingress, error)
	ListSecrets(ctx context.Context, namespace string) ([]Secret, error)
	ListPods(ctx context.Context, namespace, labelSelector string) ([]Pod, error)
	PortForward(ctx context.Context, namespace, podName string, port int) (io.ReadWriteCloser, error)
}

// Cluster is a handle to one Kubernetes API endpoint, bound to the
// namespaces/selector/ports a single `k8s:` config entry names. It is the
// "cluster client" the route table, certificate cache, and bridge operate
// on; ClientAPI is the unbound raw contract underneath it.
type Cluster struct {
	id string

	api ClientAPI

	IngressNamespace string
	PodNamespace     string
	PodLabel         string
	HTTPPort         int
	HTTPSPort        int
}

// NewCluster binds a raw ClientAPI to the namespaces/selector/ports this
// cluster client owns.
func NewCluster(id string, api ClientAPI, ingressNamespace, podNamespace, podLabel string, httpPort, httpsPort int) *Cluster {
	return &Cluster{
		id:               id,
		api:              api,
		IngressNamespace: ingressNamespace,
		PodNamespace:     podNamespace,
		PodLabel:         podLabel,
		HTTPPort:         httpPort,
		HTTPSPort:        httpsPort,
	}
}

// ID names this cluster client for route-table ownership and logging.
func (c *Cluster) ID() string { return c.id }

// ListIngresses lists ingresses in this cluster's bound ingress namespace.
func (c *Cluster) ListIngresses(ctx context.Context) ([]Ingress, error) {
	return c.api.ListIngresses(ctx, c.IngressNamespace)
}

// ListSecrets lists secrets in this cluster's bound ingress namespace
// (where TLS secrets referenced by Ingress.spec.tls live).
func (c *Cluster) ListSecrets(ctx context.Context) ([]Secret, error) {
	return c.api.ListSecrets(ctx, c.IngressNamespace)
}

// ListPods lists pods matching this cluster's bound pod namespace/label.
func (c *Cluster) ListPods(ctx context.Context) ([]Pod, error) {
	return c.api.ListPods(ctx, c.PodNamespace, c.PodLabel)
}

// PortForward opens a port-forward to podName on this cluster's HTTP or
// HTTPS pod port.
func (c *Cluster) PortForward(ctx context.Context, podName string, secure bool) (io.ReadWriteCloser, error) {
	port := c.HTTPPort
	if secure {
		port = c.HTTPSPort
	}
	return c.api.PortForward(ctx, c.PodNamespace, podName, port)
}

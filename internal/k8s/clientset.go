package k8s

import (
	"context"
	"fmt"
	"io"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// ClientsetAPI implements ClientAPI against a real Kubernetes API server
// via k8s.io/client-go.
type ClientsetAPI struct {
	clientset *kubernetes.Clientset
	restCfg   *rest.Config
}

// NewClientsetAPI builds a ClientAPI from a config source: "default" (or
// "") uses the in-cluster service-account config; anything else is treated
// as a path to a kubeconfig file.
func NewClientsetAPI(configSource string) (*ClientsetAPI, error) {
	restCfg, err := buildRESTConfig(configSource)
	if err != nil {
		return nil, fmt.Errorf("k8s: building rest config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("k8s: building clientset: %w", err)
	}

	return &ClientsetAPI{clientset: clientset, restCfg: restCfg}, nil
}

func buildRESTConfig(configSource string) (*rest.Config, error) {
	if configSource == "" || configSource == "default" {
		return rest.InClusterConfig()
	}
	return clientcmd.BuildConfigFromFlags("", configSource)
}

// ListIngresses maps networking.k8s.io/v1 Ingress objects to the flattened
// shape the route table and certificate cache consume.
func (c *ClientsetAPI) ListIngresses(ctx context.Context, namespace string) ([]Ingress, error) {
	list, err := c.clientset.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: listing ingresses in %q: %w", namespace, err)
	}

	out := make([]Ingress, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, convertIngress(item))
	}
	return out, nil
}

func convertIngress(item networkingv1.Ingress) Ingress {
	ing := Ingress{Name: item.Name}

	for _, rule := range item.Spec.Rules {
		if rule.Host == "" {
			continue
		}
		ing.Hosts = append(ing.Hosts, rule.Host)
	}

	for _, tls := range item.Spec.TLS {
		ing.TLS = append(ing.TLS, TLSEntry{
			Hosts:      append([]string(nil), tls.Hosts...),
			SecretName: tls.SecretName,
		})
	}

	return ing
}

// ListSecrets reads the kubernetes.io/tls material from every Secret in
// namespace that carries tls.crt/tls.key data.
func (c *ClientsetAPI) ListSecrets(ctx context.Context, namespace string) ([]Secret, error) {
	list, err := c.clientset.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: listing secrets in %q: %w", namespace, err)
	}

	out := make([]Secret, 0, len(list.Items))
	for _, item := range list.Items {
		cert, hasCert := item.Data[corev1.TLSCertKey]
		key, hasKey := item.Data[corev1.TLSPrivateKeyKey]
		if !hasCert || !hasKey {
			continue
		}
		out = append(out, Secret{Name: item.Name, Cert: cert, Key: key})
	}
	return out, nil
}

// ListPods lists pods matching labelSelector in namespace.
func (c *ClientsetAPI) ListPods(ctx context.Context, namespace, labelSelector string) ([]Pod, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("k8s: listing pods in %q matching %q: %w", namespace, labelSelector, err)
	}

	out := make([]Pod, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, Pod{Name: item.Name})
	}
	return out, nil
}

// PortForward opens one SPDY upgrade to the pod's portforward subresource
// and returns the paired error+data streams as a single io.ReadWriteCloser —
// the same low-level streams k8s.io/client-go/tools/portforward multiplexes
// internally for one forwarded connection, but without binding a local TCP
// listener, since each proxied client connection needs its own upstream leg.
func (c *ClientsetAPI) PortForward(ctx context.Context, namespace, podName string, port int) (io.ReadWriteCloser, error) {
	req := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(podName).
		SubResource("portforward")

	transport, upgrader, err := spdy.RoundTripperFor(c.restCfg)
	if err != nil {
		return nil, fmt.Errorf("k8s: building spdy transport: %w", err)
	}

	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, req.URL())

	streamConn, _, err := dialer.Dial(portforward.PortForwardProtocolV1Name)
	if err != nil {
		return nil, fmt.Errorf("k8s: dialing port-forward to pod %q: %w", podName, err)
	}

	return newForwardedStream(streamConn, port)
}

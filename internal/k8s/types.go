// Package k8s adapts Kubernetes Ingress/Secret/Pod listings and pod
// port-forwarding to the shapes the route table, certificate cache, and
// bridge package need, without exposing client-go's own types to callers.
package k8s

// TLSEntry is one entry of an Ingress's spec.tls list: a set of hostnames
// covered by one Secret.
type TLSEntry struct {
	Hosts      []string
	SecretName string
}

// Ingress is the subset of a Kubernetes Ingress object the route table and
// certificate cache read.
type Ingress struct {
	Name  string
	Hosts []string // flattened spec.rules[*].host, host-less rules dropped
	TLS   []TLSEntry
}

// Secret is the subset of a Kubernetes Secret the certificate cache reads:
// the two keys of a kubernetes.io/tls Secret.
type Secret struct {
	Name string
	Cert []byte // data["tls.crt"], PEM chain
	Key  []byte // data["tls.key"], PKCS8 PEM
}

// Pod is the subset of a Kubernetes Pod the bridge needs to dial a
// port-forward.
type Pod struct {
	Name string
}

package tlsca

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/hydraproxy/ingressproxy/internal/k8s"
	"github.com/hydraproxy/ingressproxy/internal/route"
)

// ClusterLookup resolves the cluster client that owns an ingress hostname.
// *route.Table satisfies this directly.
type ClusterLookup interface {
	ClusterFor(host string) (route.ClusterClient, bool)
}

// SecretLister is the subset of *k8s.Cluster Mode A needs: the ingress
// listing (to find which Secret covers a host) and the secret listing
// itself.
type SecretLister interface {
	ListIngresses(ctx context.Context) ([]k8s.Ingress, error)
	ListSecrets(ctx context.Context) ([]k8s.Secret, error)
}

// Provider resolves a server-side *tls.Config for an SNI hostname, in
// either Mode A (cluster-owned Secrets) or Mode B (local CA minting),
// chosen once at construction based on whether a CA was loaded.
type Provider struct {
	cache *Cache
	ca    *CA // nil selects Mode A

	route    ClusterLookup
	clusters map[string]SecretLister // cluster ID -> secret-listing handle, Mode A only
}

// NewModeB returns a Provider that mints fresh leaves from ca for every
// SNI it is asked about.
func NewModeB(ca *CA) *Provider {
	return &Provider{cache: NewCache(), ca: ca}
}

// NewModeA returns a Provider that sources certificates from the Secret a
// cluster's Ingress names for each SNI. route resolves which cluster owns
// a hostname; clusters maps each cluster's ID to its secret-listing handle.
func NewModeA(route ClusterLookup, clusters map[string]SecretLister) *Provider {
	return &Provider{cache: NewCache(), route: route, clusters: clusters}
}

// Cache exposes the underlying cache for the status API.
func (p *Provider) Cache() *Cache { return p.cache }

// ConfigFor returns the server-side *tls.Config to present for SNI host,
// computing and caching it on first use.
func (p *Provider) ConfigFor(ctx context.Context, host string) (*tls.Config, error) {
	if cfg, ok := p.cache.Get(host); ok {
		return cfg, nil
	}

	var (
		cert tls.Certificate
		err  error
	)
	if p.ca != nil {
		cert, err = p.ca.MintLeaf(host)
	} else {
		cert, err = p.loadFromSecret(ctx, host)
	}
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	p.cache.Store(host, cfg)
	return cfg, nil
}

func (p *Provider) loadFromSecret(ctx context.Context, host string) (tls.Certificate, error) {
	ownerRef, ok := p.route.ClusterFor(host)
	if !ok {
		return tls.Certificate{}, fmt.Errorf("tlsca: no cluster owns host %q", host)
	}
	cluster, ok := p.clusters[ownerRef.ID()]
	if !ok {
		return tls.Certificate{}, fmt.Errorf("tlsca: no secret-listing handle for cluster %q", ownerRef.ID())
	}

	ingresses, err := cluster.ListIngresses(ctx)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsca: listing ingresses for %q: %w", host, err)
	}
	secretName, ok := secretNameForHost(ingresses, host)
	if !ok {
		return tls.Certificate{}, fmt.Errorf("tlsca: no tls secret named for host %q", host)
	}

	secrets, err := cluster.ListSecrets(ctx)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsca: listing secrets for %q: %w", host, err)
	}
	for _, secret := range secrets {
		if secret.Name != secretName {
			continue
		}
		cert, err := tls.X509KeyPair(secret.Cert, secret.Key)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("tlsca: parsing secret %q: %w", secretName, err)
		}
		return cert, nil
	}
	return tls.Certificate{}, fmt.Errorf("tlsca: secret %q not found for host %q", secretName, host)
}

func secretNameForHost(ingresses []k8s.Ingress, host string) (string, bool) {
	for _, ing := range ingresses {
		for _, entry := range ing.TLS {
			for _, h := range entry.Hosts {
				if h == host {
					return entry.SecretName, true
				}
			}
		}
	}
	return "", false
}

// ClientConfig is the client-side TLS config used when the proxy dials a
// cluster ingress pod over TLS: it accepts any server certificate chain,
// since cluster leaf certs are frequently self-signed or issued by a
// cluster-internal CA not on the public trust list and the proxy is
// already authenticated out-of-band via its kubeconfig. The TLS handshake
// itself still verifies the peer holds the matching private key; only
// chain-of-trust and host name validation are skipped.
func ClientConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // deliberate, see doc comment
}

// Package route builds and serves the immutable route table the proxy
// dispatcher consults: which cluster client owns an ingress hostname, and
// which static address a local-client hostname forwards to. The table is
// built once at startup and never mutated afterward, so it needs no lock.
package route

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hydraproxy/ingressproxy/internal/k8s"
)

// ClusterClient is the subset of *k8s.Cluster the route table needs: an
// identity for logging/status reporting and an ingress listing.
type ClusterClient interface {
	ID() string
	ListIngresses(ctx context.Context) ([]k8s.Ingress, error)
}

// Table is the built route table: which cluster owns an ingress hostname,
// and which address a local (non-cluster) hostname forwards to.
type Table struct {
	ingressClients map[string]ClusterClient
	localClients   map[string]string
	clusters       []ClusterClient // build order, for the sole-cluster fallback
}

// Build constructs a Table from every cluster client's current ingress
// listing, plus the static host=addr files named in dnsCacheSources
// (everything in that list except "k8s", matched case-insensitively). On a duplicate
// ingress hostname across clusters, the last cluster listed wins —
// administrators are expected to keep hostnames globally unique.
func Build(ctx context.Context, logger *slog.Logger, clusters []ClusterClient, dnsCacheSources []string) (*Table, error) {
	t := &Table{
		ingressClients: make(map[string]ClusterClient),
		localClients:   make(map[string]string),
		clusters:       append([]ClusterClient(nil), clusters...),
	}

	for _, cluster := range clusters {
		ingresses, err := cluster.ListIngresses(ctx)
		if err != nil {
			return nil, fmt.Errorf("route: listing ingresses for cluster %q: %w", cluster.ID(), err)
		}
		for _, ing := range ingresses {
			for _, host := range ing.Hosts {
				name := normalizeHost(host)
				if _, exists := t.ingressClients[name]; exists && logger != nil {
					logger.Warn("route: ingress hostname claimed by multiple clusters", "host", name, "winner", cluster.ID())
				}
				t.ingressClients[name] = cluster
			}
		}
	}

	for _, source := range dnsCacheSources {
		if strings.EqualFold(source, "k8s") {
			continue
		}
		if err := t.loadStaticFile(source); err != nil {
			return nil, fmt.Errorf("route: loading static source %q: %w", source, err)
		}
	}

	return t, nil
}

func (t *Table) loadStaticFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		host, addr, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		host = normalizeHost(host)
		addr = strings.TrimSpace(addr)
		if host == "" || addr == "" {
			continue
		}
		t.localClients[host] = addr
	}
	return scanner.Err()
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
}

// ClusterFor returns the cluster client that owns the ingress hostname
// host, if any.
func (t *Table) ClusterFor(host string) (ClusterClient, bool) {
	c, ok := t.ingressClients[normalizeHost(host)]
	return c, ok
}

// AddressFor returns the static address a local-client hostname forwards
// to, if any.
func (t *Table) AddressFor(host string) (string, bool) {
	addr, ok := t.localClients[normalizeHost(host)]
	return addr, ok
}

// SoleCluster returns the one configured cluster client when exactly one
// was passed to Build, and false otherwise. Dispatch falls back to it for
// an SNI or Host value that matched neither table — the common
// single-cluster deployment needs no exact ingress-hostname match to route
// correctly.
func (t *Table) SoleCluster() (ClusterClient, bool) {
	if len(t.clusters) != 1 {
		return nil, false
	}
	return t.clusters[0], true
}

// IngressHosts returns every known ingress hostname mapped to the ID of
// its owning cluster, for the status API's /routes endpoint.
func (t *Table) IngressHosts() map[string]string {
	out := make(map[string]string, len(t.ingressClients))
	for host, cluster := range t.ingressClients {
		out[host] = cluster.ID()
	}
	return out
}

// LocalHosts returns every known local-client hostname mapped to its
// address, for the status API's /routes endpoint.
func (t *Table) LocalHosts() map[string]string {
	out := make(map[string]string, len(t.localClients))
	for host, addr := range t.localClients {
		out[host] = addr
	}
	return out
}

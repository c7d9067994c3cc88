package hostcache

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hydraproxy/ingressproxy/internal/dns"
	"github.com/hydraproxy/ingressproxy/internal/k8s"
)

// staticTTL is the TTL advertised on records synthesized from the k8s and
// static-file sources. The records themselves are long-lived (expiresAt
// below), but an advertised TTL of a year would encourage clients to never
// re-ask; 300s matches ordinary DNS caching behavior for callers downstream
// of this resolver.
const staticTTL = 300

// staticEntryLifetime is how long a k8s- or file-sourced cache entry stays
// valid before Load must be re-run to refresh it — effectively "until the
// process restarts", since nothing currently calls Load again.
const staticEntryLifetime = 365 * 24 * time.Hour

// IngressSource lists the ingress hostnames one cluster client exposes. It
// is the subset of *k8s.Cluster that Load needs, kept as an interface here
// so tests can supply a fake without constructing a real cluster client.
type IngressSource interface {
	ID() string
	ListIngresses(ctx context.Context) ([]k8s.Ingress, error)
}

// Load populates the cache from each source in order, per the startup
// loading contract: the string "k8s" (case-insensitive) lists ingress hostnames across
// every supplied cluster client; anything else is a path to a static
// host=addr file.
func Load(ctx context.Context, logger *slog.Logger, c *Cache, sources []string, clusters []IngressSource) error {
	for _, source := range sources {
		if strings.EqualFold(source, "k8s") {
			if err := loadK8s(ctx, logger, c, clusters); err != nil {
				return fmt.Errorf("hostcache: loading k8s source: %w", err)
			}
			continue
		}
		if err := loadFile(logger, c, source); err != nil {
			return fmt.Errorf("hostcache: loading static source %q: %w", source, err)
		}
	}
	return nil
}

func loadK8s(ctx context.Context, logger *slog.Logger, c *Cache, clusters []IngressSource) error {
	expiresAt := time.Now().Add(staticEntryLifetime)

	for _, cluster := range clusters {
		ingresses, err := cluster.ListIngresses(ctx)
		if err != nil {
			return fmt.Errorf("listing ingresses for cluster %q: %w", cluster.ID(), err)
		}

		for _, ing := range ingresses {
			for _, host := range ing.Hosts {
				name := strings.ToLower(strings.TrimSuffix(host, "."))
				c.mu.Lock()
				c.entries[name] = Entry{
					Records:   []dns.Record{loopbackARecord(name)},
					ExpiresAt: expiresAt,
				}
				c.mu.Unlock()
				if logger != nil {
					logger.Debug("host cache: loaded ingress host", "cluster", cluster.ID(), "host", name)
				}
			}
		}
	}
	return nil
}

func loadFile(logger *slog.Logger, c *Cache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	expiresAt := time.Now().Add(staticEntryLifetime)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, record, ok := parseHostLine(line)
		if !ok {
			if logger != nil {
				logger.Warn("host cache: skipping unparseable line", "source", path, "line", line)
			}
			continue
		}

		c.mu.Lock()
		c.entries[name] = Entry{Records: []dns.Record{record}, ExpiresAt: expiresAt}
		c.mu.Unlock()
	}
	return scanner.Err()
}

// parseHostLine parses one "fqdn=ip[:port]" line. The port, if present, is
// only meaningful to the route table's local-client map and is dropped
// here — DNS answers carry no port.
func parseHostLine(line string) (name string, record dns.Record, ok bool) {
	fqdn, addr, found := strings.Cut(line, "=")
	if !found {
		return "", dns.Record{}, false
	}
	fqdn = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(fqdn), "."))
	addr = strings.TrimSpace(addr)
	if fqdn == "" || addr == "" {
		return "", dns.Record{}, false
	}

	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", dns.Record{}, false
	}

	if ip4 := ip.To4(); ip4 != nil {
		var data dns.AData
		copy(data.Addr[:], ip4)
		return fqdn, dns.Record{Name: fqdn, Type: dns.TypeA, Class: dns.ClassIN, TTL: staticTTL, Data: data}, true
	}

	var data dns.AAAAData
	copy(data.Addr[:], ip.To16())
	return fqdn, dns.Record{Name: fqdn, Type: dns.TypeAAAA, Class: dns.ClassIN, TTL: staticTTL, Data: data}, true
}

func loopbackARecord(name string) dns.Record {
	return dns.Record{
		Name:  name,
		Type:  dns.TypeA,
		Class: dns.ClassIN,
		TTL:   staticTTL,
		Data:  dns.AData{Addr: [4]byte{127, 0, 0, 1}},
	}
}

// Command ingressproxy runs the Kubernetes ingress appliance: a recursive
// DNS resolver backed by a live ingress host cache, and a TLS-terminating
// TCP reverse proxy that bridges browser connections to cluster pods over
// the Kubernetes port-forward API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/hydraproxy/ingressproxy/internal/api"
	"github.com/hydraproxy/ingressproxy/internal/bridge"
	"github.com/hydraproxy/ingressproxy/internal/config"
	"github.com/hydraproxy/ingressproxy/internal/dnsserver"
	"github.com/hydraproxy/ingressproxy/internal/hostcache"
	"github.com/hydraproxy/ingressproxy/internal/k8s"
	"github.com/hydraproxy/ingressproxy/internal/logging"
	"github.com/hydraproxy/ingressproxy/internal/proxyserver"
	"github.com/hydraproxy/ingressproxy/internal/route"
	"github.com/hydraproxy/ingressproxy/internal/tlsca"
)

type cliFlags struct {
	configPath string
	debug      bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "path to the YAML config file (empty: defaults plus environment)")
	flag.BoolVar(&f.debug, "debug", false, "force debug-level logging regardless of log-level in config")
	flag.Parse()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := cfg.LogLevel
	if f.debug {
		logLevel = "DEBUG"
	}
	logger := logging.Configure(logging.Config{Level: logLevel})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clusters, clusterByID, err := buildClusters(cfg, logger)
	if err != nil {
		return fmt.Errorf("building k8s clusters: %w", err)
	}

	routeClients := make([]route.ClusterClient, len(clusters))
	for i, c := range clusters {
		routeClients[i] = c
	}
	table, err := route.Build(ctx, logger, routeClients, cfg.DNS.Cache)
	if err != nil {
		return fmt.Errorf("building route table: %w", err)
	}
	logger.Info("route table built", "ingress_hosts", len(table.IngressHosts()), "local_hosts", len(table.LocalHosts()))

	var cache *hostcache.Cache
	if cfg.DNSEnabled() {
		cache = hostcache.New()
		ingressSources := make([]hostcache.IngressSource, len(clusters))
		for i, c := range clusters {
			ingressSources[i] = c
		}
		if err := hostcache.Load(ctx, logger, cache, cfg.DNS.Cache, ingressSources); err != nil {
			return fmt.Errorf("loading host cache: %w", err)
		}
		logger.Info("host cache loaded", "entries", cache.Len())
	}

	var tlsProvider *tlsca.Provider
	bridgeClients := make(map[string]bridge.ClusterClient, len(clusters))
	for id, c := range clusterByID {
		bridgeClients[id] = c
	}

	if cfg.ProxyEnabled() {
		tlsProvider, err = buildTLSProvider(cfg, table, clusterByID)
		if err != nil {
			return fmt.Errorf("building TLS provider: %w", err)
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if cfg.DNSEnabled() {
		dnsAddr := net.JoinHostPort(cfg.DNS.Server.Host, strconv.Itoa(cfg.DNS.Server.Port))
		dnsSrv := &dnsserver.Server{Logger: logger, Cache: cache, Upstream: net.JoinHostPort(cfg.DNS.Server.Public, "53")}
		logger.Info("dns server starting", "addr", dnsAddr, "upstream", cfg.DNS.Server.Public)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dnsSrv.ListenAndServe(ctx, dnsAddr); err != nil {
				errCh <- fmt.Errorf("dns server: %w", err)
			}
		}()
	}

	if cfg.ProxyEnabled() {
		httpAddr := net.JoinHostPort(cfg.Proxy.Host, strconv.Itoa(cfg.Proxy.Port.HTTP))
		httpsAddr := net.JoinHostPort(cfg.Proxy.Host, strconv.Itoa(cfg.Proxy.Port.HTTPS))
		proxySrv := &proxyserver.Server{
			Logger:      logger,
			Routes:      table,
			Clusters:    bridgeClients,
			TLSProvider: tlsProvider,
		}
		logger.Info("proxy server starting", "http_addr", httpAddr, "https_addr", httpsAddr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := proxySrv.ListenAndServe(ctx, httpAddr, httpsAddr); err != nil {
				errCh <- fmt.Errorf("proxy server: %w", err)
			}
		}()
	}

	var certCache *tlsca.Cache
	if tlsProvider != nil {
		certCache = tlsProvider.Cache()
	}
	statusAddr := net.JoinHostPort(cfg.StatusAPI.Host, strconv.Itoa(cfg.StatusAPI.Port))
	statusSrv := &api.Server{Logger: logger, Cache: cache, Routes: table, Certs: certCache}
	logger.Info("status api starting", "addr", statusAddr)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := statusSrv.ListenAndServe(ctx, statusAddr); err != nil {
			errCh <- fmt.Errorf("status api: %w", err)
		}
	}()

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		logger.Error("subsystem error", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	logger.Info("shutdown complete")
	return nil
}

// buildClusters constructs a *k8s.Cluster for every configured k8s entry,
// returning both the ordered slice (for route/cache building, where build
// order decides who wins a duplicate hostname) and an ID-keyed map (for
// the TLS provider and bridge dispatch, which look clusters up by name).
func buildClusters(cfg *config.Config, logger *slog.Logger) ([]*k8s.Cluster, map[string]*k8s.Cluster, error) {
	clusters := make([]*k8s.Cluster, 0, len(cfg.K8s))
	byID := make(map[string]*k8s.Cluster, len(cfg.K8s))

	for i, cc := range cfg.K8s {
		id := fmt.Sprintf("cluster-%d", i)
		api, err := k8s.NewClientsetAPI(cc.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster %q: building client: %w", id, err)
		}
		cluster := k8s.NewCluster(id, api, cc.IngressNamespace, cc.Pod.Namespace, cc.Pod.Label, cc.Pod.Port.HTTP, cc.Pod.Port.HTTPS)
		clusters = append(clusters, cluster)
		byID[id] = cluster
		logger.Info("k8s cluster registered", "id", id, "ingress_namespace", cc.IngressNamespace, "pod_namespace", cc.Pod.Namespace)
	}

	return clusters, byID, nil
}

// buildTLSProvider selects Mode B (local CA minting leaf certs) when
// proxy.root_ca names both a cert and key file, else Mode A (certificates
// sourced from the cluster Secret each ingress names).
func buildTLSProvider(cfg *config.Config, table *route.Table, clusterByID map[string]*k8s.Cluster) (*tlsca.Provider, error) {
	if ca := cfg.Proxy.RootCA; ca != nil && ca.Cert != "" && ca.Key != "" {
		certPEM, err := os.ReadFile(ca.Cert)
		if err != nil {
			return nil, fmt.Errorf("reading root ca cert: %w", err)
		}
		keyPEM, err := os.ReadFile(ca.Key)
		if err != nil {
			return nil, fmt.Errorf("reading root ca key: %w", err)
		}
		loaded, err := tlsca.LoadCA(certPEM, keyPEM, tlsca.ParseAlgorithm(ca.Algorithm))
		if err != nil {
			return nil, fmt.Errorf("loading root ca: %w", err)
		}
		return tlsca.NewModeB(loaded), nil
	}

	secretListers := make(map[string]tlsca.SecretLister, len(clusterByID))
	for id, c := range clusterByID {
		secretListers[id] = c
	}
	return tlsca.NewModeA(table, secretListers), nil
}

// Package config loads and validates the appliance's configuration using
// Viper. Configuration is loaded from a YAML file with environment variable
// overrides under the HYDRAPROXY_ prefix, e.g. HYDRAPROXY_DNS_SERVER_HOST
// maps to dns.server.host.
package config

import (
	"strings"
)

// DNSServerConfig configures the upstream resolver the DNS server forwards
// cache misses to, and the local socket it listens on.
type DNSServerConfig struct {
	Public string `yaml:"public" mapstructure:"public"`
	Port   int    `yaml:"port"   mapstructure:"port"`
	Host   string `yaml:"host"   mapstructure:"host"`
}

// DNSConfig is the `dns:` section. An empty Server.Host disables the DNS
// subsystem entirely.
type DNSConfig struct {
	Server DNSServerConfig `yaml:"server" mapstructure:"server"`
	Cache  []string        `yaml:"cache"  mapstructure:"cache"`
}

// PodPortConfig names the HTTP and HTTPS ports a backing pod exposes.
type PodPortConfig struct {
	HTTP  int `yaml:"http"  mapstructure:"http"`
	HTTPS int `yaml:"https" mapstructure:"https"`
}

// PodSelectorConfig identifies the pods a cluster client forwards to.
type PodSelectorConfig struct {
	Namespace string        `yaml:"namespace" mapstructure:"namespace"`
	Label     string        `yaml:"label"     mapstructure:"label"`
	Port      PodPortConfig `yaml:"port"      mapstructure:"port"`
}

// ClusterConfig is one entry of the `k8s:` list: a cluster client binding.
type ClusterConfig struct {
	IngressNamespace string            `yaml:"ingress-namespace" mapstructure:"ingress-namespace"`
	Pod              PodSelectorConfig `yaml:"pod"               mapstructure:"pod"`
	Config           string            `yaml:"config"            mapstructure:"config"`
}

// ProxyPortConfig names the HTTP and HTTPS listener ports.
type ProxyPortConfig struct {
	HTTP  int `yaml:"http"  mapstructure:"http"`
	HTTPS int `yaml:"https" mapstructure:"https"`
}

// RootCAConfig points at the PEM files for local leaf-minting (Mode B).
// When absent, the proxy sources certificates from cluster Secrets instead
// (Mode A).
type RootCAConfig struct {
	Cert string `yaml:"cert"      mapstructure:"cert"`
	Key  string `yaml:"key"       mapstructure:"key"`
	// Algorithm selects the leaf key pair algorithm: "rsa3072" (default),
	// "ed25519", "ecdsa-p256", or "ecdsa-p384".
	Algorithm string `yaml:"algorithm" mapstructure:"algorithm"`
}

// ProxyConfig is the `proxy:` section. An empty Host disables the proxy
// subsystem entirely; its absence from YAML has the same effect.
type ProxyConfig struct {
	Host   string          `yaml:"host"    mapstructure:"host"`
	Port   ProxyPortConfig `yaml:"port"    mapstructure:"port"`
	RootCA *RootCAConfig   `yaml:"root_ca" mapstructure:"root_ca"`
}

// StatusAPIConfig is the `status_api:` section, the ambient introspection
// surface from SPEC_FULL §4.12.
type StatusAPIConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// Config is the root configuration structure.
type Config struct {
	LogLevel  string          `yaml:"log-level"  mapstructure:"log-level"`
	DNS       DNSConfig       `yaml:"dns"         mapstructure:"dns"`
	K8s       []ClusterConfig `yaml:"k8s"         mapstructure:"k8s"`
	Proxy     ProxyConfig     `yaml:"proxy"       mapstructure:"proxy"`
	StatusAPI StatusAPIConfig `yaml:"status_api"  mapstructure:"status_api"`
}

// DNSEnabled reports whether the DNS subsystem should be started.
func (c *Config) DNSEnabled() bool {
	return strings.TrimSpace(c.DNS.Server.Host) != ""
}

// ProxyEnabled reports whether the proxy subsystem should be started.
func (c *Config) ProxyEnabled() bool {
	return strings.TrimSpace(c.Proxy.Host) != ""
}

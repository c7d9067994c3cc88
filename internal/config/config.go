package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ConfigError wraps a configuration problem that must fail startup
// (bad YAML, missing required field, unreadable CA file).
type ConfigError struct {
	msg string
	err error
}

func (e *ConfigError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("config: %s: %v", e.msg, e.err)
	}
	return fmt.Sprintf("config: %s", e.msg)
}

func (e *ConfigError) Unwrap() error { return e.err }

func configErrorf(err error, format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...), err: err}
}

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "INFO")

	v.SetDefault("dns.server.public", "8.8.8.8")
	v.SetDefault("dns.server.port", 53)
	v.SetDefault("dns.server.host", "0.0.0.0")
	v.SetDefault("dns.cache", []string{"k8s"})

	v.SetDefault("proxy.host", "")
	v.SetDefault("proxy.port.http", 80)
	v.SetDefault("proxy.port.https", 443)

	v.SetDefault("status_api.host", "127.0.0.1")
	v.SetDefault("status_api.port", 9090)
}

// Load builds a Config from the YAML file at path (pass "" to load defaults
// plus environment only) and HYDRAPROXY_-prefixed environment overrides,
// then validates it. Any failure is a *ConfigError.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HYDRAPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, configErrorf(err, "reading config file %q", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, configErrorf(err, "decoding config")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if !cfg.DNSEnabled() && !cfg.ProxyEnabled() {
		return configErrorf(nil, "at least one of dns.server.host or proxy.host must be set")
	}

	if ca := cfg.Proxy.RootCA; ca != nil {
		hasCert := strings.TrimSpace(ca.Cert) != ""
		hasKey := strings.TrimSpace(ca.Key) != ""
		if hasCert != hasKey {
			return configErrorf(nil, "proxy.root_ca requires both cert and key, or neither")
		}
	}

	for i, cluster := range cfg.K8s {
		if strings.TrimSpace(cluster.IngressNamespace) == "" {
			return configErrorf(nil, "k8s[%d].ingress-namespace is required", i)
		}
		if strings.TrimSpace(cluster.Config) == "" {
			return configErrorf(nil, "k8s[%d].config is required (\"default\" or a kubeconfig path)", i)
		}
	}

	return nil
}

// Package config implements apphost's ambient configuration layer: a
// YAML-backed Config struct plus a well-known defaults file, adapted from
// the teacher's internal/config/{config,defaults}.go (same YAML library,
// same load/validate/save shape, same backward-compat migration-on-load
// idiom), generalized away from Proxmox/LXC placement fields toward
// apphost's own domain: base path override, catalog source, and tunnel
// credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full apphost configuration, normally written to
// DefaultConfigPath by `apphost config init` and loaded at startup.
type Config struct {
	// BasePath overrides PlatformProbe/PathResolver's detected base
	// directory. Empty means "use the platform-detected base".
	BasePath string `yaml:"base_path,omitempty"`

	Catalog CatalogConfig `yaml:"catalog"`
	Tunnel  TunnelConfig  `yaml:"tunnel"`
	EnvProv EnvProvConfig `yaml:"environments"`
}

type CatalogConfig struct {
	URL     string `yaml:"url"`
	Refresh string `yaml:"refresh"`
}

// TunnelConfig carries TunnelBroker's auth configuration. AuthToken is the
// Open-Question-resolved init parameter (spec §9); when empty the broker
// falls back to the TUNNEL_AUTH_TOKEN environment variable.
type TunnelConfig struct {
	AuthToken string `yaml:"auth_token,omitempty"`
}

// EnvProvConfig selects EnvProvisioner's preferred backend when the
// platform supports more than one; empty means "let PlatformDescriptor
// decide" (spec §4.5's default-then-fallback rule).
type EnvProvConfig struct {
	PreferredBackend string `yaml:"preferred_backend,omitempty"`
}

// Load reads and parses a config file from path. Supports backward
// compatibility with the pre-1.0 single "catalog_url"/"catalog_branch"
// top-level keys, promoting them into the nested CatalogConfig — the same
// detect-old-shape-and-migrate idiom the teacher's Load used for
// storage/bridge.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if cfg.Catalog.URL == "" {
			if v, ok := raw["catalog_url"].(string); ok && v != "" {
				cfg.Catalog.URL = v
			}
		}
		if cfg.Catalog.Refresh == "" {
			if v, ok := raw["catalog_branch"].(string); ok && v != "" {
				cfg.Catalog.Refresh = v
			}
		}
	}

	if cfg.Catalog.URL == "" {
		cfg.Catalog.URL = DefaultCatalogURL
	}
	if cfg.Catalog.Refresh == "" {
		cfg.Catalog.Refresh = RefreshDaily
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all fields are well-formed. A Config loaded from an
// empty file is valid because Load fills in the defaults; a zero-value
// Config is not, since its empty Refresh is rejected.
func (c *Config) Validate() error {
	switch c.Catalog.Refresh {
	case RefreshDaily, RefreshWeekly, RefreshManual:
		// ok
	default:
		return fmt.Errorf("catalog.refresh must be %q, %q, or %q", RefreshDaily, RefreshWeekly, RefreshManual)
	}

	if c.Catalog.URL == "" {
		return fmt.Errorf("catalog.url is required")
	}
	if strings.HasPrefix(c.Catalog.URL, "-") {
		return fmt.Errorf("catalog.url cannot start with '-'")
	}
	if !strings.HasPrefix(c.Catalog.URL, "http://") && !strings.HasPrefix(c.Catalog.URL, "https://") {
		return fmt.Errorf("catalog.url must be a valid http(s) URL")
	}

	if c.EnvProv.PreferredBackend != "" {
		switch c.EnvProv.PreferredBackend {
		case BackendCondaClass, BackendVenvClass:
			// ok
		default:
			return fmt.Errorf("environments.preferred_backend must be %q or %q", BackendCondaClass, BackendVenvClass)
		}
	}

	return nil
}

// Save writes the config to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

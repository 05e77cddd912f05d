package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		BasePath: "/content",
		Catalog: CatalogConfig{
			URL:     DefaultCatalogURL,
			Refresh: RefreshDaily,
		},
		Tunnel: TunnelConfig{
			AuthToken: "tok_abc123",
		},
		EnvProv: EnvProvConfig{
			PreferredBackend: BackendCondaClass,
		},
	}
}

func TestValidateValid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidateMissingCatalogURL(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing catalog.url")
	}
}

func TestValidateBadCatalogURLScheme(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.URL = "ftp://example.com/apps.json"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http(s) catalog.url")
	}
}

func TestValidateCatalogURLDashPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.URL = "-rf"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for catalog.url starting with '-'")
	}
}

func TestValidateInvalidRefresh(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.Refresh = "hourly"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid refresh schedule")
	}
}

func TestValidateInvalidBackend(t *testing.T) {
	cfg := validConfig()
	cfg.EnvProv.PreferredBackend = "docker"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid preferred_backend")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config.yml")

	cfg := validConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("expected 0640 permissions, got %o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.BasePath != cfg.BasePath {
		t.Errorf("base_path: got %q, want %q", loaded.BasePath, cfg.BasePath)
	}
	if loaded.Catalog.URL != cfg.Catalog.URL {
		t.Errorf("catalog.url: got %q, want %q", loaded.Catalog.URL, cfg.Catalog.URL)
	}
	if loaded.Tunnel.AuthToken != cfg.Tunnel.AuthToken {
		t.Errorf("tunnel.auth_token: got %q, want %q", loaded.Tunnel.AuthToken, cfg.Tunnel.AuthToken)
	}
	if loaded.EnvProv.PreferredBackend != cfg.EnvProv.PreferredBackend {
		t.Errorf("environments.preferred_backend: got %q, want %q", loaded.EnvProv.PreferredBackend, cfg.EnvProv.PreferredBackend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	os.WriteFile(path, []byte("{{invalid yaml"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	os.WriteFile(path, []byte("base_path: /workspace\n"), 0o644)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Catalog.URL != DefaultCatalogURL {
		t.Errorf("expected default catalog URL, got %q", loaded.Catalog.URL)
	}
	if loaded.Catalog.Refresh != RefreshDaily {
		t.Errorf("expected default refresh schedule, got %q", loaded.Catalog.Refresh)
	}
}

package envprovision

import (
	"context"
	"testing"

	"github.com/apphost/apphost/internal/paths"
	"github.com/apphost/apphost/internal/platform"
	"github.com/apphost/apphost/internal/procengine"
)

func testResolver(t *testing.T) *paths.Resolver {
	t.Helper()
	desc := &platform.Descriptor{BasePath: t.TempDir()}
	r, err := paths.New(desc)
	if err != nil {
		t.Fatalf("paths.New: %v", err)
	}
	return r
}

func TestNewSelectsCondaWhenSupported(t *testing.T) {
	desc := &platform.Descriptor{Name: "Localhost", BasePath: t.TempDir(), SupportsIsolationA: true, SupportsIsolationB: true}
	p, err := New(desc, testResolver(t), procengine.New(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.BackendName() != "conda" {
		t.Fatalf("expected conda backend, got %s", p.BackendName())
	}
}

func TestNewFallsBackToVenv(t *testing.T) {
	desc := &platform.Descriptor{Name: "Lightning AI", BasePath: t.TempDir(), SupportsIsolationA: false, SupportsIsolationB: true}
	p, err := New(desc, testResolver(t), procengine.New(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.BackendName() != "venv" {
		t.Fatalf("expected venv backend, got %s", p.BackendName())
	}
}

func TestNewNoBackendSupported(t *testing.T) {
	desc := &platform.Descriptor{Name: "Unknown", BasePath: t.TempDir(), SupportsIsolationA: false, SupportsIsolationB: false}
	if _, err := New(desc, testResolver(t), procengine.New(), ""); err == nil {
		t.Fatal("expected error when no backend is supported")
	}
}

func TestPreferredBackendOverridesDefault(t *testing.T) {
	desc := &platform.Descriptor{Name: "Localhost", BasePath: t.TempDir(), SupportsIsolationA: true, SupportsIsolationB: true}
	p, err := New(desc, testResolver(t), procengine.New(), "venv")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.BackendName() != "venv" {
		t.Fatalf("expected preferred venv backend, got %s", p.BackendName())
	}
}

func TestCreateRejectsInvalidName(t *testing.T) {
	desc := &platform.Descriptor{Name: "Localhost", BasePath: t.TempDir(), SupportsIsolationA: true}
	p, err := New(desc, testResolver(t), procengine.New(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Create(context.Background(), "bad; rm -rf /", nil); err == nil {
		t.Fatal("expected error for name with shell metacharacters")
	}
	if _, err := p.Create(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	desc := &platform.Descriptor{Name: "Lightning AI", BasePath: t.TempDir(), SupportsIsolationB: true}
	p, err := New(desc, testResolver(t), procengine.New(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.markerExists("myapp") {
		t.Fatal("expected no marker before first create")
	}
	p.writeMarker("myapp")
	if !p.markerExists("myapp") {
		t.Fatal("expected marker to exist after writeMarker")
	}
	if p.markerExists("otherapp") {
		t.Fatal("marker for one name must not be visible under another name")
	}
}

func TestVenvPrefixReferencesEnvsDir(t *testing.T) {
	desc := &platform.Descriptor{Name: "Lightning AI", BasePath: t.TempDir(), SupportsIsolationB: true}
	p, err := New(desc, testResolver(t), procengine.New(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prefix := p.Prefix("myapp")
	if prefix == "" {
		t.Fatal("expected non-empty prefix")
	}
}

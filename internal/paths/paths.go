// Package paths implements PathResolver: semantic directories rooted at a
// platform-specific base, created lazily on first access.
//
// Grounded on original_source P01_PathMapper.py's get_*_path methods, with
// an envs/ accessor added by analogy for EnvProvisioner's directory-based
// backend (not present in the Python source, which creates conda/venv
// environments in-place rather than under a dedicated subtree).
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apphost/apphost/internal/platform"
)

// dirPerm is permissive-but-not-world-writable, per spec §4.2.
const dirPerm = 0o750

// Resolver exposes base/apps/data/temp/config/envs as subpaths of a
// platform's base directory. Every accessor ensures the directory exists
// before returning it.
type Resolver struct {
	base string
}

// New builds a Resolver rooted at desc.BasePath, creating the base
// directory immediately (mirrors P01_PathMapper's constructor behavior).
func New(desc *platform.Descriptor) (*Resolver, error) {
	if desc == nil || desc.BasePath == "" {
		return nil, fmt.Errorf("paths: platform descriptor must have a non-empty base path")
	}
	r := &Resolver{base: desc.BasePath}
	if err := ensureDir(r.base); err != nil {
		return nil, fmt.Errorf("paths: initializing base path %q: %w", r.base, err)
	}
	return r, nil
}

func ensureDir(p string) error {
	return os.MkdirAll(p, dirPerm)
}

func (r *Resolver) child(name string) (string, error) {
	p := filepath.Join(r.base, name)
	if err := ensureDir(p); err != nil {
		return "", fmt.Errorf("paths: creating %s: %w", name, err)
	}
	return p, nil
}

// Base returns the root working directory for the whole application.
func (r *Resolver) Base() (string, error) {
	if err := ensureDir(r.base); err != nil {
		return "", fmt.Errorf("paths: base: %w", err)
	}
	return r.base, nil
}

// Apps returns <base>/apps, the directory under which every managed app
// owns exactly one subdirectory.
func (r *Resolver) Apps() (string, error) { return r.child("apps") }

// Data returns <base>/data, shared scratch space for persistent data.
func (r *Resolver) Data() (string, error) { return r.child("data") }

// Temp returns <base>/temp, shared scratch space for transient files.
func (r *Resolver) Temp() (string, error) { return r.child("temp") }

// Config returns <base>/config, the directory holding state.db. The
// Config file itself is read from config.DefaultConfigPath.
func (r *Resolver) Config() (string, error) { return r.child("config") }

// Envs returns <base>/envs, the directory under which directory-based
// EnvProvisioner backends (venv-class) materialize isolated environments.
func (r *Resolver) Envs() (string, error) { return r.child("envs") }

// AppDir returns <base>/apps/<name>, the directory owned exclusively by
// the named app.
func (r *Resolver) AppDir(name string) (string, error) {
	apps, err := r.Apps()
	if err != nil {
		return "", err
	}
	p := filepath.Join(apps, name)
	if err := ensureDir(p); err != nil {
		return "", fmt.Errorf("paths: creating app dir %s: %w", name, err)
	}
	return p, nil
}

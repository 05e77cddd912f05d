// Package envprovision implements EnvProvisioner: create/list/destroy
// per-app isolated environments and produce the command prefix that runs
// a command inside one.
//
// Grounded on original_source/App/Core/P04_EnvironmentManager.py's
// get_run_prefix() table (one prefix string per backend, "venv" platform
// fallback) and the teacher's ContainerManager interface shape in
// internal/engine/engine.go, generalized here to an isolation-backend
// interface so InstallOrchestrator stays agnostic to which backend is in
// play, per spec §4.5.
package envprovision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/apphost/apphost/internal/apherr"
	"github.com/apphost/apphost/internal/config"
	"github.com/apphost/apphost/internal/paths"
	"github.com/apphost/apphost/internal/platform"
	"github.com/apphost/apphost/internal/procengine"
)

// nameRe rejects shell metacharacters in environment names, per spec §4.5.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// backend is the isolation-strategy contract both conda-class and
// venv-class implementations satisfy.
type backend interface {
	name() string
	create(ctx context.Context, name string, onLine procengine.OnLine) (int, error)
	prefix(name string) string
	list(ctx context.Context) ([]string, error)
	destroy(ctx context.Context, name string) error
}

// Provisioner selects one of two isolation backends based on the
// platform's capabilities and drives it.
type Provisioner struct {
	active   backend
	fallback backend
	engine   *procengine.Engine
	resolver *paths.Resolver
}

// New selects a backend per spec §4.5: the platform's default
// (conda-class) when supported, else the venv-class fallback. An explicit
// preferred backend from Config overrides platform detection when the
// platform supports it.
func New(desc *platform.Descriptor, resolver *paths.Resolver, engine *procengine.Engine, preferred string) (*Provisioner, error) {
	condaBackend := &condaEnv{engine: engine}
	venvBackend := &venvEnv{engine: engine, resolver: resolver}

	p := &Provisioner{engine: engine, resolver: resolver}

	switch {
	case preferred == config.BackendVenvClass && desc.SupportsIsolationB:
		p.active, p.fallback = venvBackend, condaBackend
	case preferred == config.BackendCondaClass && desc.SupportsIsolationA:
		p.active, p.fallback = condaBackend, venvBackend
	case desc.SupportsIsolationA:
		p.active, p.fallback = condaBackend, venvBackend
	case desc.SupportsIsolationB:
		p.active, p.fallback = venvBackend, condaBackend
	default:
		return nil, apherr.New(apherr.EnvError, "envprovision.New", "", fmt.Errorf("platform %q supports no isolation backend", desc.Name))
	}
	return p, nil
}

func validateName(name string) error {
	if name == "" || !nameRe.MatchString(name) {
		return apherr.New(apherr.InvalidInput, "envprovision", name, fmt.Errorf("environment name must be non-empty and contain no shell metacharacters"))
	}
	return nil
}

// Create creates an isolated environment named name, streaming lines
// through onLine. Re-creating an existing environment is not an error but
// is reported (idempotent, per spec §4.5): a marker keyed on name's
// blake2b-derived short ID (envMarkerID) records whether this exact name
// was already provisioned, independent of whichever backend is active.
func (p *Provisioner) Create(ctx context.Context, name string, onLine procengine.OnLine) (int, error) {
	if err := validateName(name); err != nil {
		return procengine.SpawnFailureExitCode, err
	}

	alreadyExists := p.markerExists(name)
	if alreadyExists && onLine != nil {
		onLine(procengine.TagStdout, fmt.Sprintf("environment %q already provisioned; re-running creation", name))
	}

	code, err := p.active.create(ctx, name, onLine)
	if err != nil {
		return code, apherr.New(apherr.EnvError, "envprovision.Create", name, err)
	}
	p.writeMarker(name)
	return code, nil
}

func (p *Provisioner) markerPath(name string) (string, error) {
	envs, err := p.resolver.Envs()
	if err != nil {
		return "", err
	}
	return filepath.Join(envs, ".marker-"+envMarkerID(name)), nil
}

func (p *Provisioner) markerExists(name string) bool {
	path, err := p.markerPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (p *Provisioner) writeMarker(name string) {
	path, err := p.markerPath(name)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, []byte(name), 0o640)
}

// Prefix returns the command prefix for name: concatenating
// prefix+" "+cmd executes cmd inside the environment.
func (p *Provisioner) Prefix(name string) string {
	return p.active.prefix(name)
}

// List returns the names of all environments known to the active backend.
func (p *Provisioner) List(ctx context.Context) ([]string, error) {
	names, err := p.active.list(ctx)
	if err != nil {
		return nil, apherr.New(apherr.EnvError, "envprovision.List", "", err)
	}
	return names, nil
}

// Destroy tears down the named environment.
func (p *Provisioner) Destroy(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := p.active.destroy(ctx, name); err != nil {
		return apherr.New(apherr.EnvError, "envprovision.Destroy", name, err)
	}
	return nil
}

// BackendName reports which backend is currently active ("conda"/"venv").
func (p *Provisioner) BackendName() string { return p.active.name() }

// condaEnv is the default backend: per-app dependency isolation suitable
// for AI/ML workloads, via `conda create`/`conda run`.
type condaEnv struct {
	engine *procengine.Engine
}

func (c *condaEnv) name() string { return config.BackendCondaClass }

func (c *condaEnv) create(ctx context.Context, name string, onLine procengine.OnLine) (int, error) {
	cmd := fmt.Sprintf("conda create -y -n %s python=3.11", name)
	return c.engine.Run(ctx, cmd, onLine, "", nil, nil)
}

func (c *condaEnv) prefix(name string) string {
	return fmt.Sprintf("conda run -n %s", name)
}

func (c *condaEnv) list(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "conda", "env", "list", "--json").Output()
	if err != nil {
		return nil, err
	}
	return parseCondaEnvList(out), nil
}

func (c *condaEnv) destroy(ctx context.Context, name string) error {
	return exec.CommandContext(ctx, "conda", "env", "remove", "-y", "-n", name).Run()
}

// venvEnv is the fallback backend: a directory-based Python venv under
// PathResolver's envs/ subtree, used on platforms lacking conda (spec
// §4.5's "strategy = venv" fallback per original_source).
type venvEnv struct {
	engine   *procengine.Engine
	resolver *paths.Resolver
}

func (v *venvEnv) name() string { return config.BackendVenvClass }

func (v *venvEnv) envDir(name string) (string, error) {
	envs, err := v.resolver.Envs()
	if err != nil {
		return "", err
	}
	return envs + "/" + name, nil
}

func (v *venvEnv) create(ctx context.Context, name string, onLine procengine.OnLine) (int, error) {
	dir, err := v.envDir(name)
	if err != nil {
		return procengine.SpawnFailureExitCode, err
	}
	cmd := fmt.Sprintf("python3 -m venv %s", dir)
	return v.engine.Run(ctx, cmd, onLine, "", nil, nil)
}

func (v *venvEnv) prefix(name string) string {
	dir, err := v.envDir(name)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(". %s/bin/activate &&", dir)
}

func (v *venvEnv) list(ctx context.Context) ([]string, error) {
	envs, err := v.resolver.Envs()
	if err != nil {
		return nil, err
	}
	out, err := exec.CommandContext(ctx, "ls", envs).Output()
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (v *venvEnv) destroy(ctx context.Context, name string) error {
	dir, err := v.envDir(name)
	if err != nil {
		return err
	}
	return exec.CommandContext(ctx, "rm", "-rf", dir).Run()
}

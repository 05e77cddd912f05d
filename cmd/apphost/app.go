package main

import (
	"path/filepath"

	"github.com/apphost/apphost/internal/config"
	"github.com/apphost/apphost/internal/dispatcher"
	"github.com/apphost/apphost/internal/envprovision"
	"github.com/apphost/apphost/internal/launch"
	"github.com/apphost/apphost/internal/libraryops"
	"github.com/apphost/apphost/internal/orchestrator"
	"github.com/apphost/apphost/internal/paths"
	"github.com/apphost/apphost/internal/platform"
	"github.com/apphost/apphost/internal/procengine"
	"github.com/apphost/apphost/internal/store"
	"github.com/apphost/apphost/internal/tunnel"
)

// app bundles every component a subcommand needs, built fresh per
// invocation (apphost is a CLI, not a long-lived server — there is no
// benefit to a process-wide singleton beyond the StateStore file itself).
type app struct {
	cfg      *config.Config
	desc     *platform.Descriptor
	resolver *paths.Resolver
	engine   *procengine.Engine
	env      *envprovision.Provisioner
	store    *store.Store
	orch     *orchestrator.Orchestrator
	launch   *launch.Orchestrator
	lib      *libraryops.LibraryOps
	tunnel   *tunnel.Broker
	jobs     *dispatcher.Dispatcher
}

// newApp wires every component from scratch, following the teacher's
// cmd_*.go convention of loading config.Load(config.DefaultConfigPath) at
// the top of each command's RunE rather than through a shared root-level
// PersistentPreRunE.
func newApp() (*app, error) {
	cfg, err := config.Load(config.DefaultConfigPath)
	if err != nil {
		cfg = &config.Config{
			Catalog: config.CatalogConfig{URL: config.DefaultCatalogURL, Refresh: config.RefreshDaily},
		}
	}

	desc, err := platform.Detect()
	if err != nil {
		return nil, err
	}
	if cfg.BasePath != "" {
		desc.BasePath = cfg.BasePath
	}

	resolver, err := paths.New(desc)
	if err != nil {
		return nil, err
	}

	engine := procengine.New()

	env, err := envprovision.New(desc, resolver, engine, cfg.EnvProv.PreferredBackend)
	if err != nil {
		return nil, err
	}

	configDir, err := resolver.Config()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(configDir, "state.db"))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		desc:     desc,
		resolver: resolver,
		engine:   engine,
		env:      env,
		store:    st,
		orch:     orchestrator.New(env, resolver, engine, st),
		launch:   launch.New(env, engine, st),
		lib:      libraryops.New(env, st),
		tunnel:   tunnel.New(cfg.Tunnel.AuthToken, nil),
	}
	a.jobs = dispatcher.New(8, nil)
	return a, nil
}

func (a *app) close() {
	a.jobs.Shutdown()
	a.store.Close()
}

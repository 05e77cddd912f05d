// Package libraryops implements LibraryOps: app removal and per-app
// configuration access, the two operations spec §4.9 groups together
// because both read/write install_path/config.json and mirror it into
// StateStore.
//
// Grounded on original_source/App/Core/P11_LibraryManager.py's
// uninstall() (best-effort teardown that always drops the state record,
// reporting which of env/dir teardown failed rather than aborting) and
// the teacher's internal/engine/engine.go UninstallApp for the
// "continue past individual component failures" shape.
package libraryops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apphost/apphost/internal/apherr"
	"github.com/apphost/apphost/internal/envprovision"
	"github.com/apphost/apphost/internal/fileops"
	"github.com/apphost/apphost/internal/store"
)

const configFileName = "config.json"

// OnLine reports a human-readable line as uninstall proceeds.
type OnLine func(line string)

// LibraryOps ties environment teardown, install-directory removal, and
// state-record removal into one best-effort uninstall.
type LibraryOps struct {
	Env   *envprovision.Provisioner
	Store *store.Store
}

// New constructs a LibraryOps from its collaborators.
func New(env *envprovision.Provisioner, st *store.Store) *LibraryOps {
	return &LibraryOps{Env: env, Store: st}
}

// UninstallResult reports which of the three teardown substeps failed,
// per spec §4.9: uninstall never aborts partway, it always attempts all
// three and always removes the state record last.
type UninstallResult struct {
	EnvDestroyFailed string
	DirRemoveFailed  string
	Success          bool
}

// Uninstall tears down appName's environment and install directory and
// removes its StateStore record. Failures of the environment or
// directory teardown are reported via onLine and in the returned
// UninstallResult's EnvDestroyFailed/DirRemoveFailed fields, but never
// prevent the state record from
// being removed (spec invariant: an app absent from the catalog or with a
// missing directory must still be removable).
func (l *LibraryOps) Uninstall(ctx context.Context, appName string, onLine OnLine) (*UninstallResult, error) {
	if onLine == nil {
		onLine = func(string) {}
	}

	rec, err := l.Store.Get(appName)
	if err != nil {
		return nil, apherr.New(apherr.StateStoreError, "libraryops.Uninstall", appName, err)
	}

	res := &UninstallResult{Success: true}

	onLine(fmt.Sprintf("destroying environment %s", appName))
	if err := l.Env.Destroy(ctx, appName); err != nil {
		res.EnvDestroyFailed = err.Error()
		res.Success = false
		onLine(fmt.Sprintf("environment teardown failed: %v", err))
	}

	if rec != nil && rec.InstallPath != "" {
		onLine(fmt.Sprintf("removing %s", rec.InstallPath))
		if err := fileops.Remove(rec.InstallPath); err != nil {
			res.DirRemoveFailed = err.Error()
			res.Success = false
			onLine(fmt.Sprintf("directory removal failed: %v", err))
		}
	}

	if _, err := l.Store.Remove(appName); err != nil {
		return res, apherr.New(apherr.StateStoreError, "libraryops.Uninstall", appName, err)
	}
	onLine("state record removed")

	return res, nil
}

// GetConfig reads installPath/config.json into an arbitrary JSON map, or
// returns an empty map if the file does not yet exist.
func (l *LibraryOps) GetConfig(installPath string) (map[string]any, error) {
	path := filepath.Join(installPath, configFileName)
	if !fileops.Exists(path) {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apherr.New(apherr.FsError, "libraryops.GetConfig", path, err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apherr.New(apherr.ParseError, "libraryops.GetConfig", path, err)
	}
	return cfg, nil
}

// SetConfig writes cfg to installPath/config.json and mirrors it into
// StateStore's config_data column, per spec §4.9's "config stays
// consistent between the file and the record" invariant.
func (l *LibraryOps) SetConfig(appName, installPath string, cfg map[string]any) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apherr.New(apherr.InvalidInput, "libraryops.SetConfig", appName, err)
	}
	path := filepath.Join(installPath, configFileName)
	if err := fileops.Write(path, string(data)); err != nil {
		return apherr.New(apherr.FsError, "libraryops.SetConfig", path, err)
	}

	if err := l.Store.SetConfigBlob(appName, string(data)); err != nil {
		return apherr.New(apherr.StateStoreError, "libraryops.SetConfig", appName, err)
	}
	return nil
}

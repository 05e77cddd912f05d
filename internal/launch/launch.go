// Package launch implements LaunchOrchestrator: start an installed app's
// run script as a long-lived background process, tee its output to one or
// two listeners, and track it through the STARTING/RUNNING/STOPPING/
// INSTALLED state machine (spec §4.10).
//
// Grounded on original_source/App/Core/P10_LaunchOrchestrator.py's
// run-script discovery order and "first Shell step is the launch command"
// rule, and on the teacher's internal/engine/engine.go StartApp for the
// "resolve run script, spawn under the app's environment, update state
// once PID is known" shape.
package launch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/apphost/apphost/internal/apherr"
	"github.com/apphost/apphost/internal/envprovision"
	"github.com/apphost/apphost/internal/fileops"
	"github.com/apphost/apphost/internal/procengine"
	"github.com/apphost/apphost/internal/recipe"
	"github.com/apphost/apphost/internal/store"
)

// runScriptCandidates is the priority order LaunchOrchestrator searches
// an install directory for a run script, per spec §4.10.
var runScriptCandidates = []string{"start.json", "run.json", "start.js", "run.js"}

// Orchestrator launches and stops app processes.
type Orchestrator struct {
	Env    *envprovision.Provisioner
	Engine *procengine.Engine
	Store  *store.Store
}

// New constructs a launch Orchestrator from its collaborators.
func New(env *envprovision.Provisioner, engine *procengine.Engine, st *store.Store) *Orchestrator {
	return &Orchestrator{Env: env, Engine: engine, Store: st}
}

func findRunScript(installPath string) (string, error) {
	for _, name := range runScriptCandidates {
		p := filepath.Join(installPath, name)
		if fileops.Exists(p) {
			return p, nil
		}
	}
	return "", apherr.New(apherr.NotFound, "launch.findRunScript", installPath, fmt.Errorf("no run script found (tried %v)", runScriptCandidates))
}

// firstShellCommand extracts the command of the first Shell step in r,
// per spec §4.10's "the run script's first shell step is the launch
// command" rule.
func firstShellCommand(r recipe.Recipe) (string, error) {
	for _, step := range r {
		if step.Kind == recipe.KindShell {
			return step.Command, nil
		}
	}
	return "", apherr.New(apherr.InvalidInput, "launch.firstShellCommand", "", fmt.Errorf("run script has no shell step"))
}

// Launch starts appName's run script under its environment. It resolves
// the run script, spawns it via ProcessEngine, and returns once the OS pid
// is known, transitioning the app to RUNNING. onPrimary and onSecondary
// are both invoked for every output line (dual-callback tee, spec §4.10);
// either may be nil. Failure transitions the app to ERROR and rethrows
// (spec §4.10's "capture, transition, rethrow" policy).
func (o *Orchestrator) Launch(ctx context.Context, appName string, onPrimary, onSecondary procengine.OnLine) (int, error) {
	rec, err := o.Store.Get(appName)
	if err != nil {
		return 0, apherr.New(apherr.StateStoreError, "launch.Launch", appName, err)
	}
	if rec == nil {
		return 0, apherr.New(apherr.NotFound, "launch.Launch", appName, fmt.Errorf("app not installed"))
	}
	if rec.Status != store.StatusInstalled {
		return 0, apherr.New(apherr.InvalidState, "launch.Launch", string(rec.Status), fmt.Errorf("app must be INSTALLED to launch, got %s", rec.Status))
	}

	scriptPath, err := findRunScript(rec.InstallPath)
	if err != nil {
		o.fail(appName, err)
		return 0, err
	}

	r, err := recipe.Parse(scriptPath)
	if err != nil {
		o.fail(appName, err)
		return 0, apherr.New(apherr.ParseError, "launch.Launch", scriptPath, err)
	}

	cmd, err := firstShellCommand(r)
	if err != nil {
		o.fail(appName, err)
		return 0, err
	}

	prefix := o.Env.Prefix(rec.EnvironmentName)
	if prefix != "" {
		cmd = prefix + " " + cmd
	}

	if err := o.Store.SetStatus(appName, store.StatusStarting, store.Fields{}); err != nil {
		return 0, apherr.New(apherr.StateStoreError, "launch.Launch", appName, err)
	}

	tee := func(tag procengine.LineTag, line string) {
		if onPrimary != nil {
			onPrimary(tag, line)
		}
		if onSecondary != nil {
			onSecondary(tag, line)
		}
	}

	// Run blocks until the process exits and does not return the pid
	// synchronously, so the pid for *this* invocation is captured via
	// onStart the instant it is known — not by polling the engine's shared
	// active-process table for a command-text match, which is ambiguous
	// whenever two apps launch the same command concurrently or a stale
	// terminal record from a prior run sits uncompacted (spec §5).
	pidCh := make(chan int, 1)
	spawnErrCh := make(chan error, 1)
	go func() {
		code, err := o.Engine.Run(ctx, cmd, tee, rec.InstallPath, nil, func(pid int) {
			pidCh <- pid
		})
		if err != nil {
			select {
			case spawnErrCh <- err:
			default:
			}
			return
		}
		if code == procengine.SpawnFailureExitCode {
			select {
			case spawnErrCh <- apherr.New(apherr.ProcessSpawn, "launch.Launch", cmd, fmt.Errorf("process failed to spawn")):
			default:
			}
		}
	}()

	var pid int
	select {
	case pid = <-pidCh:
	case err := <-spawnErrCh:
		o.fail(appName, err)
		return 0, err
	case <-time.After(5 * time.Second):
		err := apherr.New(apherr.ProcessSpawn, "launch.Launch", cmd, fmt.Errorf("process did not start within 5s"))
		o.fail(appName, err)
		return 0, err
	}

	if err := o.Store.SetStatus(appName, store.StatusRunning, store.Fields{ProcessPID: &pid}); err != nil {
		return pid, apherr.New(apherr.StateStoreError, "launch.Launch", appName, err)
	}
	return pid, nil
}

func (o *Orchestrator) fail(appName string, err error) {
	msg := err.Error()
	o.Store.SetStatus(appName, store.StatusError, store.Fields{ErrorMessage: &msg})
}

// Stop transitions appName to STOPPING, kills its tracked process, and
// transitions to INSTALLED once the kill completes.
func (o *Orchestrator) Stop(appName string, onLine procengine.OnLine) error {
	rec, err := o.Store.Get(appName)
	if err != nil {
		return apherr.New(apherr.StateStoreError, "launch.Stop", appName, err)
	}
	if rec == nil {
		return apherr.New(apherr.NotFound, "launch.Stop", appName, fmt.Errorf("app not found"))
	}
	if rec.Status != store.StatusRunning {
		return apherr.New(apherr.InvalidState, "launch.Stop", string(rec.Status), fmt.Errorf("app must be RUNNING to stop, got %s", rec.Status))
	}

	if err := o.Store.SetStatus(appName, store.StatusStopping, store.Fields{}); err != nil {
		return apherr.New(apherr.StateStoreError, "launch.Stop", appName, err)
	}

	if rec.ProcessPID != nil {
		if onLine != nil {
			onLine(procengine.TagStdout, fmt.Sprintf("stopping pid %d", *rec.ProcessPID))
		}
		o.Engine.Kill(*rec.ProcessPID)
	}

	if err := o.Store.SetStatus(appName, store.StatusInstalled, store.Fields{}); err != nil {
		return apherr.New(apherr.StateStoreError, "launch.Stop", appName, err)
	}
	return nil
}

// TunnelChecker is the subset of tunnel.Broker ReconcileTunnels depends on.
type TunnelChecker interface {
	Check(publicURL string) bool
}

// ReconcileTunnels implements spec §5's "tunnel-dead-but-state-says-alive"
// race: it re-checks every RUNNING app's recorded tunnel URL against
// checker, and for any checker no longer recognizes as open, transitions
// that app back to INSTALLED via STOPPING (clearing pid and tunnel_url per
// I2/I3). It
// returns the names of apps it transitioned.
func (o *Orchestrator) ReconcileTunnels(checker TunnelChecker) ([]string, error) {
	running, err := o.Store.ByStatus(store.StatusRunning)
	if err != nil {
		return nil, apherr.New(apherr.StateStoreError, "launch.ReconcileTunnels", "", err)
	}

	var reconciled []string
	for _, rec := range running {
		if rec.TunnelURL == nil {
			continue
		}
		if checker.Check(*rec.TunnelURL) {
			continue
		}
		// The FSM has no direct RUNNING -> INSTALLED edge; pass through STOPPING.
		if err := o.Store.SetStatus(rec.AppName, store.StatusStopping, store.Fields{}); err != nil {
			continue
		}
		if err := o.Store.SetStatus(rec.AppName, store.StatusInstalled, store.Fields{}); err != nil {
			continue
		}
		reconciled = append(reconciled, rec.AppName)
	}
	return reconciled, nil
}

// Package orchestrator implements InstallOrchestrator: walks a
// translated Recipe step by step, provisioning the app's environment and
// reporting progress, never throwing on a single step's failure (spec
// §4.6's "capture and report" policy).
//
// Grounded on original_source/App/Core/P09_InstallOrchestrator.py's
// step-dispatch loop and progress-percentage schedule, and on the
// teacher's internal/engine/engine.go InstallApp method for the
// "provision env, then run installer, update state on each phase" shape.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/apphost/apphost/internal/apherr"
	"github.com/apphost/apphost/internal/envprovision"
	"github.com/apphost/apphost/internal/fileops"
	"github.com/apphost/apphost/internal/paths"
	"github.com/apphost/apphost/internal/procengine"
	"github.com/apphost/apphost/internal/recipe"
	"github.com/apphost/apphost/internal/store"
)

// OnProgress reports 0-100 percent complete plus a human-readable line.
type OnProgress func(percent int, line string)

// OnInput is invoked synchronously for an Input step; it must block
// until the caller has collected a value for variableName and return it.
type OnInput func(prompt, def, variableName string) (string, error)

// Result is the InstallResult spec §3 return value: orchestration always
// returns one of these rather than propagating a step error.
type Result struct {
	Success        bool
	AppName        string
	EnvName        string
	StepsCompleted int
	TotalSteps     int
	ErrorMessage   string
}

// Orchestrator drives installs for one app using the shared
// EnvProvisioner, PathResolver, ProcessEngine, and StateStore.
type Orchestrator struct {
	Env     *envprovision.Provisioner
	Paths   *paths.Resolver
	Engine  *procengine.Engine
	Store   *store.Store
}

// New constructs an Orchestrator from its collaborators.
func New(env *envprovision.Provisioner, resolver *paths.Resolver, engine *procengine.Engine, st *store.Store) *Orchestrator {
	return &Orchestrator{Env: env, Paths: resolver, Engine: engine, Store: st}
}

// Install parses scriptPath into a Recipe, validates it, then executes
// each step in order against a fresh environment named appName.
// Progress climbs 10% once the environment is created, then is divided
// proportionally across the remaining steps up to 100%. Any step failure
// stops the walk and is captured into Result rather than returned as an
// error — InstallOrchestrator itself only returns an error for conditions
// that make installation impossible to even attempt (bad recipe, missing
// script).
func (o *Orchestrator) Install(ctx context.Context, appName, scriptPath, installPath string, onProgress OnProgress, onInput OnInput) (*Result, error) {
	if onProgress == nil {
		onProgress = func(int, string) {}
	}

	r, err := recipe.Parse(scriptPath)
	if err != nil {
		return nil, apherr.New(apherr.ParseError, "orchestrator.Install", scriptPath, err)
	}
	if ok, reason := recipe.Validate(r); !ok {
		return nil, apherr.New(apherr.InvalidInput, "orchestrator.Install", reason, fmt.Errorf("invalid recipe"))
	}

	res := &Result{AppName: appName, TotalSteps: len(r)}

	if err := o.Store.Add(appName, installPath); err != nil {
		return nil, apherr.New(apherr.StateStoreError, "orchestrator.Install", appName, err)
	}

	onProgress(0, fmt.Sprintf("creating environment for %s", appName))
	envOnLine := func(tag procengine.LineTag, line string) { onProgress(5, line) }
	if _, err := o.Env.Create(ctx, appName, envOnLine); err != nil {
		res.ErrorMessage = err.Error()
		o.fail(appName, res.ErrorMessage)
		return res, nil
	}
	res.EnvName = appName
	onProgress(10, "environment ready")

	prefix := o.Env.Prefix(appName)

	perStep := 90
	if len(r) > 0 {
		perStep = 90 / len(r)
	}

	for i, step := range r {
		if err := ctx.Err(); err != nil {
			res.ErrorMessage = err.Error()
			o.fail(appName, res.ErrorMessage)
			return res, nil
		}

		line := fmt.Sprintf("step %d/%d: %s", i+1, len(r), step.Kind)
		onProgress(10+perStep*i, line)

		stepErr := o.runStep(ctx, step, appName, installPath, prefix, onInput, onProgress)
		if stepErr != nil {
			if step.ErrorHandling == recipe.ErrorContinue {
				onProgress(10+perStep*(i+1), fmt.Sprintf("step %d failed (continuing): %v", i+1, stepErr))
				res.StepsCompleted++
				continue
			}
			res.ErrorMessage = fmt.Sprintf("step %d/%d: %v", i+1, len(r), stepErr)
			o.fail(appName, res.ErrorMessage)
			return res, nil
		}
		res.StepsCompleted++
	}

	if err := o.Store.SetStatus(appName, store.StatusInstalled, store.Fields{EnvironmentName: &res.EnvName}); err != nil {
		res.ErrorMessage = err.Error()
		return res, nil
	}

	res.Success = true
	onProgress(100, "install complete")
	return res, nil
}

func (o *Orchestrator) fail(appName, msg string) {
	o.Store.SetStatus(appName, store.StatusError, store.Fields{ErrorMessage: &msg})
}

// runStep dispatches one RecipeStep to its collaborator. Per spec §9 Open
// Question 3, an Input step's captured value is recorded only in the
// on_input callback's own side effects (e.g. a caller's form state) — it is
// never substituted back into later steps' command/path/content text.
func (o *Orchestrator) runStep(ctx context.Context, step recipe.Step, appName, installPath, prefix string, onInput OnInput, onProgress OnProgress) error {
	switch step.Kind {
	case recipe.KindShell:
		cmd := step.Command
		if prefix != "" {
			cmd = prefix + " " + cmd
		}
		code, err := o.Engine.Run(ctx, cmd, func(tag procengine.LineTag, line string) { onProgress(-1, line) }, installPath, nil, nil)
		if err != nil {
			return err
		}
		if code != 0 {
			return apherr.New(apherr.ProcessNonZero, "orchestrator.runStep", step.Command, fmt.Errorf("exit code %d", code))
		}
		return nil

	case recipe.KindDownload:
		_, err := fileops.Download(step.URL, step.DestDir, func(line string) { onProgress(-1, line) })
		return err

	case recipe.KindWrite:
		return fileops.Write(step.Path, step.Content)

	case recipe.KindCopy:
		return fileops.Copy(step.Src, step.Dst)

	case recipe.KindLink:
		return fileops.Link(step.Src, step.Dst)

	case recipe.KindRemove:
		return fileops.Remove(step.Path)

	case recipe.KindMkdir:
		return fileops.Mkdir(step.Path, step.CreateParents)

	case recipe.KindInput:
		if onInput == nil {
			return apherr.New(apherr.UserInputMissing, "orchestrator.runStep", step.VariableName, fmt.Errorf("no input handler configured"))
		}
		val, err := onInput(step.Prompt, step.Default, step.VariableName)
		if err != nil {
			return err
		}
		if val == "" {
			return apherr.New(apherr.UserInputMissing, "orchestrator.runStep", step.VariableName, fmt.Errorf("empty input result"))
		}
		return nil

	case recipe.KindEnvCreate:
		_, err := o.Env.Create(ctx, appName, func(tag procengine.LineTag, line string) { onProgress(-1, line) })
		return err

	default:
		return apherr.New(apherr.UnsupportedFormat, "orchestrator.runStep", string(step.Kind), fmt.Errorf("unknown step kind"))
	}
}

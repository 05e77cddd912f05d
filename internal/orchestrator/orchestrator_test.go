package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apphost/apphost/internal/envprovision"
	"github.com/apphost/apphost/internal/paths"
	"github.com/apphost/apphost/internal/platform"
	"github.com/apphost/apphost/internal/procengine"
	"github.com/apphost/apphost/internal/store"
)

func setup(t *testing.T) *Orchestrator {
	t.Helper()
	base := t.TempDir()
	desc := &platform.Descriptor{Name: "Localhost", BasePath: base, SupportsIsolationB: true}
	resolver, err := paths.New(desc)
	if err != nil {
		t.Fatalf("paths.New: %v", err)
	}
	engine := procengine.New()
	env, err := envprovision.New(desc, resolver, engine, "venv")
	if err != nil {
		t.Fatalf("envprovision.New: %v", err)
	}
	st, err := store.Open(filepath.Join(base, "state.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(env, resolver, engine, st)
}

func writeRecipe(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "install.json")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInstallRejectsEmptyRecipe(t *testing.T) {
	o := setup(t)
	dir := t.TempDir()
	path := writeRecipe(t, dir, `[]`)

	if _, err := o.Install(context.Background(), "myapp", path, dir, nil, nil); err == nil {
		t.Fatal("expected error for empty recipe")
	}
}

func TestInstallReportsProgressToCompletion(t *testing.T) {
	o := setup(t)
	dir := t.TempDir()
	path := writeRecipe(t, dir, `[{"type":"mkdir","path":"`+filepath.Join(dir, "out")+`"}]`)

	var lines []string
	res, err := o.Install(context.Background(), "myapp", path, dir, func(pct int, line string) {
		lines = append(lines, line)
	}, nil)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.ErrorMessage)
	}
	if res.StepsCompleted != 1 || res.TotalSteps != 1 {
		t.Fatalf("unexpected step counts: %+v", res)
	}
	if len(lines) == 0 {
		t.Fatal("expected progress lines")
	}

	status, ok, err := o.Store.GetStatus("myapp")
	if err != nil || !ok {
		t.Fatalf("GetStatus: %v ok=%v", err, ok)
	}
	if status != store.StatusInstalled {
		t.Fatalf("got status %s, want INSTALLED", status)
	}
}

func TestInstallCapturesStepFailureIntoResult(t *testing.T) {
	o := setup(t)
	dir := t.TempDir()
	path := writeRecipe(t, dir, `[{"type":"shell","command":"false"}]`)

	res, err := o.Install(context.Background(), "myapp", path, dir, nil, nil)
	if err != nil {
		t.Fatalf("Install should not return an error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.ErrorMessage == "" {
		t.Fatal("expected error message set")
	}

	status, ok, _ := o.Store.GetStatus("myapp")
	if !ok || status != store.StatusError {
		t.Fatalf("expected ERROR status, got %s ok=%v", status, ok)
	}
}

// TestInstallErrorMessageNamesFailingStep replicates spec §8 scenario S3
// verbatim: [Shell{"true"}, Shell{"exit 1"}, Shell{"true"}] must fail with
// steps_completed=1, total_steps=3, and an error_message that mentions the
// failing step's 1-based index (step 2).
func TestInstallErrorMessageNamesFailingStep(t *testing.T) {
	o := setup(t)
	dir := t.TempDir()
	path := writeRecipe(t, dir, `[{"type":"shell","command":"true"},{"type":"shell","command":"exit 1"},{"type":"shell","command":"true"}]`)

	res, err := o.Install(context.Background(), "myapp", path, dir, nil, nil)
	if err != nil {
		t.Fatalf("Install should not return an error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.StepsCompleted != 1 || res.TotalSteps != 3 {
		t.Fatalf("unexpected step counts: %+v", res)
	}
	if !strings.Contains(res.ErrorMessage, "step 2") {
		t.Fatalf("expected error_message to mention step 2, got %q", res.ErrorMessage)
	}

	status, ok, _ := o.Store.GetStatus("myapp")
	if !ok || status != store.StatusError {
		t.Fatalf("expected ERROR status, got %s ok=%v", status, ok)
	}
}

func TestInstallInputStepInvokesCallback(t *testing.T) {
	o := setup(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")
	// Per spec §9 Open Question 3, the input step's captured value is never
	// substituted back into a later step's literal text.
	path := writeRecipe(t, dir, `[{"type":"input","prompt":"token?","variable_name":"TOK"},{"type":"write","path":"`+target+`","content":"literal"}]`)

	called := false
	var gotName string
	res, err := o.Install(context.Background(), "myapp", path, dir, nil, func(prompt, def, name string) (string, error) {
		called = true
		gotName = name
		return "secret123", nil
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !called {
		t.Fatal("expected onInput to be invoked")
	}
	if gotName != "TOK" {
		t.Fatalf("expected variable_name TOK, got %q", gotName)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.ErrorMessage)
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "literal" {
		t.Fatalf("expected literal content, got %q (%v)", data, err)
	}
}

func TestInstallMissingInputHandlerFails(t *testing.T) {
	o := setup(t)
	dir := t.TempDir()
	path := writeRecipe(t, dir, `[{"type":"input","prompt":"token?","variable_name":"TOK"}]`)

	res, err := o.Install(context.Background(), "myapp", path, dir, nil, nil)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure without an input handler")
	}
}

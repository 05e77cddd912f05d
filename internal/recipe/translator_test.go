package recipe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

// S1 — flat requirements list.
func TestParseRequirementsFile(t *testing.T) {
	path := writeTemp(t, "requirements.txt", "numpy>=1.19.0\npandas\n# comment\nscikit-learn\n")

	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 3 {
		t.Fatalf("got %d steps, want 3", len(r))
	}
	for _, s := range r {
		if s.Kind != KindShell || !strings.HasPrefix(s.Command, "pip install ") {
			t.Fatalf("unexpected step %+v", s)
		}
	}
	if ok, reason := Validate(r); !ok {
		t.Fatalf("expected valid recipe, got %q", reason)
	}
}

func TestParseRequirementsSkipsBlankAndCommentLines(t *testing.T) {
	path := writeTemp(t, "requirements.txt", "\n# top comment\n\nflask\n")
	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 1 || r[0].Command != "pip install flask" {
		t.Fatalf("unexpected recipe %+v", r)
	}
}

// S2 — structured manifest: list mixing a bare string and a typed object.
func TestParseStructuredManifestList(t *testing.T) {
	path := writeTemp(t, "install.json", `["echo hi", {"type":"download","url":"https://x/y.zip","dest":"/tmp"}]`)

	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 2 {
		t.Fatalf("got %d steps, want 2", len(r))
	}
	if r[0].Kind != KindShell || r[0].Command != "echo hi" {
		t.Fatalf("step 0 = %+v", r[0])
	}
	if r[1].Kind != KindDownload || r[1].URL != "https://x/y.zip" || r[1].DestDir != "/tmp" {
		t.Fatalf("step 1 = %+v", r[1])
	}
}

func TestParseStructuredManifestRunWrapper(t *testing.T) {
	path := writeTemp(t, "install.json", `{"run": [{"type":"shell","command":"true"}]}`)
	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 1 || r[0].Command != "true" {
		t.Fatalf("unexpected recipe %+v", r)
	}
}

func TestParseStructuredManifestYAML(t *testing.T) {
	path := writeTemp(t, "install.yaml", "- type: shell\n  command: echo hi\n- type: mkdir\n  path: /tmp/x\n")
	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 2 || r[0].Kind != KindShell || r[1].Kind != KindMkdir {
		t.Fatalf("unexpected recipe %+v", r)
	}
}

// P5 — order preservation in script translation.
func TestParseScriptPreservesSourceOrder(t *testing.T) {
	script := `
		// set things up
		fs.mkdir("/app")
		shell.run("echo first")
		git.clone("https://example.com/repo.git")
		pip.install("numpy")
		input("token?", "none")
	`
	path := writeTemp(t, "install.js", script)

	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	wantKinds := []Kind{KindMkdir, KindShell, KindShell, KindShell, KindInput}
	if len(r) != len(wantKinds) {
		t.Fatalf("got %d steps, want %d: %+v", len(r), len(wantKinds), r)
	}
	for i, k := range wantKinds {
		if r[i].Kind != k {
			t.Fatalf("step %d kind = %s, want %s", i, r[i].Kind, k)
		}
	}
	if r[2].Command != "git clone https://example.com/repo.git repo" {
		t.Fatalf("git clone command = %q", r[2].Command)
	}
}

func TestParseScriptStripsComments(t *testing.T) {
	script := "// shell.run(\"should not match\")\n/* shell.run(\"also not\") */\nshell.run(\"echo real\")\n"
	path := writeTemp(t, "install.js", script)
	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 1 || r[0].Command != "echo real" {
		t.Fatalf("unexpected recipe %+v", r)
	}
}

func TestParseScriptAcceptsQuoteStyles(t *testing.T) {
	script := "shell.run('single')\nshell.run(\"double\")\nshell.run(`back`)\n"
	path := writeTemp(t, "install.js", script)
	r, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 3 {
		t.Fatalf("got %d steps, want 3: %+v", len(r), r)
	}
	got := []string{r[0].Command, r[1].Command, r[2].Command}
	want := []string{"single", "double", "back"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseUnsupportedExtension(t *testing.T) {
	path := writeTemp(t, "install.xyz", "whatever")
	if _, err := Parse(path); err == nil {
		t.Fatal("expected UnsupportedFormat error")
	}
}

func TestParseNotFound(t *testing.T) {
	if _, err := Parse(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected NotFound error")
	}
}

// P9 — validation.
func TestValidateRejectsEmptyRecipe(t *testing.T) {
	if ok, _ := Validate(Recipe{}); ok {
		t.Fatal("expected empty recipe to be invalid")
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	r := Recipe{{Kind: KindShell, Command: ""}}
	if ok, reason := Validate(r); ok || reason == "" {
		t.Fatalf("expected invalid recipe with a reason, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateAcceptsWellFormedRecipe(t *testing.T) {
	r := Recipe{
		{Kind: KindShell, Command: "echo hi"},
		{Kind: KindDownload, URL: "https://x/y", DestDir: "/tmp"},
		{Kind: KindInput, Prompt: "token?", VariableName: "TOK"},
	}
	if ok, reason := Validate(r); !ok {
		t.Fatalf("expected valid recipe, got %q", reason)
	}
}

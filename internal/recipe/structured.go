package recipe

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/apphost/apphost/internal/apherr"
)

// rawStep is the loosely-typed JSON/YAML shape a structured manifest
// element can take, generalized from p03_translator.py's
// _convert_json_step (which recognizes "method"/"command" keys) to also
// accept spec §4.4/§6's "type" key and "dest" alias, since third-party
// recipes are untrusted and shapes vary.
type rawStep struct {
	Type    string         `json:"type" yaml:"type"`
	Method  string         `json:"method" yaml:"method"`
	Run     string         `json:"run" yaml:"run"`
	Command string         `json:"command" yaml:"command"`
	URL     string         `json:"url" yaml:"url"`
	Dest    string         `json:"dest" yaml:"dest"`
	Dest2   string         `json:"destination" yaml:"destination"`
	Path    string         `json:"path" yaml:"path"`
	Content string         `json:"content" yaml:"content"`
	Src     string         `json:"src" yaml:"src"`
	Source  string         `json:"source" yaml:"source"`
	Dst     string         `json:"dst" yaml:"dst"`
	Prompt  string         `json:"prompt" yaml:"prompt"`
	Default string         `json:"default" yaml:"default"`
	Var     string         `json:"variable_name" yaml:"variable_name"`
	Name    string         `json:"name" yaml:"name"`
	Kind    string         `json:"kind" yaml:"kind"`
	Parents bool           `json:"create_parents" yaml:"create_parents"`
	Params  map[string]any `json:"params" yaml:"params"`
}

// manifestDoc is the whole-document shape: either a bare list of steps, or
// an object carrying a "run" array (the common manifest convention
// p03_translator.py's parse_json recognizes).
type manifestDoc struct {
	Run []any `json:"run" yaml:"run"`
}

func parseStructuredFile(path string) (Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apherr.New(apherr.NotFound, "recipe.parseStructuredFile", path, err)
	}
	return parseStructured(data, path)
}

// parseStructured handles both a bare list (`["echo hi", {...}]`) and a
// map-with-"run"-array (`{"run": [...]}`), matching spec §4.4 format (1).
func parseStructured(data []byte, path string) (Recipe, error) {
	var asList []any
	if err := unmarshalFlexible(data, path, &asList); err == nil {
		return stepsFromList(asList)
	}

	var asDoc manifestDoc
	if err := unmarshalFlexible(data, path, &asDoc); err == nil && asDoc.Run != nil {
		return stepsFromList(asDoc.Run)
	}

	var single map[string]any
	if err := unmarshalFlexible(data, path, &single); err == nil {
		step, ok, err := stepFromElement(single, 0)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apherr.New(apherr.ParseError, "recipe.parseStructured", path, fmt.Errorf("could not determine step format"))
		}
		return Recipe{step}, nil
	}

	return nil, apherr.New(apherr.ParseError, "recipe.parseStructured", path, fmt.Errorf("not a recognized structured manifest shape"))
}

func unmarshalFlexible(data []byte, path string, v any) error {
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	return yaml.Unmarshal(data, v)
}

func stepsFromList(items []any) (Recipe, error) {
	var out Recipe
	for i, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, Step{Kind: KindShell, Command: v, SourceLine: i, ErrorHandling: ErrorStop})
		case map[string]any:
			step, ok, err := stepFromElement(v, i)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, step)
			}
		default:
			return nil, apherr.New(apherr.ParseError, "recipe.stepsFromList", fmt.Sprintf("index %d", i), fmt.Errorf("unrecognized list element type %T", item))
		}
	}
	return out, nil
}

func stepFromElement(m map[string]any, index int) (Step, bool, error) {
	raw, err := decodeRawStep(m)
	if err != nil {
		return Step{}, false, apherr.New(apherr.ParseError, "recipe.stepFromElement", fmt.Sprintf("index %d", index), err)
	}

	kind := firstNonEmpty(raw.Type, raw.Method, raw.Kind)
	errHandling := ErrorStop // default per spec §4.8

	switch kind {
	case "shell", "shell.run", "shell_run":
		cmd := firstNonEmpty(raw.Command, raw.Run)
		return Step{Kind: KindShell, Command: cmd, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "download", "fs.download", "fs_download":
		dest := firstNonEmpty(raw.Dest, raw.Dest2)
		return Step{Kind: KindDownload, URL: raw.URL, DestDir: dest, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "write", "fs.write", "fs_write":
		return Step{Kind: KindWrite, Path: raw.Path, Content: raw.Content, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "copy", "fs.copy", "fs_copy":
		src := firstNonEmpty(raw.Src, raw.Source)
		return Step{Kind: KindCopy, Src: src, Dst: firstNonEmpty(raw.Dst, raw.Dest, raw.Dest2), SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "link", "fs.link", "fs_link":
		src := firstNonEmpty(raw.Src, raw.Source)
		return Step{Kind: KindLink, Src: src, Dst: firstNonEmpty(raw.Dst, raw.Dest, raw.Dest2), SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "remove", "fs.remove", "fs_remove":
		return Step{Kind: KindRemove, Path: raw.Path, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "mkdir", "fs.mkdir", "fs_mkdir":
		return Step{Kind: KindMkdir, Path: raw.Path, CreateParents: raw.Parents, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "input":
		varName := raw.Var
		if varName == "" {
			varName = "user_input"
		}
		return Step{Kind: KindInput, Prompt: raw.Prompt, Default: raw.Default, VariableName: varName, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "env_create", "env.create":
		return Step{Kind: KindEnvCreate, EnvName: raw.Name, EnvKind: raw.Kind, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "pip_install", "pip.install":
		pkg, _ := raw.Params["package"].(string)
		return Step{Kind: KindShell, Command: "pip install " + pkg, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "npm_install", "npm.install":
		pkg, _ := raw.Params["package"].(string)
		cmd := "npm install"
		if pkg != "" {
			cmd = "npm install " + pkg
		}
		return Step{Kind: KindShell, Command: cmd, SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "git_clone", "git.clone":
		return Step{Kind: KindShell, Command: gitCloneCommand(raw.URL, firstNonEmpty(raw.Dest, raw.Dest2)), SourceLine: index, ErrorHandling: errHandling}, true, nil
	case "chdir", "os.chdir":
		return Step{Kind: KindShell, Command: "cd " + raw.Path, SourceLine: index, ErrorHandling: errHandling}, true, nil
	default:
		if raw.Command != "" {
			return Step{Kind: KindShell, Command: raw.Command, SourceLine: index, ErrorHandling: errHandling}, true, nil
		}
		return Step{}, false, nil
	}
}

func decodeRawStep(m map[string]any) (*rawStep, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var raw rawStep
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

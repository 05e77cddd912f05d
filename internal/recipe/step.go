// Package recipe implements RecipeTranslator: parsing three heterogeneous
// installer script formats into a single ordered RecipeStep IR, without
// embedding a foreign runtime.
//
// Grounded on original_source/App/Utils/p03_translator.py in full
// (JavaScriptPatterns regex table, byte-offset ordering, per-call
// standardization) and teacher internal/catalog/manifest.go's use of
// gopkg.in/yaml.v3 for the structured-manifest variant.
package recipe

// Kind tags a RecipeStep's variant, per spec §3 and the wire form in §6.
type Kind string

const (
	KindShell      Kind = "shell"
	KindDownload   Kind = "download"
	KindWrite      Kind = "write"
	KindCopy       Kind = "copy"
	KindLink       Kind = "link"
	KindRemove     Kind = "remove"
	KindMkdir      Kind = "mkdir"
	KindInput      Kind = "input"
	KindEnvCreate  Kind = "env_create"
)

// ErrorHandling controls whether a step failure aborts the recipe.
type ErrorHandling string

const (
	ErrorStop     ErrorHandling = "stop"
	ErrorContinue ErrorHandling = "continue"
)

// Step is one RecipeStep: a tagged variant carrying only the fields its
// Kind uses. SourceLine is optional diagnostic context (§3).
type Step struct {
	Kind       Kind
	SourceLine int

	Command string // Shell

	URL     string // Download
	DestDir string // Download

	Path    string // Write, Mkdir, Remove
	Content string // Write

	Src string // Copy, Link
	Dst string // Copy, Link

	CreateParents bool // Mkdir

	Prompt       string // Input
	Default      string // Input
	VariableName string // Input

	EnvName string // EnvCreate
	EnvKind string // EnvCreate

	ErrorHandling ErrorHandling
}

// Recipe is a totally ordered sequence of steps — the uniform IR of any
// installer or run script (GLOSSARY).
type Recipe []Step

// requiredFieldsOK implements the per-step required-fields table behind
// Validate (spec §4.4/P9).
func (s Step) requiredFieldsOK() (bool, string) {
	switch s.Kind {
	case KindShell:
		if s.Command == "" {
			return false, "shell step missing command"
		}
	case KindDownload:
		if s.URL == "" || s.DestDir == "" {
			return false, "download step missing url or dest_dir"
		}
	case KindWrite:
		if s.Path == "" {
			return false, "write step missing path"
		}
	case KindCopy, KindLink:
		if s.Src == "" || s.Dst == "" {
			return false, "copy/link step missing src or dst"
		}
	case KindRemove, KindMkdir:
		if s.Path == "" {
			return false, "remove/mkdir step missing path"
		}
	case KindInput:
		if s.Prompt == "" || s.VariableName == "" {
			return false, "input step missing prompt or variable_name"
		}
	case KindEnvCreate:
		if s.EnvName == "" {
			return false, "env_create step missing name"
		}
	default:
		return false, "unknown step kind"
	}
	return true, ""
}

// Validate returns false and the first violation found on any empty
// recipe or step with a missing required field, per spec P9.
func Validate(r Recipe) (bool, string) {
	if len(r) == 0 {
		return false, "recipe is empty"
	}
	for i, s := range r {
		if ok, reason := s.requiredFieldsOK(); !ok {
			return false, reason
		}
		_ = i
	}
	return true, ""
}

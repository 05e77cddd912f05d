package recipe

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/apphost/apphost/internal/apherr"
)

// quotedString matches single/double/back-quoted string literals, per
// spec §4.4's "tolerant of single/double/back-quoted strings".
const quotedString = `['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]`

// patterns is the regex catalog recognizing the installer ecosystem's own
// API calls, grounded verbatim on p03_translator.py's JavaScriptPatterns.
var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindShell, regexp.MustCompile(`shell\.run\s*\(\s*` + quotedString + `\s*(?:,\s*(\{[^}]*\}))?\s*\)`)},
	{KindDownload, regexp.MustCompile(`fs\.download\s*\(\s*` + quotedString + `\s*,\s*` + quotedString + `\s*(?:,\s*(\{[^}]*\}))?\s*\)`)},
	{KindCopy, regexp.MustCompile(`fs\.copy\s*\(\s*` + quotedString + `\s*,\s*` + quotedString + `\s*\)`)},
	{KindLink, regexp.MustCompile(`fs\.link\s*\(\s*` + quotedString + `\s*,\s*` + quotedString + `\s*\)`)},
	{KindWrite, regexp.MustCompile(`fs\.write\s*\(\s*` + quotedString + `\s*,\s*` + quotedString + `\s*\)`)},
	{KindMkdir, regexp.MustCompile(`fs\.mkdir\s*\(\s*` + quotedString + `\s*\)`)},
	{KindInput, regexp.MustCompile(`input\s*\(\s*` + quotedString + `\s*(?:,\s*` + quotedString + `)?\s*\)`)},
}

var gitClonePattern = regexp.MustCompile(`git\.clone\s*\(\s*` + quotedString + `\s*(?:,\s*` + quotedString + `)?\s*\)`)
var npmInstallPattern = regexp.MustCompile(`npm\.install\s*\(\s*(?:\[\s*)?(?:` + quotedString + `)?(?:\s*\])?\s*\)`)
var pipInstallPattern = regexp.MustCompile(`pip\.install\s*\(\s*` + quotedString + `\s*\)`)
var chdirPattern = regexp.MustCompile(`os\.chdir\s*\(\s*` + quotedString + `\s*\)`)

// lineCommentPattern skips a "//" that follows ':' so URLs such as
// "https://..." inside string literals survive comment stripping.
var lineCommentPattern = regexp.MustCompile(`(?m)(^|[^:])//.*`)
var blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)

// preprocessScript strips comments before matching, grounded on
// p03_translator.py's _preprocess_js.
func preprocessScript(content string) string {
	content = blockCommentPattern.ReplaceAllString(content, "")
	content = lineCommentPattern.ReplaceAllString(content, "${1}")
	return content
}

type match struct {
	offset int
	step   Step
}

func parseScriptFile(path string) (Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apherr.New(apherr.NotFound, "recipe.parseScriptFile", path, err)
	}
	return parseScript(string(data))
}

// parseScript implements format (2): matches are indexed by byte offset
// and sorted ascending before emission (P5 order preservation).
func parseScript(content string) (Recipe, error) {
	content = preprocessScript(content)

	var matches []match

	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(content, -1) {
			matches = append(matches, match{offset: m[0], step: standardizeStep(p.kind, content, m)})
		}
	}
	for _, m := range gitClonePattern.FindAllStringSubmatchIndex(content, -1) {
		matches = append(matches, match{offset: m[0], step: gitCloneStep(content, m)})
	}
	for _, m := range npmInstallPattern.FindAllStringSubmatchIndex(content, -1) {
		matches = append(matches, match{offset: m[0], step: npmInstallStep(content, m)})
	}
	for _, m := range pipInstallPattern.FindAllStringSubmatchIndex(content, -1) {
		matches = append(matches, match{offset: m[0], step: pipInstallStep(content, m)})
	}
	for _, m := range chdirPattern.FindAllStringSubmatchIndex(content, -1) {
		matches = append(matches, match{offset: m[0], step: chdirStep(content, m)})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].offset < matches[j].offset })

	out := make(Recipe, 0, len(matches))
	for _, m := range matches {
		s := m.step
		s.SourceLine = strings.Count(content[:m.offset], "\n") + 1
		out = append(out, s)
	}
	return out, nil
}

func groupStr(content string, idx []int, n int) string {
	start, end := idx[2*n], idx[2*n+1]
	if start < 0 || end < 0 {
		return ""
	}
	return content[start:end]
}

func standardizeStep(kind Kind, content string, idx []int) Step {
	switch kind {
	case KindShell:
		return Step{Kind: KindShell, Command: groupStr(content, idx, 1), ErrorHandling: ErrorStop}
	case KindDownload:
		return Step{Kind: KindDownload, URL: groupStr(content, idx, 1), DestDir: groupStr(content, idx, 2), ErrorHandling: ErrorStop}
	case KindCopy:
		return Step{Kind: KindCopy, Src: groupStr(content, idx, 1), Dst: groupStr(content, idx, 2), ErrorHandling: ErrorStop}
	case KindLink:
		return Step{Kind: KindLink, Src: groupStr(content, idx, 1), Dst: groupStr(content, idx, 2), ErrorHandling: ErrorStop}
	case KindWrite:
		return Step{Kind: KindWrite, Path: groupStr(content, idx, 1), Content: groupStr(content, idx, 2), ErrorHandling: ErrorStop}
	case KindMkdir:
		return Step{Kind: KindMkdir, Path: groupStr(content, idx, 1), ErrorHandling: ErrorStop}
	case KindInput:
		varName := "user_input"
		return Step{Kind: KindInput, Prompt: groupStr(content, idx, 1), Default: groupStr(content, idx, 2), VariableName: varName, ErrorHandling: ErrorStop}
	}
	return Step{}
}

// gitCloneCommand builds "git clone <url> <dest>", defaulting dest to the
// repo basename without a trailing ".git", per spec §6.
func gitCloneCommand(url, dest string) string {
	if dest == "" {
		dest = strings.TrimSuffix(strings.TrimRight(lastPathSegment(url), "/"), ".git")
	}
	return "git clone " + url + " " + dest
}

func lastPathSegment(url string) string {
	url = strings.TrimRight(url, "/")
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return url
	}
	return url[idx+1:]
}

func gitCloneStep(content string, idx []int) Step {
	url := groupStr(content, idx, 1)
	dest := groupStr(content, idx, 2)
	return Step{Kind: KindShell, Command: gitCloneCommand(url, dest), ErrorHandling: ErrorStop}
}

func npmInstallStep(content string, idx []int) Step {
	pkg := groupStr(content, idx, 1)
	cmd := "npm install"
	if pkg != "" {
		cmd = "npm install " + pkg
	}
	return Step{Kind: KindShell, Command: cmd, ErrorHandling: ErrorStop}
}

func pipInstallStep(content string, idx []int) Step {
	return Step{Kind: KindShell, Command: "pip install " + groupStr(content, idx, 1), ErrorHandling: ErrorStop}
}

func chdirStep(content string, idx []int) Step {
	return Step{Kind: KindShell, Command: "cd " + groupStr(content, idx, 1), ErrorHandling: ErrorStop}
}

package recipe

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apphost/apphost/internal/apherr"
)

// Parse dispatches on path's extension/basename per spec §4.4: .json
// selects the structured-manifest format, a script extension (.js) selects
// the installer-script format, and a "requirements" basename prefix
// selects the flat-package-list format.
func Parse(path string) (Recipe, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apherr.New(apherr.NotFound, "recipe.Parse", path, err)
	}

	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case strings.HasPrefix(strings.ToLower(base), "requirements"):
		return parseRequirements(path)
	case ext == ".json":
		return parseStructuredFile(path)
	case ext == ".yaml", ext == ".yml":
		return parseStructuredFile(path)
	case ext == ".js":
		return parseScriptFile(path)
	default:
		return nil, apherr.New(apherr.UnsupportedFormat, "recipe.Parse", ext, fmt.Errorf("unrecognized installer script extension %q", ext))
	}
}

// parseRequirements implements format (3): one package specifier per
// line; '#' comments and blank lines ignored. Grounded on
// p03_translator.py's parse_requirements.
func parseRequirements(path string) (Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apherr.New(apherr.NotFound, "recipe.parseRequirements", path, err)
	}
	defer f.Close()

	var out Recipe
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Step{
			Kind:          KindShell,
			Command:       "pip install " + line,
			SourceLine:    lineNum,
			ErrorHandling: ErrorStop,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, apherr.New(apherr.ParseError, "recipe.parseRequirements", path, err)
	}
	return out, nil
}

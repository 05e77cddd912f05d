// Package uiscan implements UIReadyScanner: recognizing, from a stream of
// process output lines, the moment a launched app's web UI is ready and
// extracting its local URL (spec §4.11).
//
// Grounded on original_source/App/Utils/p12_ui_detector.py's per-framework
// regex catalog (Gradio/Flask/FastAPI/ComfyUI/Streamlit/Jupyter plus a
// generic fallback) and spec P10's loopback-only validation rule.
package uiscan

import (
	"net"
	"net/url"
	"regexp"
)

// pattern pairs a framework label with the regex that extracts its URL
// from a matching output line. Order matters: more specific framework
// patterns are tried before the generic fallback.
type pattern struct {
	framework string
	re        *regexp.Regexp
}

var patterns = []pattern{
	{"gradio", regexp.MustCompile(`Running on local URL:\s*(\S+)`)},
	{"gradio-public", regexp.MustCompile(`Running on public URL:\s*(\S+)`)},
	{"flask", regexp.MustCompile(`Running on (http://\S+)`)},
	{"fastapi", regexp.MustCompile(`Uvicorn running on (\S+)`)},
	{"comfyui", regexp.MustCompile(`To see the GUI go to:\s*(\S+)`)},
	{"streamlit", regexp.MustCompile(`Local URL:\s*(\S+)`)},
	{"jupyter", regexp.MustCompile(`(https?://\S*(?:token=\S+))`)},
	{"generic", regexp.MustCompile(`(https?://(?:127\.0\.0\.1|localhost|\[::1\]|0\.0\.0\.0)(?::\d+)?\S*)`)},
}

// Result is what Scan returns on a match.
type Result struct {
	Framework string
	URL       string
}

// Scanner holds no state beyond the precompiled pattern catalog; it is
// safe for concurrent use across apps.
type Scanner struct{}

// New constructs a Scanner.
func New() *Scanner { return &Scanner{} }

// Scan inspects one output line and returns a Result if it matches a
// known UI-ready signal and the extracted URL passes loopback validation
// (spec P10: tunnels are only opened for loopback-bound servers). Returns
// ok=false on no match or a non-loopback host.
func (s *Scanner) Scan(line string) (Result, bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := m[1]
		if !isLoopbackURL(raw) {
			continue
		}
		return Result{Framework: p.framework, URL: raw}, true
	}
	return Result{}, false
}

func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsUnspecified()
}

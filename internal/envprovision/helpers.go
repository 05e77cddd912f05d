package envprovision

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// envMarkerID derives a short, stable identifier for an environment name,
// used to namespace the idempotency marker Provisioner.Create checks
// before delegating to a backend (spec §4.5's "re-creating an existing
// environment is not an error but is reported"). blake2b is the teacher's
// repurposed-for-apphost ecosystem dependency (see DESIGN.md) standing in
// for a bcrypt-class primitive here used only for deterministic short-ID
// derivation, not password hashing.
func envMarkerID(name string) string {
	sum := blake2b.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:12]
}

// condaEnvListJSON is the shape of `conda env list --json`'s output.
type condaEnvListJSON struct {
	Envs []string `json:"envs"`
}

func parseCondaEnvList(out []byte) []string {
	var parsed condaEnvListJSON
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil
	}
	names := make([]string, 0, len(parsed.Envs))
	for _, p := range parsed.Envs {
		if idx := strings.LastIndex(p, "/"); idx >= 0 {
			names = append(names, p[idx+1:])
		} else {
			names = append(names, p)
		}
	}
	return names
}

func splitLines(out []byte) []string {
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

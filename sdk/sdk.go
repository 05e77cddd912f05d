// Package sdk provides the embedded Python helper module recipe authors
// may drop into an app's install directory, grounded on the teacher's
// sdk/sdk.go embedded-Python-package pattern (there: a full SDK pushed
// into containers during install; here: a single optional readiness-signal
// helper, since apphost recipes run in-process rather than inside a
// provisioned container).
package sdk

import "embed"

// PythonFS contains the Python helper files (apphost/ package).
// The files are at python/apphost/*.py within this filesystem.
//
//go:embed python/apphost/*.py
var PythonFS embed.FS

// Package version holds build-time version metadata, overridden via
// -ldflags at release build time (teacher's cmd_version.go convention).
package version

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

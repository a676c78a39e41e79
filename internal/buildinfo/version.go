// Package buildinfo holds the process version string, matching the
// teacher's internal/app/version.go convention of ldflags-overridable
// package vars rather than a generated file.
package buildinfo

// Version is the semantic version of research-powerpackd, set at
// build time via -ldflags "-X .../buildinfo.Version=...".
var Version = "0.1.0-dev"

// Build is the git commit hash or build identifier, set at build time
// via -ldflags.
var Build = "unknown"

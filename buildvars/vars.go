// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars holds values injected at link time.
package buildvars

// Version is set via `-ldflags -X github.com/fieldops/fieldaudit/buildvars.Version=...`.
// Empty for local builds.
var Version string

// Commit is the short VCS revision, set the same way as Version.
var Commit string

// VersionOrDefault returns Version if set, otherwise def.
func VersionOrDefault(def string) string {
	if len(Version) > 0 {
		return Version
	}
	return def
}

// Describe renders "version (commit)" for logs and the version command.
func Describe() string {
	v := VersionOrDefault("dev")
	if Commit != "" && Commit != "dev" {
		return v + " (" + Commit + ")"
	}
	return v
}

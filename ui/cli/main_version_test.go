// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.
package cli

import (
	"runtime/debug"
	"testing"
)

func TestResolveBuildVersion_MainVersion(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: modulePath, Version: "v0.4.0"},
	}
	v, c, d := resolveBuildVersion(info)
	if v != "v0.4.0" {
		t.Fatalf("expected v0.4.0 got %s", v)
	}
	if c != gitCommit {
		t.Fatalf("expected commit to equal package gitCommit got %s", c)
	}
	if d != buildDate {
		t.Fatalf("expected date to equal package buildDate got %s", d)
	}
}

func TestResolveBuildVersion_DependencyFallback(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: modulePath, Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: modulePath, Version: "v0.3.1-0.20250911080000-a1b2c3d4e5f6"},
		},
	}
	v, _, _ := resolveBuildVersion(info)
	if v != "v0.3.1-0.20250911080000-a1b2c3d4e5f6" {
		t.Fatalf("expected dependency version fallback got %s", v)
	}
}

func TestResolveBuildVersion_GitCommitFallback(t *testing.T) {
	orig := gitCommit
	defer func() { gitCommit = orig }()
	gitCommit = "cafe1234"
	info := &debug.BuildInfo{
		Main: debug.Module{Path: modulePath, Version: "(devel)"},
	}
	v, _, _ := resolveBuildVersion(info)
	if v != "cafe1234" {
		t.Fatalf("expected gitCommit fallback got %s", v)
	}
}

func TestResolveBuildVersion_VCSSettings(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: modulePath, Version: "v1.0.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123abcd"},
			{Key: "vcs.time", Value: "2025-09-01T10:00:00Z"},
		},
	}
	_, c, d := resolveBuildVersion(info)
	if c != "0123abcd" || d != "2025-09-01T10:00:00Z" {
		t.Fatalf("unexpected commit/date %q %q", c, d)
	}
}

// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Command fieldaudit runs the field audit API server and its admin commands.
//
// Usage:
//
//	./fieldaudit [flags]
//	./fieldaudit serve --server.port 9000
//
// See --help for the full command list.
package main

import (
	"os"

	"github.com/fieldops/fieldaudit/buildvars"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/fieldops/fieldaudit/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logging.Errorf("fieldaudit %s: %v", buildvars.Describe(), err)
		os.Exit(1)
	}
}

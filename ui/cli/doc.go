// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the fieldaudit command line using Cobra. It loads
// configuration, builds the service and delegates every operation to the
// internal packages. Running without a subcommand starts the HTTP server.
package cli

// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package ui holds the operator-facing entry points of fieldaudit. The only
// one is the command line in ui/cli; the HTTP API lives in internal/httpapi.
package ui

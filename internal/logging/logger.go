// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging wraps the charmbracelet logger used across fieldaudit.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Callers should use the helper functions
// below unless they need structured key/value pairs.
var L = clog.NewWithOptions(os.Stderr, clog.Options{ReportTimestamp: true})

// Setup replaces L with a logger writing to w at the given level.
// format is "text" (default) or "json"; json is meant for container logs.
func Setup(w io.Writer, level, format string) error {
	lvl, err := clog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
	}
	switch strings.ToLower(format) {
	case "", "text":
		opts.Formatter = clog.TextFormatter
	case "json":
		opts.Formatter = clog.JSONFormatter
	case "logfmt":
		opts.Formatter = clog.LogfmtFormatter
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	L = clog.NewWithOptions(w, opts)
	return nil
}

// With returns a child logger carrying the given key/value pairs.
func With(keyvals ...any) *clog.Logger {
	return L.With(keyvals...)
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...any) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...any) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...any) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...any) {
	L.Error(fmt.Sprintf(format, v...))
}

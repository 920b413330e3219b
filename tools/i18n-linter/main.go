// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every message id the service can return exists in
// the primary locale, and reports orphaned ids and per-locale coverage.
//
//	go run ./tools/i18n-linter
//
// Missing ids in the primary locale fail the run. Secondary locales may be
// partial; the API falls back to English.
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

// Location stores where a message id was referenced.
type Location struct {
	Filepath string
	Line     int
}

// messageCall matches the helpers that take a message id as their first
// string argument.
var messageCall = regexp.MustCompile(`\b(?:T|M|fail|badRequest|notFound|clientError|loadTodaysAudit)\([^"()]*"([a-z_]+\.[a-z0-9_.]+)"`)

// Report is the outcome of one lint run.
type Report struct {
	Used     map[string][]Location
	Missing  []string            // used in code, absent from the primary locale
	Orphaned []string            // in the primary locale, never referenced
	Coverage map[string][]string // secondary locale -> ids it lacks
	Primary  int
}

func main() {
	rep, err := lint(".", localesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "i18n-linter: %v\n", err)
		os.Exit(1)
	}
	if !rep.print(os.Stdout) {
		os.Exit(1)
	}
}

func lint(root, locales string) (*Report, error) {
	used, err := findUsedKeys(root)
	if err != nil {
		return nil, fmt.Errorf("scanning sources: %w", err)
	}
	primary, err := loadKeysFromLocale(filepath.Join(locales, primaryLocale))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", primaryLocale, err)
	}
	rep := &Report{Used: used, Coverage: map[string][]string{}, Primary: len(primary)}
	for key := range used {
		if _, ok := primary[key]; !ok {
			rep.Missing = append(rep.Missing, key)
		}
	}
	for key := range primary {
		if _, ok := used[key]; !ok {
			rep.Orphaned = append(rep.Orphaned, key)
		}
	}
	sort.Strings(rep.Missing)
	sort.Strings(rep.Orphaned)

	files, err := filepath.Glob(filepath.Join(locales, "*.yaml"))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if filepath.Base(f) == primaryLocale {
			continue
		}
		keys, err := loadKeysFromLocale(f)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
		var lacking []string
		for key := range primary {
			if _, ok := keys[key]; !ok {
				lacking = append(lacking, key)
			}
		}
		sort.Strings(lacking)
		rep.Coverage[filepath.Base(f)] = lacking
	}
	return rep, nil
}

// print writes the report and returns false when the run should fail.
func (r *Report) print(w io.Writer) bool {
	fmt.Fprintf(w, "%d message ids referenced, %d in %s\n", len(r.Used), r.Primary, primaryLocale)
	for _, key := range r.Missing {
		loc := r.Used[key][0]
		fmt.Fprintf(w, "  missing: %s (%s:%d)\n", key, loc.Filepath, loc.Line)
	}
	for _, key := range r.Orphaned {
		fmt.Fprintf(w, "  orphaned: %s\n", key)
	}
	names := make([]string, 0, len(r.Coverage))
	for name := range r.Coverage {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		have := r.Primary - len(r.Coverage[name])
		fmt.Fprintf(w, "  %s: %d/%d translated\n", name, have, r.Primary)
	}
	return len(r.Missing) == 0
}

// findUsedKeys scans non-test Go files below root, skipping tools and
// underscore directories.
func findUsedKeys(root string) (map[string][]Location, error) {
	keys := make(map[string][]Location)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "tools" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for i, line := range strings.Split(string(content), "\n") {
			for _, m := range messageCall.FindAllStringSubmatch(line, -1) {
				keys[m[1]] = append(keys[m[1]], Location{Filepath: path, Line: i + 1})
			}
		}
		return nil
	})
	return keys, err
}

// loadKeysFromLocale reads a YAML file and returns a flat set of its ids.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

// flattenYAML joins nested maps with dots so both flat and nested locale
// files yield the same ids.
func flattenYAML(prefix string, node any, keys map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		for k, val := range v {
			next := k
			if prefix != "" {
				next = prefix + "." + k
			}
			flattenYAML(next, val, keys)
		}
	default:
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
	}
}

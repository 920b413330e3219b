// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldops/fieldaudit/internal/model"
)

// Payload is a decoded JSON request body. Presence matters for several
// validations, so bodies stay generic until checked.
type Payload map[string]any

// Has reports whether key is present and not null.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Str returns a string field. Numbers are formatted; anything else is "".
func (p Payload) Str(key string) string {
	return asString(p[key])
}

// Int coerces a numeric field, returning def when it is absent.
func (p Payload) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	n, err := model.ParseCount(v)
	if err != nil {
		return 0, badRequest("error.invalid_number", "Field", key)
	}
	return n, nil
}

// Bool applies JSON truthiness to a field.
func (p Payload) Bool(key string) bool {
	return truthy(p[key])
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// pyList renders names the way the mobile app expects in validation
// errors, e.g. ['latitude', 'image (empty)'].
func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// missingFields lists required keys that are absent or null.
func missingFields(p Payload, required []string) []string {
	var missing []string
	for _, f := range required {
		if !p.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// toMap converts a value to its generic JSON object form.
func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// QueryInt parses an optional integer query parameter.
func QueryInt(v string, def int, field string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("error.invalid_number", "Field", field)
	}
	return n, nil
}

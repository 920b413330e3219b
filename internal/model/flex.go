// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Count is an integer the mobile client may send as a number or as a
// numeric string. Empty strings and null decode to zero.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	n, err := parseFlexNumber(b)
	if err != nil {
		return fmt.Errorf("invalid count %s: %w", b, err)
	}
	*c = Count(math.Trunc(n))
	return nil
}

// Int returns the count as an int.
func (c Count) Int() int { return int(c) }

// Coordinate is a latitude or longitude accepted as number or string.
type Coordinate float64

func (c *Coordinate) UnmarshalJSON(b []byte) error {
	n, err := parseFlexNumber(b)
	if err != nil {
		return fmt.Errorf("invalid coordinate %s: %w", b, err)
	}
	*c = Coordinate(n)
	return nil
}

func parseFlexNumber(b []byte) (float64, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// ParseCount converts a decoded JSON value (number, string or nil) into an int.
func ParseCount(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case json.Number:
		f, err := t.Float64()
		return int(f), err
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", t)
		}
		return int(f), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid integer %v", v)
	}
}

// MarshalJSON writes the school as a flat object with extra fields inlined.
func (s School) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+2)
	for k, v := range s.Extra {
		m[k] = v
	}
	m["school_name"] = s.SchoolName
	m["city"] = s.City
	return json.Marshal(m)
}

func (s *School) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = School{}
	if v, ok := m["school_name"].(string); ok {
		s.SchoolName = v
	}
	if v, ok := m["city"].(string); ok {
		s.City = v
	}
	delete(m, "school_name")
	delete(m, "city")
	if len(m) > 0 {
		s.Extra = m
	}
	return nil
}

// Key identifies a school case-insensitively by name and city.
func (s School) Key() string {
	return strings.ToLower(strings.TrimSpace(s.SchoolName)) + "|" + strings.ToLower(strings.TrimSpace(s.City))
}

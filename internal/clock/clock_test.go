// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.
package clock

import (
	"testing"
	"time"
)

func TestParseClientTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-03-14T10:30:00", "14 Mar 2025, 10:30 AM IST"},
		{"2025-03-14T10:30:00.123456", "14 Mar 2025, 10:30 AM IST"},
		{"2025-03-14T05:00:00Z", "14 Mar 2025, 10:30 AM IST"},
		{"2025-03-14T05:00:00.000Z", "14 Mar 2025, 10:30 AM IST"},
		{"2025-03-14T12:00:00+01:30", "14 Mar 2025, 04:00 PM IST"},
		{"2025-03-14 22:05:09", "14 Mar 2025, 10:05 PM IST"},
	}
	for _, c := range cases {
		got, err := ParseClientTimestamp(c.in)
		if err != nil {
			t.Fatalf("ParseClientTimestamp(%q): %v", c.in, err)
		}
		if Display(got) != c.want {
			t.Fatalf("ParseClientTimestamp(%q) displayed %q, want %q", c.in, Display(got), c.want)
		}
	}
	if _, err := ParseClientTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for garbage timestamp")
	}
}

func TestParseClientTimestampLenient(t *testing.T) {
	got, err := ParseClientTimestampLenient("2025-03-14 08:15:00.5 GMT+0530")
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if Display(got) != "14 Mar 2025, 08:15 AM IST" {
		t.Fatalf("unexpected display %q", Display(got))
	}
	if _, err := ParseClientTimestampLenient("14/03/2025"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDatesAndFolders(t *testing.T) {
	ts := time.Date(2025, time.October, 1, 20, 0, 0, 0, time.UTC) // 02 Oct 01:30 IST
	if AuditDate(ts) != "02 Oct 2025" {
		t.Fatalf("AuditDate = %q", AuditDate(ts))
	}
	if Day(ts) != "2025-10-02" {
		t.Fatalf("Day = %q", Day(ts))
	}
	if MonthFolder(ts) != "2025/10-October" {
		t.Fatalf("MonthFolder = %q", MonthFolder(ts))
	}
	for _, in := range []string{"2025-10-02", "02 Oct 2025"} {
		got, err := NormalizeDay(in)
		if err != nil || got != "2025-10-02" {
			t.Fatalf("NormalizeDay(%q) = %q, %v", in, got, err)
		}
	}
	a, _ := ParseDay("2025-12-30")
	b, _ := ParseDay("2026-01-06")
	if DaysBetween(a, b) != 7 || DaysBetween(b, a) != -7 {
		t.Fatalf("DaysBetween mismatch: %d", DaysBetween(a, b))
	}
}

func TestDurationMinutes(t *testing.T) {
	start := time.Date(2025, 3, 14, 10, 0, 50, 0, IST)
	end := time.Date(2025, 3, 14, 11, 1, 10, 0, IST)
	if got := DurationMinutes(start, end); got != 61 {
		t.Fatalf("expected 61 minutes, got %d", got)
	}
	// End reported before start wraps past midnight.
	late := time.Date(2025, 3, 14, 23, 30, 0, 0, IST)
	early := time.Date(2025, 3, 14, 0, 15, 0, 0, IST)
	if got := DurationMinutes(late, early); got != 45 {
		t.Fatalf("expected 45 minutes across midnight, got %d", got)
	}
	if DurationMinutes(time.Time{}, end) != 0 {
		t.Fatalf("zero start should give zero duration")
	}
	if TimeOfDay("14 Mar 2025, 10:30 AM IST") != "10:30 AM IST" {
		t.Fatalf("TimeOfDay mismatch")
	}
}

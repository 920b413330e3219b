// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package clock holds the India Standard Time conventions shared by every
// audit record: how client timestamps are parsed and how dates are shown.
package clock

import (
	"errors"
	"strings"
	"time"
)

// Layouts used in stored records and API responses.
const (
	DisplayLayout   = "02 Jan 2006, 03:04 PM IST"
	AuditDateLayout = "02 Jan 2006"
	DayLayout       = "2006-01-02"
	TimeOfDayLayout = "03:04 PM IST"
)

// IST is Asia/Kolkata. India has no DST, so a fixed zone is exact when the
// tz database is unavailable.
var IST = func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*3600+30*60)
}()

// Clock returns the current instant. Services take one so tests can pin time.
type Clock func() time.Time

// System is the wall clock.
func System() time.Time { return time.Now() }

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock { return func() time.Time { return t } }

var ErrInvalidTimestamp = errors.New("invalid timestamp format")

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DayLayout,
}

// ParseClientTimestamp parses an ISO-8601 timestamp sent by the mobile app.
// Values with an offset are converted to IST; naive values are taken as IST.
func ParseClientTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(IST), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, IST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// ParseClientTimestampLenient also accepts "YYYY-MM-DD HH:MM:SS" with any
// trailing fraction or suffix after the first dot.
func ParseClientTimestampLenient(s string) (time.Time, error) {
	if t, err := ParseClientTimestamp(s); err == nil {
		return t, nil
	}
	head, _, _ := strings.Cut(strings.TrimSpace(s), ".")
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", head, IST); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidTimestamp
}

// Display renders t the way audit records store timestamps.
func Display(t time.Time) string { return t.In(IST).Format(DisplayLayout) }

// AuditDate renders the calendar day as stored on school audits.
func AuditDate(t time.Time) string { return t.In(IST).Format(AuditDateLayout) }

// Day renders the IST calendar day as YYYY-MM-DD.
func Day(t time.Time) string { return t.In(IST).Format(DayLayout) }

// ParseDay parses a YYYY-MM-DD date as midnight IST.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, strings.TrimSpace(s), IST)
}

// NormalizeDay accepts YYYY-MM-DD or "02 Jan 2006" and returns YYYY-MM-DD.
func NormalizeDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DayLayout, s, IST); err == nil {
		return t.Format(DayLayout), nil
	}
	if t, err := time.ParseInLocation(AuditDateLayout, s, IST); err == nil {
		return t.Format(DayLayout), nil
	}
	return "", ErrInvalidTimestamp
}

// DaysBetween counts whole calendar days from a to b (negative if b < a).
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.In(IST).Date()
	by, bm, bd := b.In(IST).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// MonthFolder is the dated upload folder, e.g. "2025/03-March".
func MonthFolder(t time.Time) string {
	t = t.In(IST)
	return t.Format("2006/01-") + t.Month().String()
}

// DurationMinutes returns the whole minutes between two display-precision
// instants. An end before the start is treated as crossing midnight.
func DurationMinutes(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	d := end.Truncate(time.Minute).Sub(start.Truncate(time.Minute))
	for d < 0 {
		d += 24 * time.Hour
	}
	return int(d / time.Minute)
}

// TimeOfDay extracts the "03:04 PM IST" part of a display timestamp.
func TimeOfDay(display string) string {
	_, after, ok := strings.Cut(display, ",")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}

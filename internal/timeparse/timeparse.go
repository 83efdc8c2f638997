// Package timeparse normalizes stored timestamp text into canonical UTC
// instants. The canonical on-disk format is RFC3339 in UTC; legacy formats
// left behind by earlier versions are accepted on read only.
package timeparse

import (
	"fmt"
	"time"
)

// Canonical is the only format new writes use.
const Canonical = time.RFC3339

// legacyLayouts are accepted on read. Layouts without an offset are
// interpreted as UTC.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseInstant parses heterogeneous timestamp text into a UTC instant.
func ParseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// FormatInstant renders an instant in the canonical on-disk format.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(Canonical)
}

// CanonicalInstant converts a local date ("2006-01-02") and wall time
// ("15:04") in loc into the canonical UTC instant used as slot identity.
func CanonicalInstant(date, hhmm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot %s %s: %w", date, hhmm, err)
	}
	return t.UTC(), nil
}

// ParseDate validates a plain local date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// WeekWindow returns the Monday-anchored local week containing the instant,
// as a [start, end) pair in UTC. The quota window is anchored to the target
// slot's own week, not the current one.
func WeekWindow(instant time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	offset := (int(local.Weekday()) + 6) % 7 // Monday = 0
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -offset)
	return start.UTC(), start.AddDate(0, 0, 7).UTC()
}

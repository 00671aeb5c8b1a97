package domain

import "time"

// timestampLayout is the sortable lexicographic form used for document ids,
// due dates, completion times and time-tracking keys: ISO-8601 UTC with
// millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t in the canonical sortable form.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Now returns the current time in the canonical sortable form.
func Now() string {
	return Timestamp(time.Now())
}

// ParseTimestamp parses the canonical form back into a time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// EndOfDay returns t's day boundary at 23:59:59.999 UTC, the default due
// date for todos created without one.
func EndOfDay(t time.Time) string {
	u := t.UTC()
	return Timestamp(time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999_000_000, time.UTC))
}

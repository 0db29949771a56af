// Package dates provides the ISO date/datetime parsing shared by value
// coercion, the expression language and filter literals.
package dates

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ISODate is the layout used when a date is rendered back to text.
const ISODate = "2006-01-02"

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// IsValidDate checks if a string is a valid YYYY-MM-DD date.
func IsValidDate(s string) bool {
	if !dateRegex.MatchString(s) {
		return false
	}
	_, err := time.Parse(ISODate, s)
	return err == nil
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !IsValidDate(s) {
		return time.Time{}, fmt.Errorf("invalid date: %q", s)
	}
	return time.Parse(ISODate, s)
}

// ParseDatetime parses a datetime. A bare YYYY-MM-DD is accepted and
// resolves to midnight UTC.
func ParseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid datetime: empty")
	}
	if IsValidDate(s) {
		return time.Parse(ISODate, s)
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime: %q", s)
}

// IsValidDatetime reports whether ParseDatetime accepts s.
func IsValidDatetime(s string) bool {
	_, err := ParseDatetime(s)
	return err == nil
}

// Format renders t as a date when it has no time-of-day component and as
// RFC3339 otherwise.
func Format(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(ISODate)
	}
	return t.Format(time.RFC3339)
}

// Today returns the calendar date of now, truncated to midnight UTC.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

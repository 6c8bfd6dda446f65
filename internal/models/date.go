package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical trading-day format used in configs, reports and the API.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	"20060102",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseDate parses a trading-day string into a UTC timestamp.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, value)
}

// ParseOptionalDate returns the zero time for an empty string.
func ParseOptionalDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return ParseDate(value)
}

// FormatDate renders a trading day, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

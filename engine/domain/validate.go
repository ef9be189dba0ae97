package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// ParseDateTime accepts RFC3339 timestamps and bare dates (midnight UTC).
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected RFC3339 or %s", s, dateOnly)
}

// ParseDateRange parses an optional [start, end] pair. A bare end date covers
// the whole day. Zero results mean the bound is open.
func ParseDateRange(start, end string) (from, to time.Time, err error) {
	if start != "" {
		if from, err = ParseDateTime(start); err != nil {
			return
		}
	}
	if end != "" {
		if to, err = ParseDateTime(end); err != nil {
			return
		}
		if _, derr := time.Parse(dateOnly, strings.TrimSpace(end)); derr == nil {
			to = to.Add(24*time.Hour - time.Second)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		err = fmt.Errorf("invalid date range: %s is after %s", start, end)
	}
	return
}

// FormatDateTime renders t as an xsd:dateTime lexical value in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

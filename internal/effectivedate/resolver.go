// Package effectivedate decides which calendar date reporting attributes a
// booking to.
package effectivedate

import (
	"strings"
	"time"
)

// Metadata keys written by the booking lifecycle.
const (
	ConfirmedAtKey = "confirmed_at"
	CompletedAtKey = "completed_at"
)

const dateLayout = "2006-01-02"

// Resolve returns the completion date when present and well formed, else the
// confirmation date, else requestedDate. It has no side effects and returns
// the same answer for the same input.
func Resolve(requestedDate string, meta map[string]any) string {
	if d, ok := dateFrom(meta, CompletedAtKey); ok {
		return d
	}
	if d, ok := dateFrom(meta, ConfirmedAtKey); ok {
		return d
	}
	return requestedDate
}

func dateFrom(meta map[string]any, key string) (string, bool) {
	if meta == nil {
		return "", false
	}
	switch v := meta[key].(type) {
	case string:
		return parse(v)
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		return v.Format(dateLayout), true
	}
	return "", false
}

// parse accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func parse(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	// The timestamp's own offset decides the calendar day.
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format(dateLayout), true
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.Format(dateLayout), true
	}
	return "", false
}

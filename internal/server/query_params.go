package server

import (
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// timeWindow is an optional [start, end] filter taken from query parameters.
type timeWindow struct {
	Start *time.Time
	End   *time.Time
}

// parseTimeWindow accepts RFC3339 timestamps or bare dates. A bare end date
// covers the whole day.
func parseTimeWindow(rawStart, rawEnd string) (timeWindow, error) {
	var window timeWindow

	start, ok := parseQueryTime(rawStart, false)
	if !ok {
		return window, newValidationError("start_at", "invalid_start_at", "invalid start_at")
	}
	end, ok := parseQueryTime(rawEnd, true)
	if !ok {
		return window, newValidationError("end_at", "invalid_end_at", "invalid end_at")
	}
	if start != nil && end != nil && end.Before(*start) {
		return window, newValidationError("end_at", "invalid_range", "end_at must not precede start_at")
	}

	window.Start = start
	window.End = end
	return window, nil
}

func parseQueryTime(value string, endOfDay bool) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		ts = ts.UTC()
		return &ts, true
	}
	day, err := time.ParseInLocation(dateOnlyLayout, value, time.UTC)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, true
}

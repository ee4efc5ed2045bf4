package utils

import "time"

// LogTimestampLayout is the millisecond UTC layout used in incident log entries.
const LogTimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatLogTimestamp renders t in UTC using LogTimestampLayout.
func FormatLogTimestamp(t time.Time) string {
	return t.UTC().Format(LogTimestampLayout)
}

// ClampDuration bounds d to [0, max]; a non-positive max disables the upper bound.
func ClampDuration(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe(d)
	}

	require.Equal(t, len(durations), tracker.Count())
	assert.GreaterOrEqual(t, tracker.Percentile(95), 40*time.Millisecond)
}

func TestLatencyTrackerBoundedSize(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 3, tracker.Count())
}

func TestAppErrorUnwrapsTaxonomy(t *testing.T) {
	err := NewAppError("ticket.create", "jira rejected payload", ErrTicketCreate)
	assert.True(t, errors.Is(err, ErrTicketCreate))
	assert.False(t, errors.Is(err, ErrSchemaViolation))
	assert.Equal(t, "ticket.create: jira rejected payload: ticket create failed", err.Error())
}

func TestFormatLogTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.FixedZone("x", 3600))
	assert.Equal(t, "2026-03-04T04:06:07.890Z", FormatLogTimestamp(ts))
}

func TestClampDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), ClampDuration(-time.Second, time.Minute))
	assert.Equal(t, time.Minute, ClampDuration(time.Hour, time.Minute))
	assert.Equal(t, time.Hour, ClampDuration(time.Hour, 0))
}

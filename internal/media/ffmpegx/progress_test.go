// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpegx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_ParsesProgress(t *testing.T) {
	tr := NewTracker()
	tr.ParseLine("out_time_ms=2500000") // microseconds
	tr.ParseLine("total_size=123456")

	assert.Equal(t, int64(2500), tr.OutTimeMs())
	assert.InDelta(t, 25.0, tr.Percent(10), 1e-9)
}

func TestTracker_PercentClamped(t *testing.T) {
	tr := NewTracker()
	tr.ParseLine("out_time_ms=99000000")
	assert.InDelta(t, 100.0, tr.Percent(10), 1e-9)
	assert.Zero(t, tr.Percent(0))
}

func TestTracker_End(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Ended())
	tr.ParseLine("progress=end")
	assert.True(t, tr.Ended())
	assert.False(t, tr.Stalled(time.Nanosecond, time.Nanosecond))
}

func TestTracker_StallDetection(t *testing.T) {
	tr := NewTracker()

	// No progress yet: start timeout applies.
	time.Sleep(2 * time.Millisecond)
	assert.True(t, tr.Stalled(time.Millisecond, time.Hour))
	assert.False(t, tr.Stalled(time.Hour, time.Millisecond))

	// After first progress the stall timeout applies.
	tr.ParseLine("out_time_ms=1000")
	assert.False(t, tr.Stalled(time.Millisecond, time.Hour))
	time.Sleep(2 * time.Millisecond)
	assert.True(t, tr.Stalled(time.Hour, time.Millisecond))
}

func TestTracker_IgnoresMalformedLines(t *testing.T) {
	tr := NewTracker()
	tr.ParseLine("garbage")
	tr.ParseLine("out_time_ms=notanumber")
	assert.Equal(t, int64(0), tr.OutTimeMs())
}

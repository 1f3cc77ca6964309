// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpegx

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Tracker parses ffmpeg -progress output and tracks forward progress so the
// runner can detect a stalled encode and callers can compute a percentage.
type Tracker struct {
	mu sync.RWMutex

	lastOutTimeMs int64
	lastTotalSize int64
	lastHeartbeat time.Time
	hasProgress   bool
	ended         bool
}

// NewTracker creates a Tracker with the heartbeat primed to now.
func NewTracker() *Tracker {
	return &Tracker{lastHeartbeat: time.Now()}
}

// ParseLine processes one key=value line from the -progress pipe.
func (t *Tracker) ParseLine(line string) {
	key, val, found := strings.Cut(line, "=")
	if !found {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch key {
	case "out_time_ms":
		// ffmpeg reports microseconds despite the name
		us, _ := strconv.ParseInt(val, 10, 64)
		if ms := us / 1000; ms > t.lastOutTimeMs {
			t.lastOutTimeMs = ms
			t.heartbeat()
		}
	case "total_size":
		size, _ := strconv.ParseInt(val, 10, 64)
		if size > t.lastTotalSize {
			t.lastTotalSize = size
			t.heartbeat()
		}
	case "progress":
		if val == "end" {
			t.ended = true
		}
	}
}

func (t *Tracker) heartbeat() {
	t.lastHeartbeat = time.Now()
	if !t.hasProgress && (t.lastOutTimeMs > 0 || t.lastTotalSize > 0) {
		t.hasProgress = true
	}
}

// OutTimeMs returns the furthest output timestamp seen, in milliseconds.
func (t *Tracker) OutTimeMs() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastOutTimeMs
}

// Percent maps progress onto [0,100] given the expected output duration.
func (t *Tracker) Percent(durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	p := float64(t.OutTimeMs()) / 1000 / durationSeconds * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Ended reports whether ffmpeg wrote progress=end.
func (t *Tracker) Ended() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ended
}

// Stalled reports whether no forward progress was observed within the
// applicable timeout: startTimeout before first progress, stallTimeout after.
func (t *Tracker) Stalled(startTimeout, stallTimeout time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.ended {
		return false
	}
	elapsed := time.Since(t.lastHeartbeat)
	if !t.hasProgress {
		return startTimeout > 0 && elapsed > startTimeout
	}
	return stallTimeout > 0 && elapsed > stallTimeout
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package captions models timed caption segments, sanitizes malformed input
// and reads/writes the timed-caption file formats the pipeline exchanges with
// its collaborators.
package captions

import (
	"sort"
)

// Segment is one timed caption. Times are seconds from the start of the clip.
type Segment struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}

// Duration returns the rendered duration in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Sanitize returns an ordered, non-overlapping copy of segments. Malformed
// input is repaired rather than rejected:
//   - segments are sorted ascending by start time
//   - where two segments overlap, the later one's start is clamped to the
//     earlier one's end
//   - segments that are empty, inverted, or collapse to zero duration after
//     clamping are dropped
//
// Sanitize is idempotent: running it on its own output changes nothing.
func Sanitize(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Text == "" || s.Start < 0 || s.End <= s.Start {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	cleaned := out[:0]
	var lastEnd float64
	for _, s := range out {
		if s.Start < lastEnd {
			s.Start = lastEnd
		}
		if s.End <= s.Start {
			continue // swallowed entirely by the previous segment
		}
		cleaned = append(cleaned, s)
		lastEnd = s.End
	}

	return cleaned
}

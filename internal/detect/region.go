// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package detect locates face regions on a representative frame of a clip.
// Detection runs once per clip; the same regions are blurred across the whole
// duration. Faces that move far from their detected position can drift out of
// the blurred area; that trade-off is deliberate (see DESIGN.md).
package detect

import "fmt"

// Region is a face bounding box in pixel coordinates of the probed frame.
type Region struct {
	X          int
	Y          int
	W          int
	H          int
	Confidence float64
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d (q=%.2f)", r.W, r.H, r.X, r.Y, r.Confidence)
}

// Inflate grows the region by margin pixels on every side, to tolerate small
// face movement over the clip.
func (r Region) Inflate(margin int) Region {
	r.X -= margin
	r.Y -= margin
	r.W += 2 * margin
	r.H += 2 * margin
	return r
}

// Clamp restricts the region to a width x height frame. A region fully outside
// the frame collapses to zero size.
func (r Region) Clamp(width, height int) Region {
	if r.X < 0 {
		r.W += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.H += r.Y
		r.Y = 0
	}
	if r.X+r.W > width {
		r.W = width - r.X
	}
	if r.Y+r.H > height {
		r.H = height - r.Y
	}
	if r.W < 0 {
		r.W = 0
	}
	if r.H < 0 {
		r.H = 0
	}
	if r.X > width {
		r.X, r.W = width, 0
	}
	if r.Y > height {
		r.Y, r.H = height, 0
	}
	return r
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

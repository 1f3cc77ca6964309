// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"github.com/ManuGH/clipveil/internal/blur"
	"github.com/ManuGH/clipveil/internal/captions"
	"github.com/ManuGH/clipveil/internal/export"
	"github.com/ManuGH/clipveil/internal/media"
	"github.com/ManuGH/clipveil/internal/voice"
)

// Job describes one anonymization request. Nil stage specs mean the stage is
// skipped entirely; the zero value of each spec is not a valid substitute.
type Job struct {
	// ID is assigned by the orchestrator when empty.
	ID string

	// Source is the probed input asset.
	Source media.Asset

	Blur      *blur.Spec
	Pitch     *voice.Spec
	Captions  []captions.Segment
	Watermark *export.WatermarkSpec

	// OutputPath is the final delivery location. Intermediates never live
	// here; the file appears atomically via rename once validated.
	OutputPath string

	// WriteSidecar additionally writes the caption segments next to the
	// output as a plain-text sidecar.
	WriteSidecar bool

	// Progress, when set, receives phase transitions and encode percentages.
	Progress ProgressFunc
}

// Outcome is the terminal report for a job.
//
// State is one of the terminal phases. On PhaseCompleted Output holds the
// delivered asset; note that a completed job can still carry degradation
// diagnostics, up to delivering the unprocessed source when no tooling was
// available. On PhaseFailed Fallback holds the most processed asset that was
// still intact, so callers always have something playable.
type Outcome struct {
	JobID       string
	State       Phase
	Output      media.Asset
	Fallback    media.Asset
	Export      export.Result
	Diagnostics []media.Diagnostic
	Err         error
}

// Degraded reports whether any stage fell back to a no-op or reduced mode.
func (o Outcome) Degraded() bool {
	return len(o.Diagnostics) > 0
}

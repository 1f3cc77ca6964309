// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pipeline sequences the anonymization stages for one job, reports
// progress and guarantees the caller is never left without a playable asset.
package pipeline

// Phase is the client-visible lifecycle of a processing job.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDetectingFaces Phase = "detectingFaces"
	PhaseBlurring       Phase = "blurring"
	PhaseShiftingPitch  Phase = "shiftingPitch"
	PhaseCompositing    Phase = "compositing"
	PhaseExporting      Phase = "exporting"
	PhaseValidating     Phase = "validating"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
	PhaseCancelled      Phase = "cancelled"
)

// IsTerminal returns true if the phase is a final state.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// event drives the job FSM; one advance event per stage plus terminals.
type event string

const (
	evDetect   event = "detect"
	evBlur     event = "blur"
	evPitch    event = "pitch"
	evCompose  event = "compose"
	evExport   event = "export"
	evValidate event = "validate"
	evComplete event = "complete"
	evFail     event = "fail"
	evCancel   event = "cancel"
)

// ProgressFunc receives one event per phase transition plus fine-grained
// percentages during the export encode. Implementations must be fast; they
// are called from the job's worker goroutine.
type ProgressFunc func(phase Phase, percent float64, message string)

// Coarse progress anchors per phase. Export progress interpolates between
// the exporting and validating anchors using encoder feedback.
var phasePercent = map[Phase]float64{
	PhaseIdle:           0,
	PhaseDetectingFaces: 5,
	PhaseBlurring:       25,
	PhaseShiftingPitch:  45,
	PhaseCompositing:    55,
	PhaseExporting:      60,
	PhaseValidating:     95,
	PhaseCompleted:      100,
	PhaseFailed:         100,
	PhaseCancelled:      100,
}

var phaseMessage = map[Phase]string{
	PhaseDetectingFaces: "detecting faces…",
	PhaseBlurring:       "blurring faces…",
	PhaseShiftingPitch:  "changing voice…",
	PhaseCompositing:    "adding captions and watermark…",
	PhaseExporting:      "rendering video…",
	PhaseValidating:     "finishing up…",
	PhaseCompleted:      "done",
	PhaseFailed:         "processing failed, using unprocessed video",
	PhaseCancelled:      "cancelled",
}

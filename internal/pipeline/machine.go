// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ManuGH/clipveil/internal/log"
)

// newJobMachine builds the strict per-job FSM. Every transition logs the
// edge and emits coarse progress; fail and cancel edges exist from every
// non-terminal state so a job can never get stuck mid-graph.
func newJobMachine(job *Job, logger zerolog.Logger) (*Machine[Phase, event], error) {
	action := func(ctx context.Context, from, to Phase, ev event) error {
		logger.Debug().
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Msg("phase transition")
		if job.Progress != nil {
			job.Progress(to, phasePercent[to], phaseMessage[to])
		}
		return nil
	}

	edges := []Transition[Phase, event]{
		{From: PhaseIdle, Event: evDetect, To: PhaseDetectingFaces, Action: action},
		{From: PhaseDetectingFaces, Event: evBlur, To: PhaseBlurring, Action: action},
		{From: PhaseBlurring, Event: evPitch, To: PhaseShiftingPitch, Action: action},
		{From: PhaseShiftingPitch, Event: evCompose, To: PhaseCompositing, Action: action},
		{From: PhaseCompositing, Event: evExport, To: PhaseExporting, Action: action},
		{From: PhaseExporting, Event: evValidate, To: PhaseValidating, Action: action},
		{From: PhaseValidating, Event: evComplete, To: PhaseCompleted, Action: action},
	}
	for _, p := range []Phase{
		PhaseIdle, PhaseDetectingFaces, PhaseBlurring, PhaseShiftingPitch,
		PhaseCompositing, PhaseExporting, PhaseValidating,
	} {
		edges = append(edges,
			Transition[Phase, event]{From: p, Event: evFail, To: PhaseFailed, Action: action},
			Transition[Phase, event]{From: p, Event: evCancel, To: PhaseCancelled, Action: action},
		)
	}
	return NewMachine(PhaseIdle, edges)
}

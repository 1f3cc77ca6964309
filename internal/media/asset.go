// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package media defines the immutable asset model passed between pipeline
// stages and the diagnostics attached to stage results.
package media

import "fmt"

// Asset is an immutable reference to a video file plus its probed container
// metadata. Stages never mutate an Asset; each stage that produces a new file
// returns a new Asset describing it.
type Asset struct {
	URI             string
	DurationSeconds float64
	FrameRate       float64 // nominal, read from the source; never hardcoded
	Width           int
	Height          int
	HasAudio        bool
	SampleRate      int // audio sample rate in Hz, 0 when unknown or silent
}

// FrameDuration returns the reciprocal of the nominal frame rate in seconds,
// or 0 when the frame rate is unknown.
func (a Asset) FrameDuration() float64 {
	if a.FrameRate <= 0 {
		return 0
	}
	return 1 / a.FrameRate
}

// WithURI returns a copy of the asset pointing at a new file. Container
// metadata is carried over; stages that change it re-probe instead.
func (a Asset) WithURI(uri string) Asset {
	a.URI = uri
	return a
}

// maxDiagnosticLen bounds diagnostic messages so encoder stderr tails cannot
// grow logs without limit.
const maxDiagnosticLen = 500

// Diagnostic is a non-fatal, structured note attached to a stage result. It
// describes an anomaly without failing the job.
type Diagnostic struct {
	Stage   string
	Code    string
	Message string
}

// Diag builds a Diagnostic with the message truncated to a bounded length.
func Diag(stage, code, msg string) Diagnostic {
	if len(msg) > maxDiagnosticLen {
		msg = msg[:maxDiagnosticLen] + "...(truncated)"
	}
	return Diagnostic{Stage: stage, Code: code, Message: msg}
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s/%s: %s", d.Stage, d.Code, d.Message)
}

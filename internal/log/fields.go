// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID = "job_id"

	// Process / pipeline fields
	FieldComponent = "component"
	FieldPhase     = "phase"
	FieldStage     = "stage"

	// Media fields
	FieldFPS      = "fps"
	FieldDuration = "duration_s"
	FieldFaces    = "faces"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath       = "path"
	FieldOutputPath = "output_path"
)

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package procgroup spawns child processes in their own process group so the
// whole tree (ffmpeg and any helpers it forks) can be reaped together.
package procgroup

import (
	"errors"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrKillFailed      = errors.New("kill operation failed")
)

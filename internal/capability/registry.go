// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package capability centralizes availability checks for the native tools the
// pipeline depends on. Stages consult the registry once per job start and
// degrade to a no-op when a capability is missing, instead of scattering
// binary lookups through the stage code.
package capability

import (
	"context"
	"os/exec"
	"sync"

	"github.com/ManuGH/clipveil/internal/fsutil"
	"github.com/ManuGH/clipveil/internal/log"
)

// Capability names a tool or model the pipeline can degrade without.
type Capability string

const (
	FFmpeg       Capability = "ffmpeg"
	FFprobe      Capability = "ffprobe"
	FaceCascade  Capability = "face_cascade"
	WatermarkImg Capability = "watermark_image"
)

// CommandRunner executes probe commands. Tests substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealRunner executes commands using os/exec.
type RealRunner struct{}

func (RealRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204
	return cmd.Output()
}

// Config names the resources to probe.
type Config struct {
	FFmpegBin     string // defaults to "ffmpeg"
	FFprobeBin    string // defaults to "ffprobe"
	CascadePath   string // pigo facefinder model file; empty disables detection
	WatermarkPath string // watermark image; empty disables the overlay
}

// Registry holds probe results. Probing happens once; jobs read afterwards.
type Registry struct {
	mu        sync.RWMutex
	available map[Capability]bool
	reasons   map[Capability]string
	runner    CommandRunner
	cfg       Config
}

// NewRegistry creates a Registry for the given tool configuration.
func NewRegistry(cfg Config, runner CommandRunner) *Registry {
	if runner == nil {
		runner = RealRunner{}
	}
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.FFprobeBin == "" {
		cfg.FFprobeBin = "ffprobe"
	}
	return &Registry{
		available: make(map[Capability]bool),
		reasons:   make(map[Capability]string),
		runner:    runner,
		cfg:       cfg,
	}
}

// Probe checks each capability once and records the outcome. Missing
// capabilities are logged but never returned as errors; the pipeline
// degrades per stage instead.
func (r *Registry) Probe(ctx context.Context) {
	logger := log.WithComponent("capability")

	r.mu.Lock()
	defer r.mu.Unlock()

	r.probeBinary(ctx, FFmpeg, r.cfg.FFmpegBin)
	r.probeBinary(ctx, FFprobe, r.cfg.FFprobeBin)
	r.probeFile(FaceCascade, r.cfg.CascadePath)
	r.probeFile(WatermarkImg, r.cfg.WatermarkPath)

	for cap, ok := range r.available {
		ev := logger.Info()
		if !ok {
			ev = logger.Warn().Str("reason", r.reasons[cap])
		}
		ev.Str("capability", string(cap)).Bool("available", ok).Msg("capability probed")
	}
}

func (r *Registry) probeBinary(ctx context.Context, cap Capability, bin string) {
	if _, err := r.runner.Run(ctx, bin, "-version"); err != nil {
		r.available[cap] = false
		r.reasons[cap] = err.Error()
		return
	}
	r.available[cap] = true
}

func (r *Registry) probeFile(cap Capability, path string) {
	if path == "" {
		r.available[cap] = false
		r.reasons[cap] = "not configured"
		return
	}
	if err := fsutil.IsRegularFile(path); err != nil {
		r.available[cap] = false
		r.reasons[cap] = err.Error()
		return
	}
	r.available[cap] = true
}

// Has reports whether the capability probed as available.
func (r *Registry) Has(cap Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[cap]
}

// Reason returns why a capability is unavailable, or "" when it is available.
func (r *Registry) Reason(cap Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reasons[cap]
}

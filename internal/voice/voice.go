// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package voice repitches the audio track of a clip without changing its
// duration. The effect resamples at rate*ratio and back to the original rate,
// which shifts pitch at the cost of formants; true formant-preserving pitch
// shifting is an accepted quality limitation and out of scope.
package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuGH/clipveil/internal/capability"
	"github.com/ManuGH/clipveil/internal/log"
	"github.com/ManuGH/clipveil/internal/media"
	"github.com/ManuGH/clipveil/internal/media/ffmpegx"
)

// Effect names a pitch preset.
type Effect string

const (
	EffectNone  Effect = "none"
	EffectDeep  Effect = "deep"
	EffectLight Effect = "light"
)

// Preset ratios; a ratio > 1 raises pitch, < 1 lowers it.
const (
	deepRatio  = 0.8
	lightRatio = 1.2
)

// Spec is pitch configuration. An explicit Ratio wins over the preset.
type Spec struct {
	Effect Effect
	Ratio  float64
}

// ratio resolves the effective pitch ratio; 1 means no-op.
func (s Spec) ratio() float64 {
	if s.Ratio > 0 {
		return s.Ratio
	}
	switch s.Effect {
	case EffectDeep:
		return deepRatio
	case EffectLight:
		return lightRatio
	default:
		return 1
	}
}

// NoOp reports whether the spec leaves audio untouched. An explicit ratio
// counts even without a named effect.
func (s Spec) NoOp() bool {
	return s.ratio() == 1
}

// Runner executes one ffmpeg invocation; satisfied by *ffmpegx.Runner.
type Runner interface {
	Run(ctx context.Context, opts ffmpegx.RunOpts) (ffmpegx.RunResult, error)
}

// Shifter re-encodes the audio track with the pitch filter, stream-copying video.
type Shifter struct {
	Runner Runner
	Caps   *capability.Registry
}

// NewShifter creates a Shifter using the shared runner and capability registry.
func NewShifter(runner Runner, caps *capability.Registry) *Shifter {
	return &Shifter{Runner: runner, Caps: caps}
}

// Apply repitches the asset's audio into outPath. Contract:
//   - a no-op spec or an asset without audio returns the input unchanged
//   - on unavailable ffmpeg or a failed run the original asset is returned
//     with a diagnostic, never a fatal error
//   - output duration equals input duration within one audio frame
func (s *Shifter) Apply(ctx context.Context, asset media.Asset, spec Spec, outPath string) (media.Asset, []media.Diagnostic, error) {
	logger := log.WithComponentFromContext(ctx, "voice")

	if spec.NoOp() {
		return asset, nil, nil
	}
	if !asset.HasAudio {
		logger.Info().Msg("no audio track, skipping pitch shift")
		return asset, nil, nil
	}

	if s.Caps != nil && !s.Caps.Has(capability.FFmpeg) {
		return asset, []media.Diagnostic{
			media.Diag("voice", "capability_unavailable", s.Caps.Reason(capability.FFmpeg)),
		}, nil
	}

	res, err := s.Runner.Run(ctx, ffmpegx.RunOpts{
		Args:            BuildArgs(asset, spec, outPath),
		DurationSeconds: asset.DurationSeconds,
	})
	if err != nil {
		if ctx.Err() != nil {
			return asset, nil, ctx.Err()
		}
		logger.Warn().Err(err).Msg("pitch shift failed, continuing with original audio")
		return asset, []media.Diagnostic{
			media.Diag("voice", "run_failed", strings.Join(res.StderrTail, "\n")),
		}, nil
	}

	return asset.WithURI(outPath), nil, nil
}

// defaultSampleRate anchors the chain when the source's audio rate was not
// probed. Using the wrong base rate skews the effective ratio, so the probed
// rate wins whenever it is known.
const defaultSampleRate = 44100

// BuildArgs constructs the ffmpeg arguments for the pitch pass. The video
// track is stream-copied; only audio is re-encoded.
//
// asetrate relabels the samples to a faster or slower clock, which shifts
// pitch but stretches the timeline; the trailing atempo chain compresses the
// timeline back so the output duration matches the input.
func BuildArgs(asset media.Asset, spec Spec, outPath string) []string {
	ratio := spec.ratio()
	rate := asset.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	filter := fmt.Sprintf("asetrate=%d*%.6f,aresample=%d,%s",
		rate, ratio, rate, atempoChain(1/ratio))
	return []string{
		"-i", asset.URI,
		"-af", filter,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-y", outPath,
	}
}

// atempoChain renders a tempo factor as one or more atempo filters, since a
// single atempo only accepts factors in [0.5, 2.0].
func atempoChain(factor float64) string {
	var steps []string
	for factor > 2.0 {
		steps = append(steps, "atempo=2.000000")
		factor /= 2.0
	}
	for factor < 0.5 {
		steps = append(steps, "atempo=0.500000")
		factor /= 0.5
	}
	steps = append(steps, fmt.Sprintf("atempo=%.6f", factor))
	return strings.Join(steps, ",")
}

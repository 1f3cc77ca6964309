// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package blur applies a box blur to face regions of a video track. With an
// empty region list the stage is the identity unless whole-frame mode was
// requested explicitly.
package blur

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuGH/clipveil/internal/capability"
	"github.com/ManuGH/clipveil/internal/detect"
	"github.com/ManuGH/clipveil/internal/log"
	"github.com/ManuGH/clipveil/internal/media"
	"github.com/ManuGH/clipveil/internal/media/ffmpegx"
)

// Mode selects between blurring detected regions and the whole frame.
type Mode string

const (
	SelectiveRegions Mode = "selectiveRegions"
	WholeFrame       Mode = "wholeFrame"
)

// MaxIntensity bounds the blur kernel so worst-case encode latency stays sane.
const MaxIntensity = 50

// Spec is blur configuration, not state.
type Spec struct {
	Intensity int
	Mode      Mode
}

// radius maps the unitless intensity onto a boxblur luma radius.
func (s Spec) radius() int {
	intensity := s.Intensity
	if intensity > MaxIntensity {
		intensity = MaxIntensity
	}
	r := intensity / 2
	if r < 1 {
		r = 1
	}
	return r
}

// Runner executes one ffmpeg invocation; satisfied by *ffmpegx.Runner.
type Runner interface {
	Run(ctx context.Context, opts ffmpegx.RunOpts) (ffmpegx.RunResult, error)
}

// Filter re-encodes the video track with blurred regions, stream-copying audio.
type Filter struct {
	Runner Runner
	Caps   *capability.Registry
}

// NewFilter creates a Filter using the shared runner and capability registry.
func NewFilter(runner Runner, caps *capability.Registry) *Filter {
	return &Filter{Runner: runner, Caps: caps}
}

// Apply blurs the asset into outPath and returns the new asset. Contract:
//   - empty regions in selective mode: identity, the input asset comes back
//     untouched and no process runs
//   - whole-frame mode applies regardless of region count
//   - on unavailable ffmpeg or a failed run the original asset is returned
//     with a diagnostic; a selective-run failure is retried once whole-frame
//     before degrading
func (f *Filter) Apply(ctx context.Context, asset media.Asset, regions []detect.Region, spec Spec, outPath string) (media.Asset, []media.Diagnostic, error) {
	logger := log.WithComponentFromContext(ctx, "blur")

	if spec.Mode != WholeFrame && len(regions) == 0 {
		logger.Info().Msg("no face regions, skipping blur")
		return asset, nil, nil
	}

	if f.Caps != nil && !f.Caps.Has(capability.FFmpeg) {
		return asset, []media.Diagnostic{
			media.Diag("blur", "capability_unavailable", f.Caps.Reason(capability.FFmpeg)),
		}, nil
	}

	args := BuildArgs(asset, regions, spec, outPath)
	res, err := f.Runner.Run(ctx, ffmpegx.RunOpts{
		Args:            args,
		DurationSeconds: asset.DurationSeconds,
	})
	if err == nil {
		return asset.WithURI(outPath), nil, nil
	}
	if ctx.Err() != nil {
		return asset, nil, ctx.Err()
	}

	var diags []media.Diagnostic
	diags = append(diags, media.Diag("blur", "run_failed", strings.Join(res.StderrTail, "\n")))

	// Retry once with the simplified configuration before degrading.
	if spec.Mode != WholeFrame {
		logger.Warn().Err(err).Msg("selective blur failed, retrying whole-frame")
		retry := Spec{Intensity: spec.Intensity, Mode: WholeFrame}
		res, err = f.Runner.Run(ctx, ffmpegx.RunOpts{
			Args:            BuildArgs(asset, nil, retry, outPath),
			DurationSeconds: asset.DurationSeconds,
		})
		if err == nil {
			diags = append(diags, media.Diag("blur", "degraded_whole_frame", "selective blur failed, whole frame blurred instead"))
			return asset.WithURI(outPath), diags, nil
		}
		if ctx.Err() != nil {
			return asset, nil, ctx.Err()
		}
		diags = append(diags, media.Diag("blur", "retry_failed", strings.Join(res.StderrTail, "\n")))
	}

	logger.Warn().Err(err).Msg("blur unavailable, continuing with unblurred asset")
	return asset, diags, nil
}

// BuildArgs constructs the ffmpeg arguments for one blur pass. Regions are
// inflated by a motion margin and clamped to the frame before the graph is
// built; regions that collapse to zero size are dropped.
func BuildArgs(asset media.Asset, regions []detect.Region, spec Spec, outPath string) []string {
	args := []string{"-i", asset.URI}

	graph := buildGraph(asset, regions, spec)
	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18", // intermediate file, keep quality headroom for the export encode
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-y", outPath,
	)
	return args
}

func buildGraph(asset media.Asset, regions []detect.Region, spec Spec) string {
	radius := spec.radius()

	if spec.Mode == WholeFrame {
		return fmt.Sprintf("[0:v]boxblur=%d[vout]", radius)
	}

	usable := make([]detect.Region, 0, len(regions))
	for _, r := range regions {
		margin := r.W
		if r.H > margin {
			margin = r.H
		}
		r = r.Inflate(margin / 10).Clamp(asset.Width, asset.Height)
		if !r.Empty() {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		// All regions collapsed on clamping; blur nothing rather than everything.
		return "[0:v]null[vout]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[0:v]split=%d[base]", len(usable)+1)
	for i := range usable {
		fmt.Fprintf(&b, "[s%d]", i)
	}
	b.WriteString(";")

	for i, r := range usable {
		fmt.Fprintf(&b, "[s%d]crop=%d:%d:%d:%d,boxblur=%d[b%d];", i, r.W, r.H, r.X, r.Y, radius, i)
	}

	prev := "[base]"
	for i, r := range usable {
		out := fmt.Sprintf("[o%d]", i)
		if i == len(usable)-1 {
			out = "[vout]"
		}
		fmt.Fprintf(&b, "%s[b%d]overlay=%d:%d%s", prev, i, r.X, r.Y, out)
		if i != len(usable)-1 {
			b.WriteString(";")
		}
		prev = fmt.Sprintf("[o%d]", i)
	}

	return b.String()
}

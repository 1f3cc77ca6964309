// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package export builds the final composition: the processed video track,
// the processed audio track, burned-in captions and a watermark, re-encoded
// into a single delivery file whose frame timing matches the source.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/clipveil/internal/capability"
	"github.com/ManuGH/clipveil/internal/captions"
	"github.com/ManuGH/clipveil/internal/fsutil"
	"github.com/ManuGH/clipveil/internal/log"
	"github.com/ManuGH/clipveil/internal/media"
	"github.com/ManuGH/clipveil/internal/media/ffmpegx"
)

// Position places the watermark in a frame corner.
type Position string

const (
	TopLeft     Position = "topLeft"
	TopRight    Position = "topRight"
	BottomLeft  Position = "bottomLeft"
	BottomRight Position = "bottomRight"
)

// WatermarkSpec describes the static logo overlaid for the full duration.
type WatermarkSpec struct {
	ImagePath string
	Position  Position
	Opacity   float64 // (0,1]; values outside the range are clamped to 1
}

// Quality selects the encode preset. The high preset favors bounded bitrate
// over maximum fidelity to keep delivery size in check; the low preset is the
// retry configuration after a failed encode.
type Quality string

const (
	QualityHigh Quality = "high"
	QualityLow  Quality = "low"
)

// Result reports one export attempt. Diagnostics carry anomalies that did not
// fail the export so callers can decide whether to retry or accept.
type Result struct {
	OutputURI     string
	FileSizeBytes int64
	FrameRateUsed float64
	Succeeded     bool
	Diagnostics   []media.Diagnostic
}

// DefaultFrameRate is used only when the source reports no usable frame rate,
// and always together with an fps_fallback diagnostic.
const DefaultFrameRate = 30.0

// MinOutputBytes is the sanity floor for a plausible encode. The "black
// video" failure class produces tiny files that still exit 0.
const MinOutputBytes = 4096

// Options carries per-invocation paths and wiring.
type Options struct {
	OutputPath string
	TempDir    string  // job-private scratch dir for the SRT intermediate
	Quality    Quality // defaults to QualityHigh
	OnProgress func(percent float64)
}

// Runner executes one ffmpeg invocation; satisfied by *ffmpegx.Runner.
type Runner interface {
	Run(ctx context.Context, opts ffmpegx.RunOpts) (ffmpegx.RunResult, error)
}

// Engine renders compositions via ffmpeg.
type Engine struct {
	Runner Runner
	Caps   *capability.Registry
}

// NewEngine creates an Engine using the shared runner and capability registry.
func NewEngine(runner Runner, caps *capability.Registry) *Engine {
	return &Engine{Runner: runner, Caps: caps}
}

// Export composes asset + captions + watermark into opts.OutputPath.
// Expected failures (encoder exit, implausibly small output) come back as a
// Result with Succeeded=false and diagnostics; only cancellation and broken
// plumbing return an error.
func (e *Engine) Export(ctx context.Context, asset media.Asset, segments []captions.Segment, watermark *WatermarkSpec, opts Options) (Result, error) {
	logger := log.WithComponentFromContext(ctx, "export")

	result := Result{OutputURI: opts.OutputPath}

	// Frame-rate fidelity: the composition's timing grid MUST come from the
	// source. A mismatched grid makes frame sampling silently come up empty
	// while audio and overlays still render.
	fps := asset.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
		result.Diagnostics = append(result.Diagnostics,
			media.Diag("export", "fps_fallback",
				fmt.Sprintf("source reports no frame rate, using default %g", fps)))
	}
	result.FrameRateUsed = fps

	if e.Caps != nil && !e.Caps.Has(capability.FFmpeg) {
		result.Diagnostics = append(result.Diagnostics,
			media.Diag("export", "capability_unavailable", e.Caps.Reason(capability.FFmpeg)))
		return result, nil
	}

	srtPath := ""
	clean := captions.Sanitize(segments)
	if len(clean) > 0 {
		srtPath = filepath.Join(opts.TempDir, "burnin.srt")
		if err := captions.WriteSRT(srtPath, clean); err != nil {
			return result, fmt.Errorf("failed to write burn-in captions: %w", err)
		}
	}

	if watermark != nil {
		if err := fsutil.IsRegularFile(watermark.ImagePath); err != nil {
			result.Diagnostics = append(result.Diagnostics,
				media.Diag("export", "watermark_missing", err.Error()))
			watermark = nil
		}
	}

	quality := opts.Quality
	if quality == "" {
		quality = QualityHigh
	}

	args := BuildArgs(asset, srtPath, watermark, fps, quality, opts.OutputPath)
	res, err := e.Runner.Run(ctx, ffmpegx.RunOpts{
		Args:            args,
		DurationSeconds: asset.DurationSeconds,
		OnProgress:      opts.OnProgress,
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Diagnostics = append(result.Diagnostics,
			media.Diag("export", "encoder_error", strings.Join(res.StderrTail, "\n")))
		return result, nil
	}

	size, verr := Validate(opts.OutputPath)
	result.FileSizeBytes = size
	if verr != nil {
		result.Diagnostics = append(result.Diagnostics,
			media.Diag("export", "validation_failed", verr.Error()))
		return result, nil
	}

	result.Succeeded = true
	logger.Info().
		Str(log.FieldOutputPath, opts.OutputPath).
		Float64(log.FieldFPS, fps).
		Int64("size_bytes", size).
		Msg("export complete")
	return result, nil
}

// Validate checks that the output file exists and is plausibly large. An
// encoder that exits 0 but writes a near-empty file is a failed export.
func Validate(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("output file missing: %w", err)
	}
	if info.Size() < MinOutputBytes {
		return info.Size(), fmt.Errorf("output file implausibly small: %d bytes (minimum %d)", info.Size(), MinOutputBytes)
	}
	return info.Size(), nil
}

// BuildArgs constructs the ffmpeg arguments for the composition encode.
func BuildArgs(asset media.Asset, srtPath string, watermark *WatermarkSpec, fps float64, quality Quality, outPath string) []string {
	args := []string{"-i", asset.URI}
	if watermark != nil {
		args = append(args, "-i", watermark.ImagePath)
	}

	graph := buildGraph(srtPath, watermark)
	if graph != "" {
		args = append(args, "-filter_complex", graph, "-map", "[vout]")
	} else {
		args = append(args, "-map", "0:v:0")
	}
	args = append(args, "-map", "0:a:0?")

	args = append(args,
		"-r", fmt.Sprintf("%g", fps),
		"-c:v", "libx264",
	)
	switch quality {
	case QualityLow:
		args = append(args, "-preset", "veryfast", "-crf", "28", "-maxrate", "4M", "-bufsize", "8M")
	default:
		args = append(args, "-preset", "medium", "-crf", "21", "-maxrate", "8M", "-bufsize", "16M")
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-y", outPath,
	)
	return args
}

func buildGraph(srtPath string, watermark *WatermarkSpec) string {
	var stages []string
	cur := "[0:v]"

	if srtPath != "" {
		stages = append(stages, fmt.Sprintf("%ssubtitles='%s'[vcap]", cur, ffmpegx.EscapeFilterValue(srtPath)))
		cur = "[vcap]"
	}
	if watermark != nil {
		opacity := watermark.Opacity
		if opacity <= 0 || opacity > 1 {
			opacity = 1
		}
		stages = append(stages,
			fmt.Sprintf("[1:v]format=rgba,colorchannelmixer=aa=%.3f[wm]", opacity),
			fmt.Sprintf("%s[wm]overlay=%s[vout]", cur, overlayExpr(watermark.Position)))
		cur = "[vout]"
	}

	if len(stages) == 0 {
		return ""
	}
	if cur != "[vout]" {
		// Captions only: rename the last output pad.
		last := stages[len(stages)-1]
		stages[len(stages)-1] = strings.Replace(last, "[vcap]", "[vout]", 1)
	}
	return strings.Join(stages, ";")
}

// overlayExpr returns the overlay x:y expression for a corner, inset 16px.
func overlayExpr(pos Position) string {
	switch pos {
	case TopLeft:
		return "16:16"
	case BottomLeft:
		return "16:main_h-overlay_h-16"
	case BottomRight:
		return "main_w-overlay_w-16:main_h-overlay_h-16"
	default: // TopRight
		return "main_w-overlay_w-16:16"
	}
}

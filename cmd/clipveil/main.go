// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// clipveil anonymizes a clip: blurs faces, repitches the voice and renders
// captions plus a watermark into a single delivery file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/clipveil/internal/blur"
	"github.com/ManuGH/clipveil/internal/capability"
	"github.com/ManuGH/clipveil/internal/captions"
	"github.com/ManuGH/clipveil/internal/config"
	"github.com/ManuGH/clipveil/internal/detect"
	"github.com/ManuGH/clipveil/internal/export"
	cvlog "github.com/ManuGH/clipveil/internal/log"
	"github.com/ManuGH/clipveil/internal/media"
	"github.com/ManuGH/clipveil/internal/media/ffmpegx"
	"github.com/ManuGH/clipveil/internal/pipeline"
	"github.com/ManuGH/clipveil/internal/voice"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	inputPath := flag.String("input", "", "input video file (required)")
	outputPath := flag.String("output", "", "output video file (required)")
	blurFlag := flag.String("blur", "", "blur mode: faces or frame, with optional :intensity (e.g. faces:30)")
	pitchFlag := flag.String("pitch", "", "voice effect: deep, light, or a numeric ratio (e.g. 0.85)")
	captionsPath := flag.String("captions", "", "caption file (SRT or start-end-text lines) to burn in")
	sidecar := flag.Bool("sidecar", false, "also write captions as a plain-text sidecar next to the output")
	watermarkPos := flag.String("watermark", "", "watermark corner: topLeft, topRight, bottomLeft, bottomRight")
	watermarkOpacity := flag.Float64("watermark-opacity", 1.0, "watermark opacity in (0,1]")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clipveil %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clipveil: %v\n", err)
		return 2
	}

	cvlog.Configure(cvlog.Config{Level: cfg.LogLevel, Service: "clipveil"})
	logger := cvlog.WithComponent("main")

	if *inputPath == "" || *outputPath == "" {
		fmt.Fprintln(os.Stderr, "clipveil: -input and -output are required")
		flag.Usage()
		return 2
	}

	job := pipeline.Job{
		OutputPath:   *outputPath,
		WriteSidecar: *sidecar,
		Progress: func(phase pipeline.Phase, percent float64, message string) {
			fmt.Fprintf(os.Stderr, "\r[%3.0f%%] %-40s", percent, message)
			if phase.IsTerminal() {
				fmt.Fprintln(os.Stderr)
			}
		},
	}

	if job.Blur, err = parseBlurFlag(*blurFlag); err != nil {
		fmt.Fprintf(os.Stderr, "clipveil: %v\n", err)
		return 2
	}
	if job.Pitch, err = parsePitchFlag(*pitchFlag); err != nil {
		fmt.Fprintf(os.Stderr, "clipveil: %v\n", err)
		return 2
	}
	if *captionsPath != "" {
		segments, err := captions.LoadFile(*captionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clipveil: %v\n", err)
			return 2
		}
		job.Captions = segments
	}
	if *watermarkPos != "" {
		pos, err := parsePosition(*watermarkPos)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clipveil: %v\n", err)
			return 2
		}
		job.Watermark = &export.WatermarkSpec{
			ImagePath: cfg.WatermarkPath,
			Position:  pos,
			Opacity:   *watermarkOpacity,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caps := capability.NewRegistry(capability.Config{
		FFmpegBin:     cfg.FFmpegBin,
		FFprobeBin:    cfg.FFprobeBin,
		CascadePath:   cfg.CascadePath,
		WatermarkPath: cfg.WatermarkPath,
	}, capability.RealRunner{})
	caps.Probe(ctx)

	prober := media.NewProber(cfg.FFprobeBin)
	asset, err := prober.Probe(ctx, *inputPath)
	if err != nil {
		logger.Error().Err(err).Str(cvlog.FieldPath, *inputPath).Msg("probing input failed")
		fmt.Fprintf(os.Stderr, "clipveil: cannot read input: %v\n", err)
		return 1
	}
	job.Source = asset

	runner := ffmpegx.NewRunner(cfg.FFmpegBin)
	runner.KillGrace = cfg.KillGrace
	runner.StartTimeout = cfg.StartTimeout
	runner.StallTimeout = cfg.StallTimeout

	orch := &pipeline.Orchestrator{
		Detector: detect.NewPigoDetector(cfg.CascadePath),
		Blur:     blur.NewFilter(runner, caps),
		Voice:    voice.NewShifter(runner, caps),
		Exporter: export.NewEngine(runner, caps),
		Caps:     caps,
		WorkDir:  cfg.WorkDir,
	}
	mgr := pipeline.NewManager(orch, int64(cfg.MaxConcurrent))

	outcome := <-mgr.Submit(ctx, job)
	mgr.Wait()

	for _, d := range outcome.Diagnostics {
		logger.Warn().
			Str(cvlog.FieldStage, d.Stage).
			Str("code", d.Code).
			Msg(d.Message)
	}

	switch outcome.State {
	case pipeline.PhaseCompleted:
		logger.Info().
			Str(cvlog.FieldJobID, outcome.JobID).
			Str(cvlog.FieldOutputPath, outcome.Output.URI).
			Msg("done")
		return 0
	case pipeline.PhaseCancelled:
		logger.Warn().Str(cvlog.FieldJobID, outcome.JobID).Msg("cancelled")
		return 130
	default:
		logger.Error().
			Err(outcome.Err).
			Str(cvlog.FieldJobID, outcome.JobID).
			Str("fallback", outcome.Fallback.URI).
			Msg("processing failed")
		return 1
	}
}

// parseBlurFlag parses "faces", "frame", "faces:30" or "frame:45".
func parseBlurFlag(s string) (*blur.Spec, error) {
	if s == "" {
		return nil, nil
	}
	mode, intensityStr, _ := strings.Cut(s, ":")
	spec := blur.Spec{Intensity: 25}
	switch mode {
	case "faces":
		spec.Mode = blur.SelectiveRegions
	case "frame":
		spec.Mode = blur.WholeFrame
	default:
		return nil, fmt.Errorf("unknown blur mode %q (want faces or frame)", mode)
	}
	if intensityStr != "" {
		if _, err := fmt.Sscanf(intensityStr, "%d", &spec.Intensity); err != nil {
			return nil, fmt.Errorf("invalid blur intensity %q", intensityStr)
		}
	}
	return &spec, nil
}

// parsePitchFlag parses "deep", "light" or a bare ratio like "0.85".
func parsePitchFlag(s string) (*voice.Spec, error) {
	if s == "" {
		return nil, nil
	}
	switch s {
	case string(voice.EffectDeep):
		return &voice.Spec{Effect: voice.EffectDeep}, nil
	case string(voice.EffectLight):
		return &voice.Spec{Effect: voice.EffectLight}, nil
	}
	var ratio float64
	if _, err := fmt.Sscanf(s, "%f", &ratio); err != nil || ratio <= 0 {
		return nil, fmt.Errorf("invalid pitch value %q (want deep, light or a positive ratio)", s)
	}
	return &voice.Spec{Ratio: ratio}, nil
}

func parsePosition(s string) (export.Position, error) {
	switch export.Position(s) {
	case export.TopLeft, export.TopRight, export.BottomLeft, export.BottomRight:
		return export.Position(s), nil
	}
	return "", fmt.Errorf("unknown watermark position %q", s)
}

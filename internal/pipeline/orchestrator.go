// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/clipveil/internal/blur"
	"github.com/ManuGH/clipveil/internal/capability"
	"github.com/ManuGH/clipveil/internal/captions"
	"github.com/ManuGH/clipveil/internal/detect"
	"github.com/ManuGH/clipveil/internal/export"
	"github.com/ManuGH/clipveil/internal/fsutil"
	"github.com/ManuGH/clipveil/internal/log"
	"github.com/ManuGH/clipveil/internal/media"
	"github.com/ManuGH/clipveil/internal/metrics"
	"github.com/ManuGH/clipveil/internal/voice"
)

// ErrExportFailed means both encode attempts failed; the Outcome's Fallback
// still holds a playable asset.
var ErrExportFailed = errors.New("export failed after low-quality retry")

// FaceDetector finds face regions in an asset.
type FaceDetector interface {
	Detect(ctx context.Context, asset media.Asset) ([]detect.Region, error)
}

// BlurFilter applies region or whole-frame blur.
type BlurFilter interface {
	Apply(ctx context.Context, asset media.Asset, regions []detect.Region, spec blur.Spec, outPath string) (media.Asset, []media.Diagnostic, error)
}

// PitchShifter repitches the audio track.
type PitchShifter interface {
	Apply(ctx context.Context, asset media.Asset, spec voice.Spec, outPath string) (media.Asset, []media.Diagnostic, error)
}

// Exporter renders the final composition.
type Exporter interface {
	Export(ctx context.Context, asset media.Asset, segments []captions.Segment, watermark *export.WatermarkSpec, opts export.Options) (export.Result, error)
}

// Orchestrator runs jobs through the stage sequence. Every stage is
// fallible in isolation: a stage that cannot run degrades to its input and
// records a diagnostic, so a job only fails outright when the final encode
// fails twice or plumbing breaks.
type Orchestrator struct {
	Detector FaceDetector
	Blur     BlurFilter
	Voice    PitchShifter
	Exporter Exporter
	Caps     *capability.Registry

	// WorkDir is the parent of per-job scratch directories. Each job gets
	// its own job-<id> subdirectory which is removed on every exit path.
	WorkDir string
}

// Run processes one job to a terminal phase. The returned Outcome is always
// meaningful; Err is set only for cancellation and internal failures, not
// for degraded-but-delivered results.
func (o *Orchestrator) Run(ctx context.Context, job Job) Outcome {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ctx = log.ContextWithJobID(ctx, job.ID)
	logger := log.WithComponentFromContext(ctx, "pipeline")

	out := Outcome{JobID: job.ID, State: PhaseIdle}
	defer func() {
		metrics.JobsTotal.WithLabelValues(string(out.State)).Inc()
		for _, d := range out.Diagnostics {
			metrics.StageDegradedTotal.WithLabelValues(d.Stage).Inc()
		}
	}()

	workdir, err := fsutil.ConfineRelPath(o.WorkDir, "job-"+job.ID)
	if err == nil {
		err = fsutil.EnsureDir(workdir)
	}
	if err != nil {
		out.State = PhaseFailed
		out.Err = fmt.Errorf("workdir setup: %w", err)
		out.Fallback = job.Source
		return out
	}
	defer os.RemoveAll(workdir)

	m, err := newJobMachine(&job, logger)
	if err != nil {
		out.State = PhaseFailed
		out.Err = err
		out.Fallback = job.Source
		return out
	}

	run := func() {
		asset := job.Source

		// Detection. Zero faces found is a valid result and leaves the
		// selective blur as an identity; a broken detector is not, and
		// widens the blur to the whole frame so privacy still holds.
		if _, err := o.advance(ctx, m, evDetect); err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		// The spec is caller-owned configuration; widening happens on a
		// job-local copy so jobs sharing one spec template never race.
		var blurSpec blur.Spec
		if job.Blur != nil {
			blurSpec = *job.Blur
		}
		var regions []detect.Region
		if job.Blur != nil && blurSpec.Mode == blur.SelectiveRegions {
			if o.Caps != nil && !o.Caps.Has(capability.FaceCascade) {
				out.Diagnostics = append(out.Diagnostics,
					media.Diag("detect", "capability_unavailable", o.Caps.Reason(capability.FaceCascade)))
				blurSpec.Mode = blur.WholeFrame
			} else if o.Detector != nil {
				var derr error
				regions, derr = o.Detector.Detect(ctx, asset)
				if derr != nil {
					if ctx.Err() != nil {
						o.finish(ctx, m, &out, asset, ctx.Err())
						return
					}
					out.Diagnostics = append(out.Diagnostics,
						media.Diag("detect", "detector_error", derr.Error()))
					blurSpec.Mode = blur.WholeFrame
					regions = nil
				}
				logger.Info().Int(log.FieldFaces, len(regions)).Msg("face detection finished")
			}
		}

		if _, err := o.advance(ctx, m, evBlur); err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		if job.Blur != nil {
			blurred, diags, err := o.Blur.Apply(ctx, asset, regions, blurSpec, filepath.Join(workdir, "blurred.mp4"))
			out.Diagnostics = append(out.Diagnostics, diags...)
			if err != nil {
				o.finish(ctx, m, &out, asset, err)
				return
			}
			asset = blurred
		}

		if _, err := o.advance(ctx, m, evPitch); err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		if job.Pitch != nil {
			shifted, diags, err := o.Voice.Apply(ctx, asset, *job.Pitch, filepath.Join(workdir, "repitched.mp4"))
			out.Diagnostics = append(out.Diagnostics, diags...)
			if err != nil {
				o.finish(ctx, m, &out, asset, err)
				return
			}
			asset = shifted
		}

		if _, err := o.advance(ctx, m, evCompose); err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		segments := captions.Sanitize(job.Captions)

		if _, err := o.advance(ctx, m, evExport); err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		result, err := o.export(ctx, job, asset, segments, workdir)
		out.Export = result
		out.Diagnostics = append(out.Diagnostics, result.Diagnostics...)
		if err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		if !result.Succeeded {
			if hasCode(result.Diagnostics, "capability_unavailable") {
				// No encoder at all: the job still completes, delivering
				// whatever the stages produced (possibly the raw source).
				o.deliverDegraded(ctx, m, &out, asset, job)
				return
			}
			// Both encode attempts failed; hand back the last intact asset.
			out.Fallback = o.preserveFallback(asset, workdir, job)
			o.finish(ctx, m, &out, asset, ErrExportFailed)
			return
		}

		if _, err := o.advance(ctx, m, evValidate); err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		if err := fsutil.MoveFile(result.OutputURI, job.OutputPath); err != nil {
			out.Fallback = job.Source
			o.finish(ctx, m, &out, asset, fmt.Errorf("delivering output: %w", err))
			return
		}
		if _, err := export.Validate(job.OutputPath); err != nil {
			out.Fallback = job.Source
			o.finish(ctx, m, &out, asset, fmt.Errorf("delivered output failed validation: %w", err))
			return
		}
		out.Export.OutputURI = job.OutputPath
		if job.WriteSidecar && len(segments) > 0 {
			if err := captions.WriteSidecar(job.OutputPath+".captions.txt", segments); err != nil {
				out.Diagnostics = append(out.Diagnostics,
					media.Diag("export", "sidecar_failed", err.Error()))
			}
		}

		if _, err := o.advance(ctx, m, evComplete); err != nil {
			o.finish(ctx, m, &out, asset, err)
			return
		}
		out.State = PhaseCompleted
		out.Output = asset.WithURI(job.OutputPath)
		out.Output.FrameRate = result.FrameRateUsed
		logger.Info().
			Str(log.FieldOutputPath, job.OutputPath).
			Int("diagnostics", len(out.Diagnostics)).
			Msg("job completed")
	}

	run()
	return out
}

// export runs the encode, retrying once at low quality. Timing covers both
// attempts; a retry is part of the same export from the caller's view.
func (o *Orchestrator) export(ctx context.Context, job Job, asset media.Asset, segments []captions.Segment, workdir string) (export.Result, error) {
	started := time.Now()
	defer func() {
		metrics.ExportDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	opts := export.Options{
		OutputPath: filepath.Join(workdir, "output.mp4"),
		TempDir:    workdir,
		Quality:    export.QualityHigh,
		OnProgress: func(percent float64) {
			if job.Progress == nil {
				return
			}
			lo := phasePercent[PhaseExporting]
			hi := phasePercent[PhaseValidating]
			job.Progress(PhaseExporting, lo+(hi-lo)*percent/100, phaseMessage[PhaseExporting])
		},
	}

	result, err := o.Exporter.Export(ctx, asset, segments, job.Watermark, opts)
	if err != nil || result.Succeeded || hasCode(result.Diagnostics, "capability_unavailable") {
		return result, err
	}

	metrics.ExportRetriesTotal.Inc()
	opts.Quality = export.QualityLow
	retry, err := o.Exporter.Export(ctx, asset, segments, job.Watermark, opts)
	retry.Diagnostics = append(result.Diagnostics, retry.Diagnostics...)
	return retry, err
}

// deliverDegraded completes a job whose final encode could not run at all.
// The most processed asset is delivered in place; intermediates are moved to
// the requested output path, an untouched source stays where it is.
func (o *Orchestrator) deliverDegraded(ctx context.Context, m *Machine[Phase, event], out *Outcome, asset media.Asset, job Job) {
	delivered := asset
	if asset.URI != job.Source.URI {
		if err := fsutil.MoveFile(asset.URI, job.OutputPath); err == nil {
			delivered = asset.WithURI(job.OutputPath)
		}
	}
	if _, err := o.advance(ctx, m, evValidate); err != nil {
		o.finish(ctx, m, out, asset, err)
		return
	}
	if _, err := o.advance(ctx, m, evComplete); err != nil {
		o.finish(ctx, m, out, asset, err)
		return
	}
	out.State = PhaseCompleted
	out.Output = delivered
}

// preserveFallback rescues the last intact intermediate out of the scratch
// directory before it is removed. The original source needs no rescue.
func (o *Orchestrator) preserveFallback(asset media.Asset, workdir string, job Job) media.Asset {
	if !strings.HasPrefix(asset.URI, workdir+string(os.PathSeparator)) {
		return asset
	}
	rescue := job.OutputPath + ".fallback.mp4"
	if err := fsutil.MoveFile(asset.URI, rescue); err != nil {
		return job.Source
	}
	return asset.WithURI(rescue)
}

// finish drives the machine to its terminal state after an error or a hard
// stage failure, distinguishing cancellation from real failure.
func (o *Orchestrator) finish(ctx context.Context, m *Machine[Phase, event], out *Outcome, asset media.Asset, err error) {
	if out.Fallback.URI == "" {
		out.Fallback = asset
	}
	if ctx.Err() != nil {
		m.Fire(context.WithoutCancel(ctx), evCancel) //nolint:errcheck
		out.State = PhaseCancelled
		out.Err = ctx.Err()
		return
	}
	m.Fire(ctx, evFail) //nolint:errcheck
	out.State = PhaseFailed
	out.Err = err
}

// advance fires a stage event, checking for cancellation first so a cancel
// between stages is observed before any new work starts.
func (o *Orchestrator) advance(ctx context.Context, m *Machine[Phase, event], ev event) (Phase, error) {
	if err := ctx.Err(); err != nil {
		return m.State(), err
	}
	return m.Fire(ctx, ev)
}

func hasCode(diags []media.Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

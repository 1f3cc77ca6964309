// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/clipveil/internal/blur"
	"github.com/ManuGH/clipveil/internal/capability"
	"github.com/ManuGH/clipveil/internal/captions"
	"github.com/ManuGH/clipveil/internal/detect"
	"github.com/ManuGH/clipveil/internal/export"
	"github.com/ManuGH/clipveil/internal/media"
	"github.com/ManuGH/clipveil/internal/voice"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDetector struct {
	regions []detect.Region
	err     error
}

func (f *fakeDetector) Detect(_ context.Context, _ media.Asset) ([]detect.Region, error) {
	return f.regions, f.err
}

// fakeStage stands in for blur and voice: it "produces" outPath by writing a
// marker file so downstream move semantics stay realistic.
type fakeStage struct {
	calls int
	diags []media.Diagnostic
	err   error
}

func (f *fakeStage) run(asset media.Asset, outPath string) (media.Asset, []media.Diagnostic, error) {
	f.calls++
	if f.err != nil {
		return asset, f.diags, f.err
	}
	if err := os.WriteFile(outPath, bytes.Repeat([]byte{0xAB}, 8192), 0o644); err != nil {
		return asset, f.diags, err
	}
	return asset.WithURI(outPath), f.diags, nil
}

type fakeBlur struct {
	fakeStage
	gotRegions []detect.Region
	gotSpec    blur.Spec
}

func (f *fakeBlur) Apply(_ context.Context, asset media.Asset, regions []detect.Region, spec blur.Spec, outPath string) (media.Asset, []media.Diagnostic, error) {
	f.gotRegions = regions
	f.gotSpec = spec
	return f.run(asset, outPath)
}

type fakeVoice struct {
	fakeStage
}

func (f *fakeVoice) Apply(_ context.Context, asset media.Asset, _ voice.Spec, outPath string) (media.Asset, []media.Diagnostic, error) {
	return f.run(asset, outPath)
}

// fakeExporter scripts one Result per attempt.
type fakeExporter struct {
	mu       sync.Mutex
	attempts []export.Result
	calls    int
	gotOpts  []export.Options
}

func (f *fakeExporter) Export(_ context.Context, asset media.Asset, _ []captions.Segment, _ *export.WatermarkSpec, opts export.Options) (export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotOpts = append(f.gotOpts, opts)
	res := f.attempts[f.calls]
	f.calls++
	if res.Succeeded {
		if err := os.WriteFile(opts.OutputPath, bytes.Repeat([]byte{0xCD}, 8192), 0o644); err != nil {
			return res, err
		}
		res.OutputURI = opts.OutputPath
	}
	if res.FrameRateUsed == 0 {
		res.FrameRateUsed = asset.FrameRate
	}
	return res, nil
}

func sourceAsset(t *testing.T) (media.Asset, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "input.mp4")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{0x11}, 8192), 0o644))
	return media.Asset{
		URI:             src,
		DurationSeconds: 10,
		FrameRate:       24,
		Width:           640,
		Height:          480,
		HasAudio:        true,
	}, dir
}

func newTestOrchestrator(t *testing.T, exp *fakeExporter) (*Orchestrator, *fakeBlur, *fakeVoice, string) {
	t.Helper()
	work := t.TempDir()
	b := &fakeBlur{}
	v := &fakeVoice{}
	o := &Orchestrator{
		Detector: &fakeDetector{regions: []detect.Region{{X: 10, Y: 10, W: 50, H: 50, Confidence: 9}}},
		Blur:     b,
		Voice:    v,
		Exporter: exp,
		WorkDir:  work,
	}
	return o, b, v, work
}

func TestRunHappyPath(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, b, v, work := newTestOrchestrator(t, exp)

	var mu sync.Mutex
	var phases []Phase
	out := o.Run(context.Background(), Job{
		Source:     src,
		Blur:       &blur.Spec{Intensity: 20, Mode: blur.SelectiveRegions},
		Pitch:      &voice.Spec{Effect: voice.EffectDeep},
		Captions:   []captions.Segment{{Text: "hello", Start: 0, End: 1, Confidence: 0.9}},
		OutputPath: filepath.Join(dir, "out.mp4"),
		Progress: func(p Phase, _ float64, _ string) {
			mu.Lock()
			phases = append(phases, p)
			mu.Unlock()
		},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, PhaseCompleted, out.State)
	assert.Equal(t, filepath.Join(dir, "out.mp4"), out.Output.URI)
	assert.FileExists(t, out.Output.URI)
	assert.Equal(t, 24.0, out.Output.FrameRate)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, v.calls)
	assert.Len(t, b.gotRegions, 1)

	// phases arrive in graph order
	assert.Equal(t, []Phase{
		PhaseDetectingFaces, PhaseBlurring, PhaseShiftingPitch,
		PhaseCompositing, PhaseExporting, PhaseValidating, PhaseCompleted,
	}, phases)

	// scratch directory is gone
	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunThreeFaces24fps(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, b, _, _ := newTestOrchestrator(t, exp)
	o.Detector = &fakeDetector{regions: []detect.Region{
		{X: 40, Y: 60, W: 80, H: 80, Confidence: 12},
		{X: 240, Y: 50, W: 70, H: 90, Confidence: 8},
		{X: 480, Y: 200, W: 60, H: 60, Confidence: 6},
	}}

	out := o.Run(context.Background(), Job{
		Source:     src,
		Blur:       &blur.Spec{Intensity: 30, Mode: blur.SelectiveRegions},
		OutputPath: filepath.Join(dir, "out.mp4"),
	})

	require.Equal(t, PhaseCompleted, out.State)
	assert.Len(t, b.gotRegions, 3)
	assert.Equal(t, blur.SelectiveRegions, b.gotSpec.Mode)
	// the source's 24 fps grid survives to the delivered asset
	assert.Equal(t, 24.0, out.Output.FrameRate)
}

func TestRunAssignsJobID(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, _, _, _ := newTestOrchestrator(t, exp)

	out := o.Run(context.Background(), Job{Source: src, OutputPath: filepath.Join(dir, "out.mp4")})
	assert.NotEmpty(t, out.JobID)
	assert.Equal(t, PhaseCompleted, out.State)
}

func TestRunEncoderFailureRetriesLowQualityThenFails(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{
		{Diagnostics: []media.Diagnostic{media.Diag("export", "encoder_error", "boom")}},
		{Diagnostics: []media.Diagnostic{media.Diag("export", "encoder_error", "boom again")}},
	}}
	o, _, _, work := newTestOrchestrator(t, exp)

	out := o.Run(context.Background(), Job{
		Source:     src,
		Pitch:      &voice.Spec{Effect: voice.EffectLight},
		OutputPath: filepath.Join(dir, "out.mp4"),
	})

	assert.Equal(t, PhaseFailed, out.State)
	assert.ErrorIs(t, out.Err, ErrExportFailed)
	require.Equal(t, 2, exp.calls)
	assert.Equal(t, export.QualityHigh, exp.gotOpts[0].Quality)
	assert.Equal(t, export.QualityLow, exp.gotOpts[1].Quality)

	// the repitched intermediate was rescued before scratch cleanup
	assert.Equal(t, filepath.Join(dir, "out.mp4")+".fallback.mp4", out.Fallback.URI)
	assert.FileExists(t, out.Fallback.URI)
	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunEncoderRetrySucceeds(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{
		{Diagnostics: []media.Diagnostic{media.Diag("export", "encoder_error", "boom")}},
		{Succeeded: true},
	}}
	o, _, _, _ := newTestOrchestrator(t, exp)

	out := o.Run(context.Background(), Job{Source: src, OutputPath: filepath.Join(dir, "out.mp4")})

	assert.Equal(t, PhaseCompleted, out.State)
	assert.Equal(t, 2, exp.calls)
	// the first attempt's diagnostic survives into the outcome
	assert.True(t, hasCode(out.Diagnostics, "encoder_error"))
}

func TestRunNoEncoderCompletesWithSource(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{
		{Diagnostics: []media.Diagnostic{media.Diag("export", "capability_unavailable", "ffmpeg not found")}},
	}}
	o, _, _, _ := newTestOrchestrator(t, exp)

	out := o.Run(context.Background(), Job{Source: src, OutputPath: filepath.Join(dir, "out.mp4")})

	assert.Equal(t, PhaseCompleted, out.State)
	assert.NoError(t, out.Err)
	// no retry when the tool is missing outright
	assert.Equal(t, 1, exp.calls)
	// nothing was processed, so the source is delivered in place
	assert.Equal(t, src.URI, out.Output.URI)
	assert.True(t, hasCode(out.Diagnostics, "capability_unavailable"))
}

func TestRunDetectorErrorWidensBlur(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, b, _, _ := newTestOrchestrator(t, exp)
	o.Detector = &fakeDetector{err: errors.New("cascade corrupt")}

	spec := &blur.Spec{Intensity: 30, Mode: blur.SelectiveRegions}
	out := o.Run(context.Background(), Job{
		Source:     src,
		Blur:       spec,
		OutputPath: filepath.Join(dir, "out.mp4"),
	})

	assert.Equal(t, PhaseCompleted, out.State)
	assert.True(t, hasCode(out.Diagnostics, "detector_error"))
	assert.Equal(t, blur.WholeFrame, b.gotSpec.Mode)
	assert.Empty(t, b.gotRegions)
	// widening happens on a job-local copy, never on the caller's spec
	assert.Equal(t, blur.SelectiveRegions, spec.Mode)
}

func TestRunMissingCascadeWidensBlurWithoutMutatingSpec(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, b, _, _ := newTestOrchestrator(t, exp)
	// registry never probed: every capability reads as unavailable
	o.Caps = capability.NewRegistry(capability.Config{}, nil)

	spec := &blur.Spec{Intensity: 20, Mode: blur.SelectiveRegions}
	out := o.Run(context.Background(), Job{
		Source:     src,
		Blur:       spec,
		OutputPath: filepath.Join(dir, "out.mp4"),
	})

	assert.Equal(t, PhaseCompleted, out.State)
	assert.True(t, hasCode(out.Diagnostics, "capability_unavailable"))
	assert.Equal(t, blur.WholeFrame, b.gotSpec.Mode)
	assert.Equal(t, blur.SelectiveRegions, spec.Mode)
}

func TestRunCancelledLeavesNoTempFiles(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, _, _, work := newTestOrchestrator(t, exp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := o.Run(ctx, Job{Source: src, OutputPath: filepath.Join(dir, "out.mp4")})

	assert.Equal(t, PhaseCancelled, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, src.URI, out.Fallback.URI)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries, "cancelled job must not leave scratch files")
}

func TestRunWritesSidecar(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, _, _, _ := newTestOrchestrator(t, exp)

	outPath := filepath.Join(dir, "out.mp4")
	out := o.Run(context.Background(), Job{
		Source:       src,
		Captions:     []captions.Segment{{Text: "first line", Start: 0, End: 2, Confidence: 1}},
		OutputPath:   outPath,
		WriteSidecar: true,
	})

	require.Equal(t, PhaseCompleted, out.State)
	assert.FileExists(t, outPath+".captions.txt")
}

func TestManagerLimitsConcurrency(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{
		{Succeeded: true}, {Succeeded: true}, {Succeeded: true},
	}}
	o, _, _, _ := newTestOrchestrator(t, exp)
	mgr := NewManager(o, 1)

	var chans []<-chan Outcome
	for i := 0; i < 3; i++ {
		chans = append(chans, mgr.Submit(context.Background(), Job{
			Source:     src,
			OutputPath: filepath.Join(dir, "out"+string(rune('a'+i))+".mp4"),
		}))
	}
	for _, ch := range chans {
		out := <-ch
		assert.Equal(t, PhaseCompleted, out.State)
	}
	mgr.Wait()
}

func TestManagerCancelBeforeAdmission(t *testing.T) {
	src, dir := sourceAsset(t)
	exp := &fakeExporter{attempts: []export.Result{{Succeeded: true}}}
	o, _, _, _ := newTestOrchestrator(t, exp)
	mgr := NewManager(o, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := <-mgr.Submit(ctx, Job{ID: "early", Source: src, OutputPath: filepath.Join(dir, "out.mp4")})
	assert.Equal(t, PhaseCancelled, out.State)
	assert.Equal(t, "early", out.JobID)
	mgr.Wait()
}

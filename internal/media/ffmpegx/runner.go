// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ffmpegx executes ffmpeg to completion for the pipeline stages.
// Argument construction lives with the stage owning the transform; this
// package owns process lifecycle, stderr capture and progress supervision.
package ffmpegx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/clipveil/internal/log"
	"github.com/ManuGH/clipveil/internal/procgroup"
)

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clipveil_ffmpeg_runs_total",
	Help: "Total number of ffmpeg runs by result",
}, []string{"result"})

// ErrStalled is returned when ffmpeg stopped making forward progress within
// the configured timeouts.
var ErrStalled = errors.New("ffmpeg stalled: no forward progress")

// Runner executes a single ffmpeg invocation to completion.
type Runner struct {
	BinPath      string
	KillGrace    time.Duration // SIGTERM -> SIGKILL grace on cancellation
	StartTimeout time.Duration // max wait for first progress heartbeat
	StallTimeout time.Duration // max gap between heartbeats once running
}

// NewRunner creates a Runner with defaults suitable for short clip encodes.
func NewRunner(binPath string) *Runner {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &Runner{
		BinPath:      binPath,
		KillGrace:    5 * time.Second,
		StartTimeout: 30 * time.Second,
		StallTimeout: 60 * time.Second,
	}
}

// RunOpts carries one invocation's arguments and progress wiring.
type RunOpts struct {
	Args            []string              // input/filter/output args, no global flags
	DurationSeconds float64               // expected output duration, for percent
	OnProgress      func(percent float64) // optional, called from the progress goroutine
}

// RunResult reports how an invocation ended.
type RunResult struct {
	ExitCode   int
	StderrTail []string
}

// Run executes ffmpeg and blocks until it exits, the context is cancelled or
// the stall supervisor gives up. On cancellation or stall the whole process
// group is reaped before returning.
func (r *Runner) Run(ctx context.Context, opts RunOpts) (RunResult, error) {
	logger := log.WithComponentFromContext(ctx, "ffmpeg")

	args := append([]string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error", // stderr is captured into the ring
		"-nostats",
		"-progress", "pipe:1",
	}, opts.Args...)

	ring := NewLineRing(256)
	tracker := NewTracker()

	cmd := exec.CommandContext(ctx, r.BinPath, args...) // #nosec G204
	procgroup.Set(cmd)
	// exec.CommandContext's own kill only hits the leader; the supervisor
	// below reaps the group instead.
	cmd.Cancel = func() error { return nil }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to capture ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to capture ffmpeg stderr: %w", err)
	}

	var ioWg sync.WaitGroup
	ioWg.Add(2)
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			tracker.ParseLine(scanner.Text())
			if opts.OnProgress != nil {
				opts.OnProgress(tracker.Percent(opts.DurationSeconds))
			}
		}
	}()
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Bytes()
			_, _ = ring.Write(line)
			_, _ = ring.Write([]byte("\n"))
		}
	}()

	logger.Debug().Str("command", cmd.String()).Msg("starting ffmpeg process")
	start := time.Now()
	if err := cmd.Start(); err != nil {
		runsTotal.WithLabelValues("start_failed").Inc()
		return RunResult{ExitCode: -1}, fmt.Errorf("ffmpeg start failed: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		ioWg.Wait()
		done <- cmd.Wait()
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var waitErr error
	result := "ok"

supervise:
	for {
		select {
		case waitErr = <-done:
			break supervise
		case <-ctx.Done():
			result = "cancelled"
			r.reap(cmd)
			<-done
			// Cancellation wins over the kill-induced exit error.
			waitErr = ctx.Err()
			break supervise
		case <-ticker.C:
			if tracker.Stalled(r.StartTimeout, r.StallTimeout) {
				result = "stalled"
				r.reap(cmd)
				<-done
				waitErr = ErrStalled
				break supervise
			}
		}
	}

	code := 0
	if waitErr != nil {
		code = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		if result == "ok" {
			result = "error"
		}
	}

	tail := ring.LastN(20)
	if waitErr != nil && len(tail) > 0 {
		logger.Error().
			Int("exit_code", code).
			Strs("stderr", tail).
			Dur("uptime", time.Since(start)).
			Msg("ffmpeg run failed")
	}

	runsTotal.WithLabelValues(result).Inc()
	return RunResult{ExitCode: code, StderrTail: tail}, waitErr
}

// reap terminates the process group: SIGTERM, grace, SIGKILL.
func (r *Runner) reap(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	grace := r.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	_ = procgroup.Kill(cmd, syscall.SIGTERM)
	_ = procgroup.KillGroup(cmd.Process.Pid, grace, grace)
}

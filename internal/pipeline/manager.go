// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/clipveil/internal/log"
)

// DefaultConcurrency bounds simultaneously running jobs. Two ffmpeg encodes
// saturate a typical machine; everything beyond that just thrashes.
const DefaultConcurrency = 2

// Manager admits jobs into the orchestrator under a concurrency bound.
// Admission is FIFO per semaphore semantics; a submitted job waits for a
// slot rather than being rejected.
type Manager struct {
	orch *Orchestrator
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// NewManager wraps orch with a limit of maxConcurrent running jobs.
// A non-positive limit falls back to DefaultConcurrency.
func NewManager(orch *Orchestrator, maxConcurrent int64) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConcurrency
	}
	return &Manager{
		orch: orch,
		sem:  semaphore.NewWeighted(maxConcurrent),
	}
}

// Submit queues a job and returns a channel that yields its single Outcome.
// Cancelling ctx before the job acquires a slot yields a cancelled Outcome
// without any work having started.
func (m *Manager) Submit(ctx context.Context, job Job) <-chan Outcome {
	ch := make(chan Outcome, 1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(ch)

		if err := m.sem.Acquire(ctx, 1); err != nil {
			logger := log.WithComponent("pipeline")
			logger.Warn().
				Str(log.FieldJobID, job.ID).
				Err(err).
				Msg("job cancelled before admission")
			ch <- Outcome{JobID: job.ID, State: PhaseCancelled, Err: err, Fallback: job.Source}
			return
		}
		defer m.sem.Release(1)

		ch <- m.orch.Run(ctx, job)
	}()
	return ch
}

// Wait blocks until all submitted jobs have produced their outcome.
func (m *Manager) Wait() {
	m.wg.Wait()
}

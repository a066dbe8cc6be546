// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/types"
)

// Worker runs a fixed pool of goroutines that dequeue uploads and hand them to
// a Handler one at a time.
type Worker struct {
	id          string
	queue       Queue
	handler     Handler
	concurrency int
	stopTimeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int32

	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	ID          string
	Queue       Queue
	Handler     Handler
	Concurrency int
	// StopTimeout bounds how long Stop waits for in-flight commits. Zero
	// waits indefinitely.
	StopTimeout time.Duration
}

// NewWorker creates a new worker pool.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ID == "" {
		cfg.ID = "commit"
	}

	return &Worker{
		id:          cfg.ID,
		queue:       cfg.Queue,
		handler:     cfg.Handler,
		concurrency: cfg.Concurrency,
		stopTimeout: cfg.StopTimeout,
	}
}

// Start launches the worker goroutines. Calling it more than once has no
// effect.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, w.cancel = context.WithCancel(ctx)

		logger.Info().
			Str("worker_id", w.id).
			Int("concurrency", w.concurrency).
			Int("queue_capacity", w.queue.Cap()).
			Msg("taskqueue: worker starting")

		for i := 0; i < w.concurrency; i++ {
			w.wg.Add(1)
			go w.work(ctx, i)
		}
	})
}

// Stop signals every worker to exit after its current upload and waits for
// them. Uploads still in the queue are left there. Returns ErrStopTimeout if
// the workers did not finish within the configured timeout.
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() {
		if w.cancel == nil {
			return
		}
		w.cancel()

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		if w.stopTimeout <= 0 {
			<-done
		} else {
			timer := time.NewTimer(w.stopTimeout)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				w.stopErr = ErrStopTimeout
				logger.Warn().
					Str("worker_id", w.id).
					Int32("active", w.active.Load()).
					Dur("timeout", w.stopTimeout).
					Msg("taskqueue: workers still busy at stop timeout")
				return
			}
		}
		logger.Info().Str("worker_id", w.id).Msg("taskqueue: worker stopped")
	})
	return w.stopErr
}

// Active returns the number of running worker goroutines.
func (w *Worker) Active() int {
	return int(w.active.Load())
}

func (w *Worker) work(ctx context.Context, n int) {
	defer w.wg.Done()

	w.active.Add(1)
	WorkerActive.Inc()
	defer func() {
		w.active.Add(-1)
		WorkerActive.Dec()
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		u, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
				return
			}
			DequeueErrors.Inc()
			logger.Error().Err(err).Str("worker_id", w.id).Int("slot", n).Msg("taskqueue: dequeue failed")
			continue
		}

		w.process(ctx, u)
	}
}

func (w *Worker) process(ctx context.Context, u *types.Upload) {
	// Once dequeued, a commit runs to completion even if shutdown starts.
	hctx := context.WithoutCancel(ctx)

	start := time.Now()
	err := w.handler.Handle(hctx, u)
	CommitDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		UploadsProcessedTotal.WithLabelValues(statusFailed).Inc()
		logger.Warn().
			Err(err).
			Str("worker_id", w.id).
			Str("video_id", u.ID).
			Str("filename", u.Filename()).
			Msg("taskqueue: commit failed")
		return
	}

	UploadsProcessedTotal.WithLabelValues(statusCommitted).Inc()
	logger.Debug().
		Str("worker_id", w.id).
		Str("video_id", u.ID).
		Dur("duration", time.Since(start)).
		Msg("taskqueue: commit completed")
}

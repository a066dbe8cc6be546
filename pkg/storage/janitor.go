// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapingest/pkg/logger"
	"github.com/LeeDigitalWorks/zapingest/pkg/utils"
)

const (
	// DefaultGracePeriod protects temp files of uploads still being streamed.
	DefaultGracePeriod = time.Hour

	DefaultSweepInterval = 10 * time.Minute
	sweepJitter          = 0.1
)

// JanitorConfig holds configuration for Janitor
type JanitorConfig struct {
	Manager     *Manager
	Interval    time.Duration // 0 means DefaultSweepInterval
	GracePeriod time.Duration // 0 means DefaultGracePeriod
	// OnLowSpace is called after a pass that found free space below the
	// configured minimum. Optional.
	OnLowSpace func(Info)
}

// Janitor periodically removes orphaned temp files and refreshes capacity
// gauges. It never runs on the ingest or commit path.
type Janitor struct {
	manager     *Manager
	interval    time.Duration
	gracePeriod time.Duration
	onLowSpace  func(Info)

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

func NewJanitor(cfg JanitorConfig) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &Janitor{
		manager:     cfg.Manager,
		interval:    cfg.Interval,
		gracePeriod: cfg.GracePeriod,
		onLowSpace:  cfg.OnLowSpace,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine. Call at most once.
func (j *Janitor) Start() {
	j.started = true
	go func() {
		defer close(j.doneCh)
		for {
			timer := time.NewTimer(utils.Jitter(j.interval, sweepJitter))
			select {
			case <-timer.C:
				j.RunOnce()
			case <-j.stopCh:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for a running pass to finish.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
		if j.started {
			<-j.doneCh
		}
	})
}

// RunOnce performs a single sweep and capacity refresh. It returns the number
// of temp files removed.
func (j *Janitor) RunOnce() int {
	removed := j.manager.SweepTempFiles(j.gracePeriod)

	info := j.manager.Info()
	if info.Low {
		logger.Warn().
			Uint64("free_bytes", info.FreeBytes).
			Float64("used_percent", info.UsedPercent).
			Str("threshold", info.Threshold).
			Msg("storage: free space below minimum")
		if j.onLowSpace != nil {
			j.onLowSpace(info)
		}
	}
	return removed
}

// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"github.com/LeeDigitalWorks/zapingest/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	rejectFull   = "full"
	rejectClosed = "closed"

	statusCommitted = "committed"
	statusFailed    = "failed"
)

var (
	// UploadsProcessedTotal tracks commits by outcome
	UploadsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "taskqueue",
		Name:      "uploads_processed_total",
		Help:      "Total number of uploads processed by workers",
	}, []string{"status"}) // status: "committed", "failed"

	// CommitDuration tracks time spent in the commit handler
	CommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zapingest",
		Subsystem: "taskqueue",
		Name:      "upload_commit_duration_seconds",
		Help:      "Time spent committing an upload",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	UploadsEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "taskqueue",
		Name:      "uploads_enqueued_total",
		Help:      "Total number of uploads admitted to the queue",
	})

	// UploadsRejectedTotal counts enqueue attempts that found no room
	UploadsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "taskqueue",
		Name:      "uploads_rejected_total",
		Help:      "Total number of uploads rejected by the queue",
	}, []string{"reason"}) // reason: "full", "closed"

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapingest",
		Subsystem: "taskqueue",
		Name:      "queue_depth",
		Help:      "Current number of uploads waiting for a worker",
	})

	// WorkerActive tracks number of active workers
	WorkerActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapingest",
		Subsystem: "taskqueue",
		Name:      "workers_active",
		Help:      "Number of active worker goroutines",
	})

	// DequeueErrors tracks dequeue operation errors
	DequeueErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "taskqueue",
		Name:      "dequeue_errors_total",
		Help:      "Total number of dequeue errors",
	})
)

func init() {
	debug.Registry().MustRegister(
		UploadsProcessedTotal,
		CommitDuration,
		UploadsEnqueuedTotal,
		UploadsRejectedTotal,
		QueueDepth,
		WorkerActive,
		DequeueErrors,
	)
}

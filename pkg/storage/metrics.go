// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"github.com/LeeDigitalWorks/zapingest/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TempFilesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "storage",
		Name:      "temp_files_swept_total",
		Help:      "Total number of orphaned temp files removed",
	})

	SweepRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "storage",
		Name:      "sweep_runs_total",
		Help:      "Total number of temp file sweeps",
	})

	// StorageBytes tracks filesystem capacity of the storage root
	StorageBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "zapingest",
		Subsystem: "storage",
		Name:      "bytes",
		Help:      "Filesystem capacity of the storage root",
	}, []string{"kind"}) // kind: "total", "used", "free"
)

func init() {
	debug.Registry().MustRegister(
		TempFilesSweptTotal,
		SweepRunsTotal,
		StorageBytes,
	)
}

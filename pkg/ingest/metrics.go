// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"github.com/LeeDigitalWorks/zapingest/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "ingest",
		Name:      "connections_total",
		Help:      "Total number of accepted producer connections",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapingest",
		Subsystem: "ingest",
		Name:      "connections_active",
		Help:      "Number of producer connections being handled",
	})

	// UploadsTotal counts connections by terminal outcome
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "ingest",
		Name:      "uploads_total",
		Help:      "Total number of uploads by outcome",
	}, []string{"outcome"}) // outcome: response code, e.g. "accepted", "queue_full"

	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "ingest",
		Name:      "upload_bytes_total",
		Help:      "Total payload bytes received",
	})

	UploadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapingest",
		Subsystem: "ingest",
		Name:      "upload_duration_seconds",
		Help:      "Time from accept to final response",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"outcome"})
)

func init() {
	debug.Registry().MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		UploadsTotal,
		UploadBytesTotal,
		UploadDuration,
	)
}

// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"github.com/LeeDigitalWorks/zapingest/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsPublishedTotal tracks events delivered by publisher
	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total number of video events delivered",
	}, []string{"publisher"}) // publisher: "redis", "kafka"

	// EventsErrorsTotal tracks delivery errors by publisher
	EventsErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapingest",
		Subsystem: "events",
		Name:      "errors_total",
		Help:      "Total number of video event delivery errors",
	}, []string{"publisher"})

	// EventsDeliveryDuration tracks delivery latency by publisher
	EventsDeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapingest",
		Subsystem: "events",
		Name:      "delivery_duration_seconds",
		Help:      "Time spent delivering video events",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"publisher"})
)

func init() {
	debug.Registry().MustRegister(
		EventsPublishedTotal,
		EventsErrorsTotal,
		EventsDeliveryDuration,
	)
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metrics exports the dispatcher counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the content of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics counts request/response cycles. A nil *Metrics records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec // labels: outcome
	Cycle    prometheus.Histogram
}

// New registers and returns the bridge metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dhtbridge_requests_total",
			Help: "Handled request cycles by outcome.",
		}, []string{"outcome"}),
		Cycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dhtbridge_cycle_seconds",
			Help:    "Duration of a matched request cycle, pacing excluded.",
			Buckets: []float64{0.5, 1, 2, 4, 6, 8, 12, 20},
		}),
	}
	reg.MustRegister(m.Requests, m.Cycle)
	return m
}

// Observe records one cycle ending with outcome. A zero d is not added to
// the duration histogram.
func (m *Metrics) Observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.Cycle.Observe(d.Seconds())
	}
}

// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	signed     prometheus.Counter
	applied    *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	opaque     prometheus.Counter
	conflicts  prometheus.Counter
	exhausted  prometheus.Counter
	duplicates prometheus.Counter
	dispatch   prometheus.Histogram
}

// NewMetrics registers the collectors with registerer. Registering
// twice with the same registerer panics, as promauto does.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		signed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "peerstate",
			Name:      "actions_signed_total",
			Help:      "Actions signed by this peer.",
		}),
		applied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerstate",
			Name:      "actions_applied_total",
			Help:      "Actions applied by the reducer, by operation.",
		}, []string{"op"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerstate",
			Name:      "actions_rejected_total",
			Help:      "Actions rejected by the reducer, by reason.",
		}, []string{"reason"}),
		opaque: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "peerstate",
			Name:      "values_opaque_total",
			Help:      "Sealed values stored without decryption.",
		}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "peerstate",
			Subsystem: "dispatch",
			Name:      "conflicts_total",
			Help:      "Commit attempts lost to a concurrent commit.",
		}),
		exhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "peerstate",
			Subsystem: "dispatch",
			Name:      "exhausted_total",
			Help:      "Dispatches that ran out of attempts.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "peerstate",
			Subsystem: "dispatch",
			Name:      "duplicates_total",
			Help:      "Dispatches suppressed as already applied.",
		}),
		dispatch: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "peerstate",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatch latency including retries.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) observeSigned() {
	if m != nil {
		m.signed.Inc()
	}
}

func (m *Metrics) observeApplied(op string) {
	if m != nil {
		m.applied.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) observeRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observeOpaque() {
	if m != nil {
		m.opaque.Inc()
	}
}

func (m *Metrics) observeConflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *Metrics) observeExhausted() {
	if m != nil {
		m.exhausted.Inc()
	}
}

func (m *Metrics) observeDuplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) observeDispatch(elapsed time.Duration) {
	if m != nil {
		m.dispatch.Observe(elapsed.Seconds())
	}
}

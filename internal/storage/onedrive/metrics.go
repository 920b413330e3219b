// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

package onedrive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts Graph operations by outcome.
type Metrics struct {
	ops *prometheus.CounterVec
}

// NewMetrics registers the counters with reg. A nil reg keeps the counters
// unregistered, which tests use to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	opts := prometheus.CounterOpts{
		Namespace: "fieldaudit",
		Subsystem: "onedrive",
		Name:      "operations_total",
		Help:      "OneDrive operations by type and result.",
	}
	if reg == nil {
		return &Metrics{ops: prometheus.NewCounterVec(opts, []string{"op", "result"})}
	}
	return &Metrics{ops: promauto.With(reg).NewCounterVec(opts, []string{"op", "result"})}
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
}

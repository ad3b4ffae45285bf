// Package metrics holds the Prometheus collectors for the request-gating
// layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks authentication, throttling and error outcomes.
type Metrics struct {
	// AuthOutcomes counts gate evaluations by gate mode and outcome
	// ("authenticated", "anonymous", "invalid", "expired", "rejected").
	AuthOutcomes *prometheus.CounterVec

	// RateLimitDecisions counts limiter results by key type and result.
	RateLimitDecisions *prometheus.CounterVec

	// ErrorsTotal counts classified error responses by code and status.
	ErrorsTotal *prometheus.CounterVec

	// HashDuration tracks bcrypt latency by operation.
	HashDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg.
// Panics if registration fails (expected during initialization only).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socialgate_auth_outcomes_total",
				Help: "Authentication gate outcomes by gate mode",
			},
			[]string{"gate", "outcome"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socialgate_rate_limit_decisions_total",
				Help: "Rate limiter decisions by key type and result",
			},
			[]string{"key_type", "result"}, // "allowed", "rejected", "store_error"
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socialgate_errors_total",
				Help: "Classified error responses by code and status",
			},
			[]string{"code", "status"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "socialgate_password_hash_duration_seconds",
				Help:    "Password hash and verify latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(m.AuthOutcomes, m.RateLimitDecisions, m.ErrorsTotal, m.HashDuration)
	return m
}

func (m *Metrics) RecordAuth(gate, outcome string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(gate, outcome).Inc()
}

func (m *Metrics) RecordRateLimit(keyType, result string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(keyType, result).Inc()
}

func (m *Metrics) RecordError(code string, status int) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(code, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.HashDuration.WithLabelValues(op).Observe(d.Seconds())
}

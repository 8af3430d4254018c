package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times store requests. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds the client collectors and registers them on reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epiconsole",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Store requests issued by the entity client.",
		}, []string{"collection", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epiconsole",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Latency of store requests issued by the entity client.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "op"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) observe(collection, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(collection, op, outcome).Inc()
	m.duration.WithLabelValues(collection, op).Observe(d.Seconds())
}

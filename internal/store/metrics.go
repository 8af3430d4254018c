package store

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type serverMetrics struct {
	requests *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epiconsole",
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Requests served by the entity store.",
		}, []string{"collection", "method", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests)
	}
	return m
}

func (m *serverMetrics) observe(collection, method string, code int) {
	m.requests.WithLabelValues(collection, method, strconv.Itoa(code)).Inc()
}

// statusRecorder captures the response code for metrics and logs.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeUpstream  = "upstream_error"
	OutcomeTransport = "transport_error"
)

// Metrics provides observability for gateway calls. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Calls by operation and outcome
	Requests *prometheus.CounterVec

	// Round-trip latency of calls that reached the network
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the gateway metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zatca_gateway_requests_total",
			Help: "Total gateway calls by operation and outcome",
		}, []string{"operation", "outcome"}),

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zatca_gateway_request_duration_seconds",
			Help:    "Duration of gateway HTTP round trips by operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
	}
}

// IncrementOutcome records the result of one call.
func (m *Metrics) IncrementOutcome(operation, outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(operation, outcome).Inc()
	}
}

// ObserveDuration records the time spent on the network.
func (m *Metrics) ObserveDuration(operation string, d time.Duration) {
	if m != nil {
		m.Duration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

package dispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "dispatch_total",
			Help:      "Component handler calls by component and status",
		}, []string{"component", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mirror",
			Name:      "dispatch_duration_seconds",
			Help:      "Component handler call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
	}
}

func (m *metrics) observe(id string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(id, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(id).Observe(elapsed.Seconds())
}

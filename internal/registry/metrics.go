package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	components prometheus.Gauge
	loads      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		components: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mirror",
			Subsystem: "registry",
			Name:      "components",
			Help:      "Number of components currently loaded",
		}),
		loads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mirror",
			Subsystem: "registry",
			Name:      "loads_total",
			Help:      "Total number of component discovery passes",
		}),
	}
}

func (m *metrics) setComponents(n int) {
	if m == nil {
		return
	}
	m.components.Set(float64(n))
}

func (m *metrics) incLoads() {
	if m == nil {
		return
	}
	m.loads.Inc()
}

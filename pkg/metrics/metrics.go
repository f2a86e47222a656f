package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all notification pipeline metrics
type Metrics struct {
	// Realtime transport metrics
	EventsReceived    *prometheus.CounterVec
	EventsDuplicate   prometheus.Counter
	ReconnectAttempts prometheus.Counter
	ConnectionState   prometheus.Gauge

	// REST client metrics
	RequestsTotal *prometheus.CounterVec

	// Toast metrics
	ToastsActive prometheus.Gauge
}

// New creates and registers all pipeline metrics on its own registry so
// multiple instances can coexist in tests.
func New(namespace string) *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_received_total",
			Help:      "Total number of realtime notification events received",
		}, []string{"kind"}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_duplicate_total",
			Help:      "Total number of realtime events dropped as duplicates",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_reconnect_attempts_total",
			Help:      "Total number of reconnection attempts after a transport drop",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connected",
			Help:      "1 while the realtime connection is established, else 0",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rest_requests_total",
			Help:      "Total number of REST requests by operation and outcome",
		}, []string{"operation", "status"}),
		ToastsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "toasts_active",
			Help:      "Current number of visible alert toasts",
		}),
	}
	return m
}

// Register registers every metric with the given registerer. Separate from
// New so tests can skip registration entirely.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.EventsReceived,
		m.EventsDuplicate,
		m.ReconnectAttempts,
		m.ConnectionState,
		m.RequestsTotal,
		m.ToastsActive,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

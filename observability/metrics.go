package observability

import (
	"hobby-relay/contract"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hobby_relay"

// Metrics holds the relay counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	persisted        prometheus.Counter
	persistFailures  prometheus.Counter
	delivered        prometheus.Counter
	deliveryFailures prometheus.Counter
	indexDropped     prometheus.Counter
	rejected         *prometheus.CounterVec
	connections      prometheus.Counter
	queueLength      *prometheus.GaugeVec
	queueCapacity    *prometheus.GaugeVec
}

// NewMetrics registers the relay collectors on reg. Room and session gauges
// are read from the registry at scrape time, when one is given.
func NewMetrics(reg prometheus.Registerer, registry contract.IRegistry) *Metrics {
	m := &Metrics{
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_persisted_total",
			Help: "Messages appended to the message log.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_persist_failures_total",
			Help: "Messages broadcast without being persisted.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Events queued to a session.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_failures_total",
			Help: "Events dropped for a slow or closed session.",
		}),
		indexDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "search_index_dropped_total",
			Help: "Messages not indexed because the indexer queue was full.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejections_total",
			Help: "Client events rejected before persistence, by reason.",
		}, []string{"reason"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_total",
			Help: "Accepted WebSocket connections.",
		}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_length",
			Help: "Commands waiting in a dispatcher queue.",
		}, []string{"queue"}),
		queueCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_capacity",
			Help: "Size of a dispatcher queue.",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		m.persisted, m.persistFailures, m.delivered, m.deliveryFailures,
		m.indexDropped, m.rejected, m.connections, m.queueLength, m.queueCapacity,
	)
	if registry != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "rooms",
				Help: "Rooms with at least one member.",
			}, func() float64 { return float64(registry.Rooms()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "sessions",
				Help: "Sessions attached to a room.",
			}, func() float64 { return float64(registry.Sessions()) }),
		)
	}
	return m
}

func (m *Metrics) Persisted() {
	if m != nil {
		m.persisted.Inc()
	}
}

func (m *Metrics) PersistFailed() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

func (m *Metrics) Delivered() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.deliveryFailures.Inc()
	}
}

func (m *Metrics) IndexDropped() {
	if m != nil {
		m.indexDropped.Inc()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Connected() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) QueueDepth(queue string, length, capacity int) {
	if m != nil {
		m.queueLength.WithLabelValues(queue).Set(float64(length))
		m.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
	}
}

package transport

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the transport's Prometheus instrumentation. Each Transport
// registers its own collectors so that tests constructing multiple
// Transports don't collide on the default registry.
type metrics struct {
	registry             *prometheus.Registry
	queueDepth           prometheus.Gauge
	retriesTotal         *prometheus.CounterVec
	callbackExpiredTotal prometheus.Counter
	roundTrip            *prometheus.HistogramVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ramses",
			Subsystem: "transport",
			Name:      "queue_depth",
			Help:      "Number of commands currently queued for transmission.",
		}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ramses",
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Number of retransmissions, by message code.",
		}, []string{"code"}),
		callbackExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramses",
			Subsystem: "transport",
			Name:      "callback_expired_total",
			Help:      "Number of callbacks that expired without a matching reply.",
		}),
		roundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ramses",
			Subsystem: "transport",
			Name:      "round_trip_seconds",
			Help:      "Command round-trip latency, by message code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code"}),
	}
	reg.MustRegister(m.queueDepth, m.retriesTotal, m.callbackExpiredTotal, m.roundTrip)
	return m
}

// Registry exposes the Transport's Prometheus registry so the gateway's
// chi-based introspection server (SPEC_FULL.md's Domain Stack) can mount it
// at /metrics.
func (t *Transport) Registry() *prometheus.Registry {
	return t.metrics.registry
}

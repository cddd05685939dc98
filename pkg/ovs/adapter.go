package ovs

import "github.com/prometheus/client_golang/prometheus"

var (
	ovsClientRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ovs_client_request_latency_milliseconds",
			Help:    "Latency of ovs-vsctl and ovs-ofctl requests",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"db", "method", "code"},
	)

	ovsdbPortEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ofagent_ovsdb_interface_events_total",
			Help: "Interface row events received from ovsdb",
		},
		[]string{"reason"},
	)
)

func init() {
	registerOvsClientMetrics()
}

func registerOvsClientMetrics() {
	prometheus.MustRegister(ovsClientRequestLatency)
	prometheus.MustRegister(ovsdbPortEvents)
}

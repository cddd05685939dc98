package agent

import "github.com/prometheus/client_golang/prometheus"

var (
	loopIterationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ofagent_loop_iteration_latency_seconds",
			Help:    "The latency seconds of a daemon loop iteration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		})

	portChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ofagent_port_changes_total",
			Help: "Number of processed port changes",
		},
		[]string{"kind"},
	)

	resyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ofagent_resync_total",
			Help: "Number of times the agent went out of sync with the control plane",
		},
		[]string{"reason"},
	)

	localVlans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ofagent_local_vlans",
			Help: "Number of allocated local vlans",
		})

	fdbEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ofagent_fdb_events_total",
			Help: "Number of handled fdb notifications",
		},
		[]string{"op"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(loopIterationLatency)
	prometheus.MustRegister(portChanges)
	prometheus.MustRegister(resyncTotal)
	prometheus.MustRegister(localVlans)
	prometheus.MustRegister(fdbEvents)
}

package util

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

const klogMetricsPeriod = 5 * time.Second

var (
	klogLinesGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ofagent_klog_lines_total",
		Help: "Total number of klog messages.",
	}, []string{"level"})
	klogBytesGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ofagent_klog_bytes_total",
		Help: "Total size of klog messages.",
	}, []string{"level"})
)

// InitKlogMetrics exports the klog statistics until the context is done
func InitKlogMetrics(ctx context.Context) {
	prometheus.MustRegister(klogLinesGaugeVec, klogBytesGaugeVec)
	go wait.UntilWithContext(ctx, func(context.Context) { fetchKlogMetrics() }, klogMetricsPeriod)
}

func fetchKlogMetrics() {
	levels := []struct {
		name  string
		stats *klog.OutputStats
	}{
		{"INFO", &klog.Stats.Info},
		{"WARN", &klog.Stats.Warning},
		{"ERROR", &klog.Stats.Error},
	}
	for _, level := range levels {
		klogLinesGaugeVec.WithLabelValues(level.name).Set(float64(level.stats.Lines()))
		klogBytesGaugeVec.WithLabelValues(level.name).Set(float64(level.stats.Bytes()))
	}
}

package jit

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics holds the metrics for one Cache.
type cacheMetrics struct {
	entries        prometheus.Gauge
	requests       *prometheus.CounterVec
	compilesActive prometheus.Gauge
	compileDur     *prometheus.HistogramVec
	compileErrors  prometheus.Counter
	asyncDeclined  prometheus.Counter
	megamorphic    prometheus.Gauge
}

func newCacheMetrics() *cacheMetrics {
	const (
		namespace = "jit"
		subsystem = "cache"
	)

	return &cacheMetrics{
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entries",
			Help:      "Number of distinct signatures seen. Entries are never evicted.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Count of compile requests, by compile mode.",
		}, []string{"mode"}),
		compilesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "compiles_active",
			Help:      "Number of compilations currently running.",
		}),
		compileDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "compile_duration_seconds",
			Help:      "Histogram of compile times, by compile mode.",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 5, 7),
		}, []string{"mode"}),
		compileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "compile_errors_total",
			Help:      "Count of compilations that ended in a terminal error.",
		}),
		asyncDeclined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "async_declined_total",
			Help:      "Count of background compilations declined at the in-flight cap.",
		}),
		megamorphic: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "megamorphic_clusters",
			Help:      "Number of cluster names demoted as megamorphic.",
		}),
	}
}

// PrometheusCollectors returns every collector for registration.
func (cm *cacheMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		cm.entries,
		cm.requests,
		cm.compilesActive,
		cm.compileDur,
		cm.compileErrors,
		cm.asyncDeclined,
		cm.megamorphic,
	}
}

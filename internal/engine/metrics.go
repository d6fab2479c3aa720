package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics mirrors the shape of the teacher's walMetrics in
// metrics.go: a struct of promauto-registered counters/gauges built
// once per engine instance against the caller's registerer.
type engineMetrics struct {
	sets           prometheus.Counter
	gets           prometheus.Counter
	removes        prometheus.Counter
	bytesWritten   prometheus.Counter
	staleRecords   prometheus.Gauge
	compactions    prometheus.Counter
	compactedBytes prometheus.Counter
}

func newEngineMetrics(reg prometheus.Registerer, kind string) *engineMetrics {
	labels := prometheus.Labels{"engine": kind}
	return &engineMetrics{
		sets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_engine_sets_total",
			Help:        "kvs_engine_sets_total counts successful Set calls.",
			ConstLabels: labels,
		}),
		gets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_engine_gets_total",
			Help:        "kvs_engine_gets_total counts Get calls, hit or miss.",
			ConstLabels: labels,
		}),
		removes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_engine_removes_total",
			Help:        "kvs_engine_removes_total counts successful Remove calls.",
			ConstLabels: labels,
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_engine_bytes_written_total",
			Help:        "kvs_engine_bytes_written_total counts bytes appended to the log.",
			ConstLabels: labels,
		}),
		staleRecords: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name:        "kvs_engine_stale_records",
			Help:        "kvs_engine_stale_records is the current stale-record counter driving compaction.",
			ConstLabels: labels,
		}),
		compactions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_engine_compactions_total",
			Help:        "kvs_engine_compactions_total counts completed log compactions.",
			ConstLabels: labels,
		}),
		compactedBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "kvs_engine_compacted_bytes_total",
			Help:        "kvs_engine_compacted_bytes_total counts bytes written by compaction rewrites.",
			ConstLabels: labels,
		}),
	}
}

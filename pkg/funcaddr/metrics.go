package funcaddr

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"

	resultResolved   = "resolved"
	resultUnresolved = "unresolved"
	resultNoIR       = "no_ir_function"
)

type metrics struct {
	registeredFunctions prometheus.Gauge
	negativeEntries     prometheus.Gauge
	externalResolutions *prometheus.CounterVec
	negativeCacheHits   prometheus.Counter
	duplicateAddresses  prometheus.Counter
	perfMapDumps        *prometheus.CounterVec
	perfMapDumpDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		registeredFunctions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jitsym_registered_functions",
			Help: "Number of code addresses with a known symbol",
		}),
		negativeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jitsym_negative_cache_entries",
			Help: "Number of code addresses known to have no usable symbol",
		}),
		externalResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jitsym_external_resolutions_total",
			Help: "Total number of addresses passed to the external symbol resolver",
		}, []string{"result"}),
		negativeCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jitsym_negative_cache_hits_total",
			Help: "Total number of definition lookups answered by the negative cache",
		}),
		duplicateAddresses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jitsym_duplicate_addresses_total",
			Help: "Total number of rejected registrations of an already known address",
		}),
		perfMapDumps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jitsym_perf_map_dumps_total",
			Help: "Total number of perf map dumps",
		}, []string{"status"}),
		perfMapDumpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jitsym_perf_map_dump_duration_seconds",
			Help:    "Time spent writing the perf map and code dump",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.registeredFunctions,
			m.negativeEntries,
			m.externalResolutions,
			m.negativeCacheHits,
			m.duplicateAddresses,
			m.perfMapDumps,
			m.perfMapDumpDuration,
		)
	}
	return m
}

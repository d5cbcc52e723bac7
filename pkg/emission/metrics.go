package emission

import "github.com/prometheus/client_golang/prometheus"

const (
	resultRegistered = "registered"
	resultSkipped    = "skipped"
	resultNoAddress  = "no_address"
	resultFailed     = "failed"
)

type metrics struct {
	codeBytes prometheus.Counter
	symbols   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		codeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jitsym_emitted_code_bytes_total",
			Help: "Total size of the objects emitted by the compiler backend",
		}),
		symbols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jitsym_emitted_symbols_total",
			Help: "Total number of symbols seen in emitted objects",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.codeBytes, m.symbols)
	}
	return m
}

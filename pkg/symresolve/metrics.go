package symresolve

import (
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/jitsym/pkg/symresolve/elfsym"
)

type Metrics struct {
	ElfErrors       *prometheus.CounterVec
	ProcErrors      *prometheus.CounterVec
	UnknownMappings prometheus.Counter
	UnknownSymbols  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ElfErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jitsym_elf_errors_total",
			Help: "Total number of errors while trying to load an elf symbol table",
		}, []string{"error"}),
		ProcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jitsym_proc_errors_total",
			Help: "Total number of errors while trying to read /proc/pid/maps",
		}, []string{"error"}),
		UnknownMappings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jitsym_unknown_mappings_total",
			Help: "Total number of addresses not covered by any executable file mapping",
		}),
		UnknownSymbols: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jitsym_unknown_symbols_total",
			Help: "Total number of addresses inside a known mapping without a covering symbol",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ElfErrors,
			m.ProcErrors,
			m.UnknownMappings,
			m.UnknownSymbols,
		)
	}
	return m
}

func errorType(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return "ErrNotExist"
	}
	if errors.Is(err, os.ErrPermission) {
		return "ErrPermission"
	}
	if errors.Is(err, errNoSymbols) {
		return "ErrNoSymbols"
	}
	if errors.Is(err, errBaseNotFound) {
		return "ErrBaseNotFound"
	}
	return "Other"
}

var (
	errNoSymbols    = elfsym.ErrNoSymbols
	errBaseNotFound = errors.New("elf base not found")
)

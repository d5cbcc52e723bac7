// Package emission feeds the code produced by the compiler backend into the
// function address registry.
package emission

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/grafana/jitsym/pkg/ir"
)

// TextSectionSymbol names the symbol covering the whole text section of
// backends that do not flag section symbols. It is not a function and would
// shadow the real function boundaries.
const TextSectionSymbol = ".text"

var ErrZeroLoadAddress = errors.New("symbol has no load address")

// Symbol is an entry of an emitted object's symbol table.
type Symbol struct {
	Name string
	Size uint64
	// Section is the name of the section defining the symbol, empty for
	// undefined and absolute symbols.
	Section string
	// Executable is set when the defining section holds code.
	Executable bool
	// SectionSymbol is set for symbols standing for a whole section, such as
	// ".text.foo" of an object built with one section per function.
	SectionSymbol bool
}

// Object is an in-memory object file produced by the backend.
type Object interface {
	Symbols() ([]Symbol, error)
	// Size returns the size of the object image in bytes.
	Size() int
}

// LoadedObject knows where the sections of an Object were placed.
type LoadedObject interface {
	// SymbolLoadAddress returns the final address of the named symbol or 0.
	SymbolLoadAddress(name string) uint64
}

// Registrar receives emitted functions. *funcaddr.Registry implements it.
type Registrar interface {
	RegisterFunction(name string, addr, size uint64, def ir.FuncRef) error
}

type Stats struct {
	Objects   uint64
	Symbols   uint64
	CodeBytes uint64
}

type Listener struct {
	logger    log.Logger
	registrar Registrar
	metrics   *metrics

	objects   atomic.Uint64
	symbols   atomic.Uint64
	codeBytes atomic.Uint64
}

func NewListener(logger log.Logger, registrar Registrar, reg prometheus.Registerer) *Listener {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Listener{
		logger:    logger,
		registrar: registrar,
		metrics:   newMetrics(reg),
	}
}

// NotifyObjectEmitted registers every function of a freshly loaded object.
// Symbols outside executable sections and section symbols are skipped. No IR definition is attached; LookupDefinition binds it lazily.
//
// All symbols are processed even if some fail. The returned error aggregates
// the failures, ErrZeroLoadAddress and funcaddr.ErrDuplicateAddress being the
// expected ones. Either means the emitted unit must be discarded.
func (l *Listener) NotifyObjectEmitted(obj Object, loaded LoadedObject) error {
	size := obj.Size()
	l.objects.Inc()
	l.codeBytes.Add(uint64(size))
	l.metrics.codeBytes.Add(float64(size))

	syms, err := obj.Symbols()
	if err != nil {
		return fmt.Errorf("read emitted symbols: %w", err)
	}

	var errs error
	for _, sym := range syms {
		if !sym.Executable || sym.SectionSymbol || sym.Name == TextSectionSymbol {
			l.metrics.symbols.WithLabelValues(resultSkipped).Inc()
			continue
		}
		addr := loaded.SymbolLoadAddress(sym.Name)
		if addr == 0 {
			l.metrics.symbols.WithLabelValues(resultNoAddress).Inc()
			errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrZeroLoadAddress, sym.Name))
			continue
		}
		if err := l.registrar.RegisterFunction(sym.Name, addr, sym.Size, ir.FuncRef{}); err != nil {
			l.metrics.symbols.WithLabelValues(resultFailed).Inc()
			errs = multierror.Append(errs, err)
			continue
		}
		l.symbols.Inc()
		l.metrics.symbols.WithLabelValues(resultRegistered).Inc()
		level.Debug(l.logger).Log("msg", "registered emitted function", "name", sym.Name, "addr", fmt.Sprintf("%#x", addr), "size", sym.Size)
	}
	if errs != nil {
		level.Error(l.logger).Log("msg", "failed to register emitted object", "err", errs)
	}
	return errs
}

func (l *Listener) Stats() Stats {
	return Stats{
		Objects:   l.objects.Load(),
		Symbols:   l.symbols.Load(),
		CodeBytes: l.codeBytes.Load(),
	}
}

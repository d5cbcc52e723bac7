// Package funcaddr maps native code addresses to the functions that own them.
//
// A Registry combines the compiler's own bookkeeping, fed at code emission
// time, with an external symbol resolver used as a fallback for addresses
// the compiler never reported. It also exports what it knows in the perf map
// format understood by external profilers.
package funcaddr

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/grafana/jitsym/pkg/ir"
	"github.com/grafana/jitsym/pkg/symcache"
	"github.com/grafana/jitsym/pkg/symresolve"
)

// UnknownName is returned by FuncNameAtAddress when no name is available.
const UnknownName = "<unknown>"

var (
	ErrDuplicateAddress = symcache.ErrDuplicateAddress
	ErrZeroAddress      = errors.New("function address must not be zero")
)

// FunctionLookup finds backend IR functions by name. *ir.Module implements it.
type FunctionLookup interface {
	LookupFunction(name string) (ir.FuncRef, bool)
}

type Option func(*Registry)

// WithFunctionLookup binds externally resolved symbols to the backend's IR
// functions of the same name.
func WithFunctionLookup(l FunctionLookup) Option {
	return func(r *Registry) { r.functions = l }
}

// WithFs sets the filesystem perf maps are written to.
func WithFs(fs afero.Fs) Option {
	return func(r *Registry) { r.fs = fs }
}

// WithMemoryReader sets how code bytes are read during a dump.
func WithMemoryReader(m MemoryReader) Option {
	return func(r *Registry) { r.memory = m }
}

// WithPid overrides the process id used in the perf map path.
func WithPid(pid int) Option {
	return func(r *Registry) { r.pid = pid }
}

type Registry struct {
	logger    log.Logger
	cfg       Config
	resolver  symresolve.Resolver
	functions FunctionLookup
	fs        afero.Fs
	memory    MemoryReader
	pid       int
	metrics   *metrics

	mu    sync.RWMutex
	cache *symcache.Cache

	dumpMu sync.Mutex
}

func New(logger log.Logger, cfg Config, resolver symresolve.Resolver, reg prometheus.Registerer, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if resolver == nil {
		resolver = symresolve.Nop{}
	}
	r := &Registry{
		logger:   logger,
		cfg:      cfg,
		resolver: resolver,
		fs:       afero.NewOsFs(),
		memory:   SelfMemory(),
		pid:      os.Getpid(),
		metrics:  newMetrics(reg),
		cache:    symcache.New(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// RegisterFunction records code emitted by the compiler. An address can be
// registered only once; a second registration returns ErrDuplicateAddress and
// leaves the first record in place.
func (r *Registry) RegisterFunction(name string, addr, size uint64, def ir.FuncRef) error {
	if addr == 0 {
		return fmt.Errorf("%w: %q", ErrZeroAddress, name)
	}
	r.mu.Lock()
	err := r.cache.Insert(symcache.FunctionRecord{
		Address:    addr,
		Name:       name,
		Size:       size,
		Definition: def,
	})
	n := r.cache.Len()
	r.mu.Unlock()

	if err != nil {
		r.metrics.duplicateAddresses.Inc()
		level.Error(r.logger).Log("msg", "function address registered twice", "addr", fmt.Sprintf("%#x", addr), "name", name, "err", err)
		return err
	}
	r.metrics.registeredFunctions.Set(float64(n))
	return nil
}

// MustRegisterFunction is like RegisterFunction but panics on error.
func (r *Registry) MustRegisterFunction(name string, addr, size uint64, def ir.FuncRef) {
	if err := r.RegisterFunction(name, addr, size, def); err != nil {
		panic(err)
	}
}

// LookupDefinition returns the IR function owning the code at addr.
//
// Unknown addresses are resolved externally once. A resolved symbol whose
// name matches an IR function is registered with that definition. Anything
// else is remembered as negative and never resolved again. Goroutines missing
// on the same address at the same time may each call the resolver; the first
// result to be stored wins.
//
// A known address whose IR function has since been erased reports false,
// with the dangling handle still returned for diagnostics.
func (r *Registry) LookupDefinition(addr uint64) (ir.FuncRef, bool) {
	r.mu.RLock()
	rec, found := r.cache.Lookup(addr)
	negative := !found && r.cache.IsKnownNegative(addr)
	r.mu.RUnlock()
	if found {
		return rec.Definition, liveDefinition(rec)
	}
	if negative {
		r.metrics.negativeCacheHits.Inc()
		return ir.FuncRef{}, false
	}

	def, name, result := r.resolveDefinition(addr)
	r.metrics.externalResolutions.WithLabelValues(result).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have settled the address while the lock was released.
	if rec, found := r.cache.Lookup(addr); found {
		return rec.Definition, liveDefinition(rec)
	}
	if r.cache.IsKnownNegative(addr) {
		return ir.FuncRef{}, false
	}
	if result != resultResolved {
		r.cache.MarkNegative(addr)
		r.metrics.negativeEntries.Set(float64(r.cache.NegativeLen()))
		return ir.FuncRef{}, false
	}
	if err := r.cache.Insert(symcache.FunctionRecord{Address: addr, Name: name, Definition: def}); err != nil {
		// unreachable: the address was checked under the same lock
		level.Error(r.logger).Log("msg", "failed to cache resolved function", "addr", fmt.Sprintf("%#x", addr), "err", err)
		return ir.FuncRef{}, false
	}
	r.metrics.registeredFunctions.Set(float64(r.cache.Len()))
	level.Debug(r.logger).Log("msg", "bound external symbol to IR function", "addr", fmt.Sprintf("%#x", addr), "name", name, "func", def)
	return def, true
}

func liveDefinition(rec symcache.FunctionRecord) bool {
	if !rec.HasDefinition() {
		return false
	}
	_, ok := rec.Definition.Function()
	return ok
}

func (r *Registry) resolveDefinition(addr uint64) (ir.FuncRef, string, string) {
	name, ok := r.resolver.Resolve(addr)
	if !ok || name == "" {
		return ir.FuncRef{}, "", resultUnresolved
	}
	if r.functions == nil {
		return ir.FuncRef{}, name, resultNoIR
	}
	def, ok := r.functions.LookupFunction(name)
	if !ok || def.IsZero() {
		return ir.FuncRef{}, name, resultNoIR
	}
	return def, name, resultResolved
}

// FuncNameAtAddress returns the best known name for addr. Registered names
// take precedence over the external resolver. The negative cache is neither
// consulted nor updated, so a name may be found for an address that has no
// definition. On failure it returns UnknownName and false.
func (r *Registry) FuncNameAtAddress(addr uint64, demangle bool) (string, bool) {
	r.mu.RLock()
	rec, found := r.cache.Lookup(addr)
	r.mu.RUnlock()

	name := rec.Name
	if !found {
		var ok bool
		name, ok = r.resolver.Resolve(addr)
		if !ok || name == "" {
			return UnknownName, false
		}
	}
	if demangle {
		return r.resolver.Demangle(name), true
	}
	return name, true
}

// Functions returns a copy of every known record sorted by address.
func (r *Registry) Functions() []symcache.FunctionRecord {
	r.mu.RLock()
	res := make([]symcache.FunctionRecord, 0, r.cache.Len())
	r.cache.Range(func(rec symcache.FunctionRecord) bool {
		res = append(res, rec)
		return true
	})
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Address < res[j].Address })
	return res
}

// Len returns the number of known functions and known negative addresses.
func (r *Registry) Len() (functions, negative int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Len(), r.cache.NegativeLen()
}

// Package symresolve resolves native code addresses that the JIT did not
// emit itself, using the symbol tables of the objects mapped into a process.
package symresolve

import (
	"errors"
	"flag"
	"fmt"
)

// Resolver maps an address to a symbol name using information outside the
// JIT's own bookkeeping.
//
// Resolve reports false both when no object covers addr and when an object
// covers it but has no symbol for it. Demangle never fails: names it cannot
// decode are returned unchanged.
type Resolver interface {
	Resolve(addr uint64) (string, bool)
	Demangle(name string) string
}

type Config struct {
	Pid           int          `yaml:"pid"`
	ElfCacheSize  int          `yaml:"elf_cache_size" category:"advanced"`
	Demangle      DemangleType `yaml:"demangle"`
	MiniDebugInfo bool         `yaml:"mini_debug_info" category:"advanced"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.IntVar(&cfg.Pid, "resolver.pid", 0, "Process whose mappings are used for symbol resolution. 0 means the current process.")
	f.IntVar(&cfg.ElfCacheSize, "resolver.elf-cache-size", 64, "Number of ELF symbol tables kept in memory.")
	cfg.Demangle = DemangleFull
	f.Var(&cfg.Demangle, "resolver.demangle", "Demangling style: none, simplified, templates or full.")
	f.BoolVar(&cfg.MiniDebugInfo, "resolver.mini-debug-info", true, "Read symbols from the .gnu_debugdata section of stripped binaries.")
}

func (cfg *Config) Validate() error {
	if cfg.Pid < 0 {
		return fmt.Errorf("invalid resolver pid %d", cfg.Pid)
	}
	if cfg.ElfCacheSize < 1 {
		return errors.New("invalid elf-cache-size value, must be positive")
	}
	if !cfg.Demangle.valid() {
		return fmt.Errorf("invalid demangle style %q", cfg.Demangle)
	}
	return nil
}

// DefaultConfig returns the configuration RegisterFlags would produce.
func DefaultConfig() Config {
	return Config{
		ElfCacheSize:  64,
		Demangle:      DemangleFull,
		MiniDebugInfo: true,
	}
}

// Chain tries resolvers in order. Demangling is delegated to the first one.
type Chain []Resolver

func (c Chain) Resolve(addr uint64) (string, bool) {
	for _, r := range c {
		if name, ok := r.Resolve(addr); ok {
			return name, true
		}
	}
	return "", false
}

func (c Chain) Demangle(name string) string {
	if len(c) == 0 {
		return name
	}
	return c[0].Demangle(name)
}

// Nop resolves nothing. Useful when only JIT-registered code matters.
type Nop struct {
	Demangler
}

func (Nop) Resolve(uint64) (string, bool) { return "", false }

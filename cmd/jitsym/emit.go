package main

import (
	"bytes"
	"context"
	"debug/elf"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/jitsym/pkg/disasm"
	"github.com/grafana/jitsym/pkg/emission"
	"github.com/grafana/jitsym/pkg/funcaddr"
	"github.com/grafana/jitsym/pkg/symresolve"
)

const sectionAlign = 16

type emitParams struct {
	object      string
	perfMapPath string
	dumpDir     string
	disasm      bool
}

func addEmitParams(cmd *kingpin.CmdClause) *emitParams {
	params := &emitParams{}
	cmd.Arg("object", "Relocatable ELF object holding the code.").Required().ExistingFileVar(&params.object)
	path := cmd.Flag("perf-map.path", "Path of the perf map file. %d is replaced by the process id.")
	path.StringVar(&params.perfMapPath)
	path.Action(override(func(c *config) { c.PerfMap.PerfMapPath = params.perfMapPath }))
	dir := cmd.Flag("perf-map.dump-dir", "Directory receiving the code dump.")
	dir.StringVar(&params.dumpDir)
	dir.Action(override(func(c *config) { c.PerfMap.DumpDir = params.dumpDir }))
	cmd.Flag("disasm", "Print the disassembly of the dumped code.").Default("false").BoolVar(&params.disasm)
	return params
}

// loadSections copies the allocated sections of f into one buffer, as a JIT
// loader would, and returns the buffer with the address of every section.
func loadSections(f *elf.File) ([]byte, map[string]uint64, error) {
	var size uint64
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC != 0 {
			size = alignUp(size, s.Addralign) + s.Size
		}
	}
	arena := make([]byte, size+sectionAlign)
	addr := uint64(uintptr(unsafe.Pointer(unsafe.SliceData(arena))))
	base := alignUp(addr, sectionAlign)
	code := arena[base-addr:]

	addrs := make(map[string]uint64)
	var off uint64
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		off = alignUp(off, s.Addralign)
		if s.Type != elf.SHT_NOBITS {
			data, err := s.Data()
			if err != nil {
				return nil, nil, fmt.Errorf("read section %s: %w", s.Name, err)
			}
			copy(code[off:], data)
		}
		addrs[s.Name] = base + off
		off += s.Size
	}
	return arena, addrs, nil
}

func alignUp(v, align uint64) uint64 {
	if align < 2 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func archOf(m elf.Machine) (disasm.Arch, bool) {
	switch m {
	case elf.EM_X86_64:
		return disasm.AMD64, true
	case elf.EM_AARCH64:
		return disasm.ARM64, true
	}
	return "", false
}

func emit(ctx context.Context, conf config, params *emitParams) error {
	data, err := os.ReadFile(params.object)
	if err != nil {
		return err
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", params.object, err)
	}
	defer f.Close()

	arena, addrs, err := loadSections(f)
	if err != nil {
		return err
	}
	obj, err := emission.NewELFObject(data, addrs)
	if err != nil {
		return err
	}

	resolver := symresolve.Nop{Demangler: symresolve.NewDemangler(conf.Resolver.Demangle)}
	registry, err := funcaddr.New(logger, conf.PerfMap, resolver, nil)
	if err != nil {
		return err
	}
	listener := emission.NewListener(logger, registry, nil)
	if err := listener.NotifyObjectEmitted(obj, obj); err != nil {
		return err
	}
	if err := registry.DumpPerfMap(); err != nil {
		return err
	}
	// the code must stay mapped until it has been dumped
	runtime.KeepAlive(arena)

	stats := listener.Stats()
	level.Info(logger).Log("msg", "object emitted", "object", params.object, "functions", stats.Symbols, "bytes", stats.CodeBytes)

	out := output(ctx)
	for _, fn := range registry.Functions() {
		name, _ := registry.FuncNameAtAddress(fn.Address, true)
		if _, err := fmt.Fprintf(out, "%x %x %s\n", fn.Address, fn.Size, name); err != nil {
			return err
		}
	}

	if !params.disasm || !conf.PerfMap.DumpCode {
		return nil
	}
	arch, ok := archOf(f.Machine)
	if !ok {
		return fmt.Errorf("no disassembler for %s", f.Machine)
	}
	fns, err := disasm.DecodeDir(afero.NewOsFs(), conf.PerfMap.DumpDir, arch, nil)
	if err != nil {
		return err
	}
	for _, fn := range fns {
		if err := disasm.Format(out, fn); err != nil {
			return err
		}
	}
	return nil
}

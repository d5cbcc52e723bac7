package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/jitsym/pkg/disasm"
	"github.com/grafana/jitsym/pkg/perfmap"
	"github.com/grafana/jitsym/pkg/symresolve"
)

type perfMapShowParams struct {
	file  string
	raw   bool
	addrs []string
}

func addPerfMapShowParams(cmd *kingpin.CmdClause) *perfMapShowParams {
	params := &perfMapShowParams{}
	cmd.Arg("file", "Perf map file.").Required().ExistingFileVar(&params.file)
	cmd.Flag("raw", "Print names without demangling.").Default("false").BoolVar(&params.raw)
	cmd.Flag("addr", "Only print the entries containing these hexadecimal addresses.").StringsVar(&params.addrs)
	return params
}

func readPerfMap(path string) (*perfmap.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := perfmap.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read perf map %s: %w", path, err)
	}
	return perfmap.NewMap(entries), nil
}

func perfMapShow(ctx context.Context, conf config, params *perfMapShowParams) error {
	m, err := readPerfMap(params.file)
	if err != nil {
		return err
	}
	d := symresolve.NewDemangler(conf.Resolver.Demangle)
	if params.raw {
		d = symresolve.NewDemangler(symresolve.DemangleNone)
	}
	out := output(ctx)
	printEntry := func(e perfmap.Entry) error {
		e.Name = d.Demangle(e.Name)
		_, err := out.Write(perfmap.AppendEntry(nil, e))
		return err
	}

	if len(params.addrs) == 0 {
		for _, e := range m.Entries() {
			if err := printEntry(e); err != nil {
				return err
			}
		}
		return nil
	}
	for _, s := range params.addrs {
		addr, err := parseAddress(s)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", s, err)
		}
		e, ok := m.Resolve(addr)
		if !ok {
			return fmt.Errorf("address %x not found in %s", addr, params.file)
		}
		if err := printEntry(e); err != nil {
			return err
		}
	}
	return nil
}

type perfMapDisasmParams struct {
	dir     string
	arch    string
	perfMap string
}

func addPerfMapDisasmParams(cmd *kingpin.CmdClause) *perfMapDisasmParams {
	params := &perfMapDisasmParams{}
	cmd.Arg("dir", "Code dump directory. Defaults to the configured dump dir.").ExistingDirVar(&params.dir)
	cmd.Flag("arch", "Instruction set of the dumped code.").Default(defaultArch()).EnumVar(&params.arch, disasm.Archs...)
	cmd.Flag("perf-map", "Perf map used to name functions and branch targets.").ExistingFileVar(&params.perfMap)
	return params
}

func perfMapDisasm(ctx context.Context, conf config, params *perfMapDisasmParams) error {
	dir := params.dir
	if dir == "" {
		dir = conf.PerfMap.DumpDir
	}
	var names *perfmap.Map
	if params.perfMap != "" {
		var err error
		if names, err = readPerfMap(params.perfMap); err != nil {
			return err
		}
	}
	fns, err := disasm.DecodeDir(afero.NewOsFs(), dir, disasm.Arch(params.arch), names)
	if err != nil {
		return err
	}
	out := output(ctx)
	for _, fn := range fns {
		if err := disasm.Format(out, fn); err != nil {
			return err
		}
	}
	return nil
}

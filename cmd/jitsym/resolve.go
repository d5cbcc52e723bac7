package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-kit/log/level"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/jitsym/pkg/funcaddr"
	"github.com/grafana/jitsym/pkg/symresolve"
)

type resolveParams struct {
	pid      int
	raw      bool
	perfMap  bool
	addrs    []string
	resolver symresolve.Resolver
}

func addResolveParams(cmd *kingpin.CmdClause) *resolveParams {
	params := &resolveParams{}
	pid := cmd.Flag("pid", "Process to resolve addresses in. Defaults to the resolver pid of the configuration.")
	pid.IntVar(&params.pid)
	pid.Action(override(func(c *config) { c.Resolver.Pid = params.pid }))
	cmd.Flag("raw", "Print names without demangling.").Default("false").BoolVar(&params.raw)
	cmd.Flag("perf-map", "Also resolve JIT code through the perf map of the process.").Default("true").BoolVar(&params.perfMap)
	cmd.Arg("address", "Hexadecimal addresses, with or without 0x prefix.").Required().StringsVar(&params.addrs)
	return params
}

func parseAddress(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

func (p *resolveParams) newResolver(conf config) (symresolve.Resolver, error) {
	if p.resolver != nil {
		return p.resolver, nil
	}
	proc, err := symresolve.NewProcResolver(logger, conf.Resolver, symresolve.NewMetrics(nil))
	if err != nil {
		return nil, err
	}
	if !p.perfMap {
		return proc, nil
	}
	pid := conf.Resolver.Pid
	if pid == 0 {
		pid = os.Getpid()
	}
	path := conf.PerfMap.PerfMapFile(pid)
	return symresolve.Chain{proc, symresolve.NewPerfMapResolver(logger, path, conf.Resolver.Demangle)}, nil
}

func resolve(ctx context.Context, conf config, params *resolveParams) error {
	resolver, err := params.newResolver(conf)
	if err != nil {
		return err
	}
	registry, err := funcaddr.New(logger, conf.PerfMap, resolver, nil)
	if err != nil {
		return err
	}
	out := output(ctx)
	for _, s := range params.addrs {
		addr, err := parseAddress(s)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", s, err)
		}
		name, ok := registry.FuncNameAtAddress(addr, !params.raw)
		if !ok {
			level.Debug(logger).Log("msg", "address not resolved", "addr", s)
		}
		if _, err := fmt.Fprintf(out, "%x %s\n", addr, name); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/jitsym/pkg/disasm"
	"github.com/grafana/jitsym/pkg/symresolve"
)

var cfg struct {
	verbose    bool
	configFile string
	// overrides are applied on top of the config file, in command line order
	overrides []func(*config)
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

// override records a flag value that takes precedence over the config file.
// It only runs when the flag is present on the command line.
func override(set func(*config)) kingpin.Action {
	return func(*kingpin.ParseContext) error {
		cfg.overrides = append(cfg.overrides, set)
		return nil
	}
}

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Symbolication tooling for JIT compiled code: perf maps, code dumps and native symbol resolution.").UsageWriter(os.Stdout)
	app.Version(version.Print("jitsym"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)
	app.Flag("config.file", "YAML configuration file.").StringVar(&cfg.configFile)

	demangleStyle := symresolve.DemangleFull
	demangleFlag := app.Flag("demangle.style", "Demangling style: none, simplified, templates or full.")
	demangleFlag.SetValue(&demangleStyle)
	demangleFlag.Action(override(func(c *config) { c.Resolver.Demangle = demangleStyle }))

	demangleCmd := app.Command("demangle", "Demangle symbol names given as arguments, or read one per line from stdin.")
	demangleNames := demangleCmd.Arg("name", "Mangled names.").Strings()

	resolveCmd := app.Command("resolve", "Resolve addresses of a running process to symbol names.")
	resolveParams := addResolveParams(resolveCmd)

	emitCmd := app.Command("emit", "Load the code of a relocatable object as a JIT would and export its perf map.")
	emitParams := addEmitParams(emitCmd)

	perfMapCmd := app.Command("perfmap", "Operate on perf maps and code dumps.")
	perfMapShowCmd := perfMapCmd.Command("show", "Print the entries of a perf map.")
	perfMapShowParams := addPerfMapShowParams(perfMapShowCmd)
	perfMapDisasmCmd := perfMapCmd.Command("disasm", "Disassemble a code dump directory.")
	perfMapDisasmParams := addPerfMapDisasmParams(perfMapDisasmCmd)

	// parse command line arguments
	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	conf, err := loadConfig(cfg.configFile)
	if err != nil {
		os.Exit(checkError(err))
	}
	for _, o := range cfg.overrides {
		o(&conf)
	}
	if err := conf.Validate(); err != nil {
		os.Exit(checkError(fmt.Errorf("invalid configuration: %w", err)))
	}

	switch parsedCmd {
	case demangleCmd.FullCommand():
		if err := demangleNamesCmd(ctx, conf, *demangleNames, os.Stdin); err != nil {
			os.Exit(checkError(err))
		}
	case resolveCmd.FullCommand():
		if err := resolve(ctx, conf, resolveParams); err != nil {
			os.Exit(checkError(err))
		}
	case emitCmd.FullCommand():
		if err := emit(ctx, conf, emitParams); err != nil {
			os.Exit(checkError(err))
		}
	case perfMapShowCmd.FullCommand():
		if err := perfMapShow(ctx, conf, perfMapShowParams); err != nil {
			os.Exit(checkError(err))
		}
	case perfMapDisasmCmd.FullCommand():
		if err := perfMapDisasm(ctx, conf, perfMapDisasmParams); err != nil {
			os.Exit(checkError(err))
		}
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

func defaultArch() string {
	for _, a := range disasm.Archs {
		if a == runtime.GOARCH {
			return a
		}
	}
	return string(disasm.AMD64)
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}

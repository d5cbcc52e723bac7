package funcaddr

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/grafana/jitsym/pkg/perfmap"
)

type Config struct {
	PerfMapPath     string `yaml:"perf_map_path"`
	DumpDir         string `yaml:"dump_dir"`
	DumpCode        bool   `yaml:"dump_code"`
	DumpConcurrency int    `yaml:"dump_concurrency" category:"advanced"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&cfg.PerfMapPath, "perf-map.path", perfmap.DefaultPathFormat, "Path of the perf map file. %d is replaced by the process id.")
	f.StringVar(&cfg.DumpDir, "perf-map.dump-dir", "perf_map", "Directory receiving the raw code of every JIT function. It is recreated on each dump.")
	f.BoolVar(&cfg.DumpCode, "perf-map.dump-code", true, "Write the code bytes of every JIT function next to the perf map.")
	f.IntVar(&cfg.DumpConcurrency, "perf-map.dump-concurrency", 8, "Maximum number of code files written concurrently.")
}

func (cfg *Config) Validate() error {
	if cfg.PerfMapPath == "" {
		return errors.New("perf map path must not be empty")
	}
	if n := strings.Count(cfg.PerfMapPath, "%"); n > 1 || n != strings.Count(cfg.PerfMapPath, "%d") {
		return fmt.Errorf("invalid perf map path %q: at most one %%d verb is allowed", cfg.PerfMapPath)
	}
	if cfg.DumpCode && cfg.DumpDir == "" {
		return errors.New("dump dir must not be empty when code dumping is enabled")
	}
	if cfg.DumpConcurrency < 1 {
		return fmt.Errorf("invalid dump-concurrency value, must be positive")
	}
	return nil
}

// DefaultConfig returns the configuration RegisterFlags would produce.
func DefaultConfig() Config {
	return Config{
		PerfMapPath:     perfmap.DefaultPathFormat,
		DumpDir:         "perf_map",
		DumpCode:        true,
		DumpConcurrency: 8,
	}
}

// PerfMapFile returns the perf map path of process pid.
func (cfg *Config) PerfMapFile(pid int) string {
	if strings.Contains(cfg.PerfMapPath, "%d") {
		return fmt.Sprintf(cfg.PerfMapPath, pid)
	}
	return cfg.PerfMapPath
}

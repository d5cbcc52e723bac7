package funcaddr

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	var cfg Config
	fs := flag.NewFlagSet("test", flag.PanicOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-perf-map.dump-code=false"}))
	require.NoError(t, cfg.Validate())
	require.Equal(t, Config{
		PerfMapPath:     "/tmp/perf-%d.map",
		DumpDir:         "perf_map",
		DumpCode:        false,
		DumpConcurrency: 8,
	}, cfg)
	require.Equal(t, "/tmp/perf-42.map", cfg.PerfMapFile(42))

	for name, mutate := range map[string]func(*Config){
		"empty path":       func(c *Config) { c.PerfMapPath = "" },
		"too many verbs":   func(c *Config) { c.PerfMapPath = "/tmp/%s-%d.map" },
		"string verb":      func(c *Config) { c.PerfMapPath = "/tmp/perf-%s.map" },
		"padded verb":      func(c *Config) { c.PerfMapPath = "/tmp/perf-%08d.map" },
		"empty dump dir":   func(c *Config) { c.DumpDir = "" },
		"zero concurrency": func(c *Config) { c.DumpConcurrency = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}

	c := DefaultConfig()
	c.DumpCode = false
	c.DumpDir = ""
	require.NoError(t, c.Validate())
	c.PerfMapPath = "/fixed.map"
	require.Equal(t, "/fixed.map", c.PerfMapFile(42))
}

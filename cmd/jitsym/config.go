package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grafana/jitsym/pkg/funcaddr"
	"github.com/grafana/jitsym/pkg/symresolve"
)

type config struct {
	Resolver symresolve.Config `yaml:"resolver"`
	PerfMap  funcaddr.Config   `yaml:"perf_map"`
}

func defaultConfig() config {
	return config{
		Resolver: symresolve.DefaultConfig(),
		PerfMap:  funcaddr.DefaultConfig(),
	}
}

func (c *config) Validate() error {
	if err := c.Resolver.Validate(); err != nil {
		return err
	}
	return c.PerfMap.Validate()
}

// loadConfig reads a YAML file over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

package symresolve

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/jitsym/pkg/perfmap"
)

// PerfMapResolver resolves addresses from a perf map written by another code
// generator sharing the process, e.g. an embedded JavaScript engine. The file
// is re-read whenever its modification time changes.
type PerfMapResolver struct {
	Demangler

	logger log.Logger
	path   string

	mu      sync.Mutex
	m       *perfmap.Map
	modTime time.Time
}

func NewPerfMapResolver(logger log.Logger, path string, dt DemangleType) *PerfMapResolver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &PerfMapResolver{
		Demangler: NewDemangler(dt),
		logger:    log.With(logger, "component", "perfmap_resolver"),
		path:      path,
	}
}

func (r *PerfMapResolver) Resolve(addr uint64) (string, bool) {
	m, err := r.load()
	if err != nil {
		level.Debug(r.logger).Log("msg", "perf map unavailable", "path", r.path, "err", err)
		return "", false
	}
	e, ok := m.Resolve(addr)
	if !ok {
		return "", false
	}
	return e.Name, true
}

func (r *PerfMapResolver) load() (*perfmap.Map, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		return nil, err
	}
	if r.m != nil && info.ModTime().Equal(r.modTime) {
		return r.m, nil
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := perfmap.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	r.m = perfmap.NewMap(entries)
	r.modTime = info.ModTime()
	level.Debug(r.logger).Log("msg", "loaded perf map", "path", r.path, "entries", r.m.Len())
	return r.m, nil
}

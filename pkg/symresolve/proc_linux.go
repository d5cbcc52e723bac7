//go:build linux

package symresolve

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/procfs"

	"github.com/grafana/jitsym/pkg/symresolve/elfsym"
)

type mapping struct {
	start, end uint64
	offset     uint64
	path       string
}

type loadedTable struct {
	table *elfsym.Table
	image *elfsym.Image
	err   error
}

// ProcResolver resolves addresses against the executable file mappings of a
// process, reading symbol tables of the mapped ELF objects on demand. This is
// the equivalent of dladdr for any process whose /proc entry is readable.
type ProcResolver struct {
	Demangler

	logger  log.Logger
	cfg     Config
	metrics *Metrics
	fs      procfs.FS
	root    string

	mu       sync.Mutex
	mappings []mapping
	tables   *lru.Cache[string, *loadedTable]
}

func NewProcResolver(logger log.Logger, cfg Config, metrics *Metrics) (*ProcResolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	tables, err := lru.New[string, *loadedTable](cfg.ElfCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create elf cache: %w", err)
	}
	r := &ProcResolver{
		Demangler: NewDemangler(cfg.Demangle),
		logger:    log.With(logger, "component", "proc_resolver", "pid", cfg.Pid),
		cfg:       cfg,
		metrics:   metrics,
		fs:        fs,
		tables:    tables,
	}
	if cfg.Pid != 0 {
		// files of another process are reached through its mount namespace
		r.root = path.Join(procfs.DefaultMountPoint, fmt.Sprint(cfg.Pid), "root")
	}
	return r, nil
}

func (r *ProcResolver) Resolve(addr uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.findMapping(addr)
	if !ok {
		// libraries may have been loaded since the last read
		r.refresh()
		if m, ok = r.findMapping(addr); !ok {
			r.metrics.UnknownMappings.Inc()
			return "", false
		}
	}
	t := r.table(m.path)
	if t.err != nil {
		return "", false
	}
	base, ok := t.image.LoadBase(m.start, m.offset)
	if !ok {
		level.Debug(r.logger).Log("msg", "elf base not found", "f", m.path, "start", fmt.Sprintf("%x", m.start))
		r.metrics.ElfErrors.WithLabelValues(errorType(errBaseNotFound)).Inc()
		return "", false
	}
	sym, ok := t.table.Resolve(addr - base)
	if !ok {
		r.metrics.UnknownSymbols.Inc()
		return "", false
	}
	return sym.Name, true
}

// Refresh re-reads the process mappings.
func (r *ProcResolver) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh()
}

func (r *ProcResolver) findMapping(addr uint64) (mapping, bool) {
	i := sort.Search(len(r.mappings), func(i int) bool {
		return r.mappings[i].end > addr
	})
	if i == len(r.mappings) || addr < r.mappings[i].start {
		return mapping{}, false
	}
	return r.mappings[i], true
}

func (r *ProcResolver) refresh() {
	var (
		proc procfs.Proc
		err  error
	)
	if r.cfg.Pid == 0 {
		proc, err = r.fs.Self()
	} else {
		proc, err = r.fs.Proc(r.cfg.Pid)
	}
	if err != nil {
		r.onProcError(err)
		return
	}
	maps, err := proc.ProcMaps()
	if err != nil {
		r.onProcError(err)
		return
	}
	mappings := r.mappings[:0]
	for _, m := range maps {
		if m.Perms == nil || !m.Perms.Execute || !strings.HasPrefix(m.Pathname, "/") {
			continue
		}
		mappings = append(mappings, mapping{
			start:  uint64(m.StartAddr),
			end:    uint64(m.EndAddr),
			offset: uint64(m.Offset),
			path:   m.Pathname,
		})
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].start < mappings[j].start
	})
	r.mappings = mappings
	level.Debug(r.logger).Log("msg", "refreshed mappings", "executable", len(mappings))
}

func (r *ProcResolver) table(file string) *loadedTable {
	if t, ok := r.tables.Get(file); ok {
		return t
	}
	fsPath := path.Join(r.root, file)
	table, image, err := elfsym.Open(fsPath, elfsym.Options{MiniDebugInfo: r.cfg.MiniDebugInfo})
	t := &loadedTable{table: table, image: image, err: err}
	if err != nil {
		level.Warn(r.logger).Log("msg", "failed to load elf table", "err", err, "f", file, "fs", r.root)
		r.metrics.ElfErrors.WithLabelValues(errorType(err)).Inc()
	} else {
		level.Debug(r.logger).Log("msg", "loaded elf table", "f", file, "symbols", table.Len())
	}
	// failures are cached too, so a broken file is not reparsed on every miss
	r.tables.Add(file, t)
	return t
}

func (r *ProcResolver) onProcError(err error) {
	level.Error(r.logger).Log("msg", "failed to read process mappings", "err", err)
	r.metrics.ProcErrors.WithLabelValues(errorType(err)).Inc()
}

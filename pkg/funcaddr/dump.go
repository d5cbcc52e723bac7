package funcaddr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/jitsym/pkg/perfmap"
	"github.com/grafana/jitsym/pkg/symcache"
)

var ErrExportIO = errors.New("perf map export failed")

const (
	IndexFileName = "index.txt"

	maxFileNameLen = 200
)

// DumpPerfMap writes every function with a known size to the perf map file.
// With DumpCode set, the dump directory is recreated and filled with one file
// of raw code bytes per function plus an index of address to file name.
//
// The records are snapshotted first, so registrations are not blocked by the
// file I/O. Any failure is returned wrapped in ErrExportIO; files written so
// far are left behind. Callers that treat a failed dump as fatal for the
// process use MustDumpPerfMap.
func (r *Registry) DumpPerfMap() error {
	r.dumpMu.Lock()
	defer r.dumpMu.Unlock()

	start := time.Now()
	records := lo.Filter(r.Functions(), func(rec symcache.FunctionRecord, _ int) bool {
		return rec.Size > 0
	})
	path := r.cfg.PerfMapFile(r.pid)
	err := r.dump(path, records)
	r.metrics.perfMapDumpDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.perfMapDumps.WithLabelValues(statusFailure).Inc()
		level.Error(r.logger).Log("msg", "failed to dump perf map", "path", path, "err", err)
		return fmt.Errorf("%w: %w", ErrExportIO, err)
	}
	r.metrics.perfMapDumps.WithLabelValues(statusSuccess).Inc()
	level.Info(r.logger).Log("msg", "perf map dumped", "path", path, "functions", len(records), "duration", time.Since(start))
	return nil
}

// MustDumpPerfMap is like DumpPerfMap but panics on error.
func (r *Registry) MustDumpPerfMap() {
	if err := r.DumpPerfMap(); err != nil {
		panic(err)
	}
}

func (r *Registry) dump(path string, records []symcache.FunctionRecord) error {
	err := writeFile(r.fs, path, func(w *perfmap.Writer) error {
		for _, rec := range records {
			if err := w.WriteEntry(perfmap.Entry{Address: rec.Address, Size: rec.Size, Name: rec.Name}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write perf map %s: %w", path, err)
	}
	if !r.cfg.DumpCode {
		return nil
	}

	dir := r.cfg.DumpDir
	if err = r.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove dump dir %s: %w", dir, err)
	}
	if err = r.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir %s: %w", dir, err)
	}

	files := r.dumpFileNames(records)
	indexPath := filepath.Join(dir, IndexFileName)
	err = writeFile(r.fs, indexPath, func(w *perfmap.Writer) error {
		for i, rec := range records {
			if err := w.WriteIndexEntry(perfmap.IndexEntry{Address: rec.Address, File: files[i]}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write dump index %s: %w", indexPath, err)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.DumpConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			return r.dumpCode(filepath.Join(dir, files[i]), rec)
		})
	}
	return g.Wait()
}

func (r *Registry) dumpCode(path string, rec symcache.FunctionRecord) (err error) {
	code, err := r.memory.ReadMemory(rec.Address, rec.Size)
	if err != nil {
		return fmt.Errorf("read code of %s: %w", rec.Name, err)
	}
	if uint64(len(code)) != rec.Size {
		return fmt.Errorf("read code of %s: got %d of %d bytes: %w", rec.Name, len(code), rec.Size, io.ErrUnexpectedEOF)
	}
	f, err := r.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierror.Append(err, f.Close()).ErrorOrNil()
	}()
	n, err := f.Write(code)
	if err == nil && n != len(code) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// dumpFileNames picks a distinct file name for every record. Names come from
// the symbol; a name already taken gets the address appended.
func (r *Registry) dumpFileNames(records []symcache.FunctionRecord) []string {
	taken := make(map[string]struct{}, len(records)+1)
	taken[IndexFileName] = struct{}{}
	files := make([]string, len(records))
	for i, rec := range records {
		name := fileName(rec)
		if _, ok := taken[name]; ok {
			level.Warn(r.logger).Log("msg", "duplicate dump file name", "name", name, "addr", fmt.Sprintf("%#x", rec.Address))
			for ok {
				name = fmt.Sprintf("%s.%x", name, rec.Address)
				_, ok = taken[name]
			}
		}
		taken[name] = struct{}{}
		files[i] = name
	}
	return files
}

func fileName(rec symcache.FunctionRecord) string {
	name := strings.Map(func(c rune) rune {
		if c == '/' || c == 0 || c == '\n' || c == '\r' {
			return '_'
		}
		return c
	}, rec.Name)
	switch {
	case name == "" || name == "." || name == "..":
		return fmt.Sprintf("%x", rec.Address)
	case len(name) > maxFileNameLen:
		return fmt.Sprintf("%s.%x", name[:maxFileNameLen], rec.Address)
	}
	return name
}

func writeFile(fs afero.Fs, path string, fn func(w *perfmap.Writer) error) (err error) {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierror.Append(err, f.Close()).ErrorOrNil()
	}()
	w := perfmap.NewWriter(f)
	if err = fn(w); err != nil {
		return err
	}
	return w.Flush()
}

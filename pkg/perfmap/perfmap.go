// Package perfmap reads and writes the perf map format understood by Linux
// perf and most profilers:
//
//	<hex start address> <hex size> <symbol name>\n
//
// Hex numbers carry no 0x prefix and fields are separated by one space. The
// name extends to the end of the line and may contain spaces.
//
// It also handles the index file of a code dump directory, which maps
// <hex start address> to the file holding that function's code bytes.
package perfmap

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// DefaultPathFormat is the path perf looks at for a process' JIT symbols.
const DefaultPathFormat = "/tmp/perf-%d.map"

// Path returns the perf map path of process pid.
func Path(pid int) string {
	return fmt.Sprintf(DefaultPathFormat, pid)
}

type Entry struct {
	Address uint64
	Size    uint64
	Name    string
}

// AppendEntry appends the perf map line for e to dst.
func AppendEntry(dst []byte, e Entry) []byte {
	dst = strconv.AppendUint(dst, e.Address, 16)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, e.Size, 16)
	dst = append(dst, ' ')
	dst = appendName(dst, e.Name)
	return append(dst, '\n')
}

// IndexEntry is one line of a dump directory index.
type IndexEntry struct {
	Address uint64
	File    string
}

func AppendIndexEntry(dst []byte, e IndexEntry) []byte {
	dst = strconv.AppendUint(dst, e.Address, 16)
	dst = append(dst, ' ')
	dst = appendName(dst, e.File)
	return append(dst, '\n')
}

// appendName keeps a name on one line: line breaks become spaces.
func appendName(dst []byte, name string) []byte {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '\n' || c == '\r' {
			c = ' '
		}
		dst = append(dst, c)
	}
	return dst
}

// Writer buffers perf map or index lines. Callers must Flush.
type Writer struct {
	w   *bufio.Writer
	buf []byte
	n   int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), buf: make([]byte, 0, 128)}
}

func (w *Writer) WriteEntry(e Entry) error {
	w.buf = AppendEntry(w.buf[:0], e)
	return w.write()
}

func (w *Writer) WriteIndexEntry(e IndexEntry) error {
	w.buf = AppendIndexEntry(w.buf[:0], e)
	return w.write()
}

func (w *Writer) write() error {
	n, err := w.w.Write(w.buf)
	w.n += n
	if err != nil {
		return err
	}
	if n != len(w.buf) {
		return io.ErrShortWrite
	}
	return nil
}

// Written returns the number of bytes accepted so far.
func (w *Writer) Written() int { return w.n }

func (w *Writer) Flush() error { return w.w.Flush() }

// ParseEntry parses a single perf map line without its trailing newline.
func ParseEntry(line string) (Entry, bool) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 || parts[2] == "" {
		return Entry{}, false
	}
	addr, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return Entry{}, false
	}
	size, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Address: addr, Size: size, Name: parts[2]}, true
}

// ParseIndexEntry parses a single index line without its trailing newline.
func ParseIndexEntry(line string) (IndexEntry, bool) {
	addr, file, ok := strings.Cut(line, " ")
	if !ok || file == "" {
		return IndexEntry{}, false
	}
	a, err := strconv.ParseUint(addr, 16, 64)
	if err != nil {
		return IndexEntry{}, false
	}
	return IndexEntry{Address: a, File: file}, true
}

// Read parses a perf map. Malformed lines are skipped, as perf does.
func Read(r io.Reader) ([]Entry, error) {
	var res []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if e, ok := ParseEntry(scanner.Text()); ok {
			res = append(res, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading perf map: %w", err)
	}
	return res, nil
}

// ReadIndex parses a dump directory index.
func ReadIndex(r io.Reader) ([]IndexEntry, error) {
	var res []IndexEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if e, ok := ParseIndexEntry(scanner.Text()); ok {
			res = append(res, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading index: %w", err)
	}
	return res, nil
}

// Map is a perf map sorted for address lookups.
type Map struct {
	entries []Entry
}

func NewMap(entries []Entry) *Map {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})
	return &Map{entries: sorted}
}

// Resolve finds the entry whose range contains addr. An entry without a size
// covers every address up to the next entry.
func (m *Map) Resolve(addr uint64) (Entry, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Address > addr
	})
	if i == 0 {
		return Entry{}, false
	}
	e := m.entries[i-1]
	if e.Size == 0 || addr < e.Address+e.Size {
		return e, true
	}
	return Entry{}, false
}

func (m *Map) Len() int { return len(m.entries) }

func (m *Map) Entries() []Entry { return m.entries }

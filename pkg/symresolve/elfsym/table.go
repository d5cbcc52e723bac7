// Package elfsym loads function symbols from ELF files and resolves
// file-relative addresses against them.
package elfsym

import (
	"sort"
)

// Symbol is a function symbol with its file-relative start address. Name is
// the raw, possibly mangled, symbol name.
type Symbol struct {
	Value uint64
	Size  uint64
	Name  string
}

func (s Symbol) contains(addr uint64) bool {
	if addr < s.Value {
		return false
	}
	return s.Size == 0 || addr < s.Value+s.Size
}

// Table is an immutable, address-sorted symbol table.
type Table struct {
	symbols []Symbol
	source  string
}

// NewTable sorts symbols by address. When two symbols share an address the
// one with a known size wins, then the shorter name, so that aliases such as
// "memcpy" and "__memcpy_avx_unaligned" resolve deterministically.
func NewTable(source string, symbols []Symbol) *Table {
	sort.Slice(symbols, func(i, j int) bool {
		a, b := symbols[i], symbols[j]
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		if (a.Size == 0) != (b.Size == 0) {
			return a.Size != 0
		}
		if len(a.Name) != len(b.Name) {
			return len(a.Name) < len(b.Name)
		}
		return a.Name < b.Name
	})
	dedup := symbols[:0]
	for _, s := range symbols {
		if len(dedup) > 0 && dedup[len(dedup)-1].Value == s.Value {
			continue
		}
		dedup = append(dedup, s)
	}
	return &Table{symbols: dedup, source: source}
}

// Resolve returns the symbol containing the file-relative address addr: the
// closest symbol starting at or below addr whose extent, when known, covers
// addr. A symbol without a size covers every address up to the next symbol.
func (t *Table) Resolve(addr uint64) (Symbol, bool) {
	if len(t.symbols) == 0 || addr < t.symbols[0].Value {
		return Symbol{}, false
	}
	i := sort.Search(len(t.symbols), func(i int) bool {
		return addr < t.symbols[i].Value
	})
	s := t.symbols[i-1]
	if !s.contains(addr) {
		return Symbol{}, false
	}
	return s, true
}

func (t *Table) Len() int { return len(t.symbols) }

// Source is the path the table was loaded from.
func (t *Table) Source() string { return t.source }

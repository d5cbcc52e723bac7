package emission

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
)

// ELFObject adapts an ELF image whose sections were placed in memory by a
// loader. It implements both Object and LoadedObject.
type ELFObject struct {
	size    int
	symbols []Symbol
	addrs   map[string]uint64
}

// NewELFObject parses data and computes symbol load addresses from the
// placement of each section, given by name in sectionAddrs. Symbols of
// sections missing from sectionAddrs have no load address.
func NewELFObject(data []byte, sectionAddrs map[string]uint64) (*ELFObject, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse emitted object: %w", err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("read emitted object symbols: %w", err)
	}

	o := &ELFObject{
		size:    len(data),
		symbols: make([]Symbol, 0, len(syms)),
		addrs:   make(map[string]uint64, len(syms)),
	}
	for _, s := range syms {
		sym := Symbol{Name: s.Name, Size: s.Size}
		idx := int(s.Section)
		if s.Section == elf.SHN_UNDEF || s.Section >= elf.SHN_LORESERVE || idx >= len(f.Sections) {
			o.symbols = append(o.symbols, sym)
			continue
		}
		sec := f.Sections[idx]
		sym.Section = sec.Name
		sym.Executable = sec.Flags&elf.SHF_EXECINSTR != 0
		if elf.ST_TYPE(s.Info) == elf.STT_SECTION {
			sym.SectionSymbol = true
			if sym.Name == "" {
				sym.Name = sec.Name
			}
		}
		o.symbols = append(o.symbols, sym)

		base, ok := sectionAddrs[sec.Name]
		if _, seen := o.addrs[sym.Name]; !ok || seen {
			continue
		}
		// relocatable objects have zero section addresses and section
		// relative symbol values
		o.addrs[sym.Name] = base + s.Value - sec.Addr
	}
	return o, nil
}

func (o *ELFObject) Symbols() ([]Symbol, error) { return o.symbols, nil }

func (o *ELFObject) Size() int { return o.size }

func (o *ELFObject) SymbolLoadAddress(name string) uint64 { return o.addrs[name] }

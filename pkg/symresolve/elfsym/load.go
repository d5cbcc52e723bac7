package elfsym

import (
	"bytes"
	"debug/elf"
	stderrors "errors"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

var ErrNoSymbols = stderrors.New("no function symbols")

// Image is the part of an ELF file needed to map runtime addresses back to
// file-relative ones.
type Image struct {
	Type  elf.Type
	Progs []elf.ProgHeader
}

type Options struct {
	// MiniDebugInfo enables reading the xz-compressed .gnu_debugdata
	// section found in stripped distribution binaries.
	MiniDebugInfo bool
}

// Open loads the function symbols of the ELF file at path.
func Open(path string, opts Options) (*Table, *Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Load(path, f, opts)
}

// Load reads .symtab and .dynsym from r, and .gnu_debugdata when enabled.
func Load(source string, r io.ReaderAt, opts Options) (*Table, *Image, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse elf %s", source)
	}
	defer ef.Close()

	img := &Image{Type: ef.Type}
	for _, p := range ef.Progs {
		img.Progs = append(img.Progs, p.ProgHeader)
	}

	syms := functionSymbols(ef)
	if opts.MiniDebugInfo {
		mini, err := miniDebugInfoSymbols(ef)
		if err != nil && !stderrors.Is(err, ErrNoSymbols) {
			return nil, nil, errors.Wrapf(err, "read minidebuginfo of %s", source)
		}
		syms = append(syms, mini...)
	}
	if len(syms) == 0 {
		return nil, img, ErrNoSymbols
	}
	return NewTable(source, syms), img, nil
}

func functionSymbols(ef *elf.File) []Symbol {
	var res []Symbol
	// missing tables are not an error: stripped files often keep only .dynsym
	if syms, err := ef.Symbols(); err == nil {
		res = appendFunctions(res, syms)
	}
	if syms, err := ef.DynamicSymbols(); err == nil {
		res = appendFunctions(res, syms)
	}
	return res
}

func appendFunctions(dst []Symbol, syms []elf.Symbol) []Symbol {
	for _, s := range syms {
		typ := elf.ST_TYPE(s.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_GNU_IFUNC {
			continue
		}
		if s.Value == 0 || s.Name == "" || s.Section == elf.SHN_UNDEF {
			continue
		}
		dst = append(dst, Symbol{Value: s.Value, Size: s.Size, Name: s.Name})
	}
	return dst
}

func miniDebugInfoSymbols(ef *elf.File) ([]Symbol, error) {
	sec := ef.Section(".gnu_debugdata")
	if sec == nil {
		return nil, ErrNoSymbols
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	xr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var uncompressed bytes.Buffer
	if _, err := io.Copy(&uncompressed, xr); err != nil {
		return nil, err
	}
	inner, err := elf.NewFile(bytes.NewReader(uncompressed.Bytes()))
	if err != nil {
		return nil, err
	}
	defer inner.Close()
	return functionSymbols(inner), nil
}

const pageMask = 0xfff

// LoadBase computes the value to subtract from a runtime address inside a
// file mapping to obtain a file-relative address. start and offset come from
// the mapping's /proc/<pid>/maps entry.
func (img *Image) LoadBase(start uint64, offset uint64) (uint64, bool) {
	if img.Type == elf.ET_EXEC {
		return 0, true
	}
	for _, p := range img.Progs {
		if p.Type != elf.PT_LOAD || p.Flags&elf.PF_X == 0 {
			continue
		}
		if offset < p.Off&^pageMask || offset >= p.Off+p.Filesz {
			continue
		}
		return start - (p.Vaddr - p.Off + offset), true
	}
	return 0, false
}

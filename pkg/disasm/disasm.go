// Package disasm decodes the code files of a perf map dump directory.
package disasm

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/grafana/jitsym/pkg/perfmap"
)

type Arch string

const (
	AMD64 Arch = "amd64"
	ARM64 Arch = "arm64"
)

var Archs = []string{string(AMD64), string(ARM64)}

// Inst is a decoded instruction. Undecodable bytes become one ".byte" Inst
// each.
type Inst struct {
	Addr uint64
	Raw  []byte
	Text string
}

// SymbolLookup names branch targets. It returns the symbol and its start.
type SymbolLookup func(addr uint64) (name string, base uint64)

// MapLookup resolves branch targets against a perf map.
func MapLookup(m *perfmap.Map) SymbolLookup {
	return func(addr uint64) (string, uint64) {
		e, ok := m.Resolve(addr)
		if !ok {
			return "", 0
		}
		return e.Name, e.Address
	}
}

// Decode disassembles code loaded at base.
func Decode(arch Arch, code []byte, base uint64, symbols SymbolLookup) ([]Inst, error) {
	switch arch {
	case AMD64:
		return decodeAMD64(code, base, symbols), nil
	case ARM64:
		return decodeARM64(code, base), nil
	}
	return nil, fmt.Errorf("unsupported architecture %q", arch)
}

func decodeAMD64(code []byte, base uint64, symbols SymbolLookup) []Inst {
	lookup := func(uint64) (string, uint64) { return "", 0 }
	if symbols != nil {
		lookup = symbols
	}
	res := make([]Inst, 0, len(code)/4)
	for off := 0; off < len(code); {
		pc := base + uint64(off)
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			res = append(res, badByte(pc, code[off]))
			off++
			continue
		}
		res = append(res, Inst{
			Addr: pc,
			Raw:  code[off : off+inst.Len],
			Text: x86asm.GNUSyntax(inst, pc, lookup),
		})
		off += inst.Len
	}
	return res
}

func decodeARM64(code []byte, base uint64) []Inst {
	res := make([]Inst, 0, len(code)/4)
	off := 0
	for ; off+4 <= len(code); off += 4 {
		pc := base + uint64(off)
		raw := code[off : off+4]
		inst, err := arm64asm.Decode(raw)
		var text string
		if err != nil {
			text = fmt.Sprintf(".word 0x%02x%02x%02x%02x", raw[3], raw[2], raw[1], raw[0])
		} else {
			text = arm64asm.GNUSyntax(inst)
		}
		res = append(res, Inst{Addr: pc, Raw: raw, Text: text})
	}
	for ; off < len(code); off++ {
		res = append(res, badByte(base+uint64(off), code[off]))
	}
	return res
}

func badByte(pc uint64, b byte) Inst {
	return Inst{Addr: pc, Raw: []byte{b}, Text: fmt.Sprintf(".byte 0x%02x", b)}
}

// Function is the disassembly of one dumped code file.
type Function struct {
	Address uint64
	Name    string
	File    string
	Insts   []Inst
}

// DecodeDir disassembles every file listed in the index of a dump directory.
// Names are taken from names when given, from the file names otherwise.
func DecodeDir(fs afero.Fs, dir string, arch Arch, names *perfmap.Map) ([]Function, error) {
	f, err := fs.Open(filepath.Join(dir, "index.txt"))
	if err != nil {
		return nil, err
	}
	index, err := perfmap.ReadIndex(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("read dump index: %w", err)
	}

	var symbols SymbolLookup
	if names != nil {
		symbols = MapLookup(names)
	}
	res := make([]Function, 0, len(index))
	for _, e := range index {
		code, err := afero.ReadFile(fs, filepath.Join(dir, e.File))
		if err != nil {
			return nil, err
		}
		insts, err := Decode(arch, code, e.Address, symbols)
		if err != nil {
			return nil, err
		}
		name := e.File
		if names != nil {
			if m, ok := names.Resolve(e.Address); ok && m.Address == e.Address {
				name = m.Name
			}
		}
		res = append(res, Function{Address: e.Address, Name: name, File: e.File, Insts: insts})
	}
	return res, nil
}

// Format writes fn in an objdump-like layout.
func Format(w io.Writer, fn Function) error {
	if _, err := fmt.Fprintf(w, "%016x <%s>:\n", fn.Address, fn.Name); err != nil {
		return err
	}
	var hex strings.Builder
	for _, inst := range fn.Insts {
		hex.Reset()
		for i, b := range inst.Raw {
			if i > 0 {
				hex.WriteByte(' ')
			}
			fmt.Fprintf(&hex, "%02x", b)
		}
		if _, err := fmt.Fprintf(w, "%8x:\t%-24s\t%s\n", inst.Addr, hex.String(), inst.Text); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

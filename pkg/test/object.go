package test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	// foo: push %rbp; mov %rsp,%rbp; nops; ret
	fooCode = append(append([]byte{0x55, 0x48, 0x89, 0xe5}, bytes.Repeat([]byte{0x90}, 11)...), 0xc3)
	// bar: xor %eax,%eax; nops; ret
	barCode = append(append([]byte{0x31, 0xc0}, bytes.Repeat([]byte{0x90}, 5)...), 0xc3)
)

type objectSection struct {
	name  string
	flags elf.SectionFlag
	data  []byte
	align uint64
}

type objectSymbol struct {
	name    string
	typ     elf.SymType
	bind    elf.SymBind
	section int
	value   uint64
	size    uint64
}

type stringTable struct {
	buf     []byte
	offsets map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{buf: []byte{0}, offsets: map[string]uint32{"": 0}}
}

func (t *stringTable) add(s string) uint32 {
	if off, ok := t.offsets[s]; ok {
		return off
	}
	off := uint32(len(t.buf))
	t.buf = append(append(t.buf, s...), 0)
	t.offsets[s] = off
	return off
}

// RelocatableObject builds an x86-64 ET_REL object with two functions in
// .text, one variable in .data and one undefined reference.
func RelocatableObject(t testing.TB) []byte {
	t.Helper()
	text := append(append([]byte{}, fooCode...), barCode...)
	return buildObject(t, []objectSection{
		{name: ".text", flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: text, align: 16},
		{name: ".data", flags: elf.SHF_ALLOC | elf.SHF_WRITE, data: make([]byte, 8), align: 8},
	}, []objectSymbol{
		{typ: elf.STT_SECTION, bind: elf.STB_LOCAL, section: 1},
		{name: "foo", typ: elf.STT_FUNC, bind: elf.STB_GLOBAL, section: 1, size: uint64(len(fooCode))},
		{name: "bar", typ: elf.STT_FUNC, bind: elf.STB_GLOBAL, section: 1, value: uint64(len(fooCode)), size: uint64(len(barCode))},
		{name: "counter", typ: elf.STT_OBJECT, bind: elf.STB_GLOBAL, section: 2, size: 8},
		{name: "extern_fn", typ: elf.STT_NOTYPE, bind: elf.STB_GLOBAL},
	})
}

// FunctionSectionsObject builds the same functions as RelocatableObject, laid
// out the way -ffunction-sections does: an empty .text, then one section per
// function, each with its own section symbol at the function's address.
func FunctionSectionsObject(t testing.TB) []byte {
	t.Helper()
	return buildObject(t, []objectSection{
		{name: ".text", flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, align: 1},
		{name: ".text.foo", flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: fooCode, align: 16},
		{name: ".text.unlikely.bar", flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: barCode, align: 16},
		{name: ".data", flags: elf.SHF_ALLOC | elf.SHF_WRITE, data: make([]byte, 8), align: 8},
	}, []objectSymbol{
		{typ: elf.STT_SECTION, bind: elf.STB_LOCAL, section: 1},
		{typ: elf.STT_SECTION, bind: elf.STB_LOCAL, section: 2},
		{typ: elf.STT_SECTION, bind: elf.STB_LOCAL, section: 3},
		{typ: elf.STT_SECTION, bind: elf.STB_LOCAL, section: 4},
		{name: "foo", typ: elf.STT_FUNC, bind: elf.STB_GLOBAL, section: 2, size: uint64(len(fooCode))},
		{name: "bar", typ: elf.STT_FUNC, bind: elf.STB_GLOBAL, section: 3, size: uint64(len(barCode))},
		{name: "counter", typ: elf.STT_OBJECT, bind: elf.STB_GLOBAL, section: 4, size: 8},
	})
}

// buildObject lays out sections in order after the header, then .symtab,
// .strtab, .shstrtab and the section header table. Section indexes of
// symbols count from 1.
func buildObject(t testing.TB, sections []objectSection, symbols []objectSymbol) []byte {
	t.Helper()
	const (
		hdrSize = 64
		symSize = 24
		shSize  = 64
	)
	strtab, shstrtab := newStringTable(), newStringTable()

	syms := make([]elf.Sym64, 0, len(symbols)+1)
	syms = append(syms, elf.Sym64{})
	locals := uint32(1)
	for _, s := range symbols {
		if s.bind == elf.STB_LOCAL {
			locals++
		}
		syms = append(syms, elf.Sym64{
			Name:  strtab.add(s.name),
			Info:  elf.ST_INFO(s.bind, s.typ),
			Shndx: uint16(s.section),
			Value: s.value,
			Size:  s.size,
		})
	}

	var body bytes.Buffer
	off := func() uint64 { return hdrSize + uint64(body.Len()) }
	align := func(a uint64) {
		for a > 1 && off()%a != 0 {
			body.WriteByte(0)
		}
	}

	headers := []elf.Section64{{}}
	for _, s := range sections {
		align(s.align)
		headers = append(headers, elf.Section64{
			Name:      shstrtab.add(s.name),
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(s.flags),
			Off:       off(),
			Size:      uint64(len(s.data)),
			Addralign: s.align,
		})
		body.Write(s.data)
	}

	symtabIdx := len(headers)
	align(8)
	headers = append(headers, elf.Section64{
		Name:      shstrtab.add(".symtab"),
		Type:      uint32(elf.SHT_SYMTAB),
		Off:       off(),
		Size:      uint64(len(syms) * symSize),
		Link:      uint32(symtabIdx + 1),
		Info:      locals,
		Addralign: 8,
		Entsize:   symSize,
	})
	require.NoError(t, binary.Write(&body, binary.LittleEndian, syms))

	headers = append(headers, elf.Section64{
		Name:      shstrtab.add(".strtab"),
		Type:      uint32(elf.SHT_STRTAB),
		Off:       off(),
		Size:      uint64(len(strtab.buf)),
		Addralign: 1,
	})
	body.Write(strtab.buf)

	shstrtabName := shstrtab.add(".shstrtab")
	headers = append(headers, elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       off(),
		Size:      uint64(len(shstrtab.buf)),
		Addralign: 1,
	})
	body.Write(shstrtab.buf)
	align(8)

	hdr := elf.Header64{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     off(),
		Ehsize:    hdrSize,
		Shentsize: shSize,
		Shnum:     uint16(len(headers)),
		Shstrndx:  uint16(len(headers) - 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	buf.Write(body.Bytes())
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, headers))
	return buf.Bytes()
}

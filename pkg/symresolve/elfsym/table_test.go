package elfsym

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableResolve(t *testing.T) {
	tab := NewTable("test", []Symbol{
		{Value: 0x1300, Name: "sizeless"},
		{Value: 0x1000, Size: 0x100, Name: "first"},
		{Value: 0x1200, Size: 0x80, Name: "second"},
		{Value: 0x1200, Size: 0x80, Name: "second_alias_long"},
	})
	require.Equal(t, 3, tab.Len())
	require.Equal(t, "test", tab.Source())

	testcases := []struct {
		expected string
		addr     uint64
	}{
		{"", 0xef},
		{"first", 0x1000},
		{"first", 0x10ff},
		{"", 0x1100},
		{"second", 0x1200},
		{"second", 0x127f},
		{"", 0x1280},
		{"sizeless", 0x1300},
		{"sizeless", 0x4000},
	}
	for _, tc := range testcases {
		sym, ok := tab.Resolve(tc.addr)
		if tc.expected == "" {
			require.False(t, ok, "%x", tc.addr)
			continue
		}
		require.True(t, ok, "%x", tc.addr)
		require.Equal(t, tc.expected, sym.Name)
	}
}

func TestTableEmpty(t *testing.T) {
	_, ok := NewTable("empty", nil).Resolve(0x1000)
	require.False(t, ok)
}

func TestLoadBase(t *testing.T) {
	pie := &Image{
		Type: elf.ET_DYN,
		Progs: []elf.ProgHeader{
			{Type: elf.PT_LOAD, Flags: elf.PF_R, Off: 0, Vaddr: 0, Filesz: 0x800},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Off: 0x1000, Vaddr: 0x1000, Filesz: 0x5000},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Off: 0x6000, Vaddr: 0x7000, Filesz: 0x100},
		},
	}
	base, ok := pie.LoadBase(0x7f0000001000, 0x1000)
	require.True(t, ok)
	require.Equal(t, uint64(0x7f0000000000), base)

	// mapping offset not covered by an executable segment
	_, ok = pie.LoadBase(0x7f0000006000, 0x6000)
	require.False(t, ok)

	unaligned := &Image{
		Type: elf.ET_DYN,
		Progs: []elf.ProgHeader{
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Off: 0x1040, Vaddr: 0x201040, Filesz: 0x3000},
		},
	}
	base, ok = unaligned.LoadBase(0x555500001000, 0x1000)
	require.True(t, ok)
	require.Equal(t, uint64(0x555500001000-0x201000), base)

	exec := &Image{Type: elf.ET_EXEC}
	base, ok = exec.LoadBase(0x400000, 0)
	require.True(t, ok)
	require.Equal(t, uint64(0), base)
}

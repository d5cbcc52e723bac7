package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/jitsym/pkg/symresolve"
	"github.com/grafana/jitsym/pkg/test"
)

func testContext() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	return withOutput(context.Background(), &buf), &buf
}

func TestDemangleCmd(t *testing.T) {
	conf := defaultConfig()
	ctx, out := testContext()
	require.NoError(t, demangleNamesCmd(ctx, conf, []string{"_ZN3foo3barEv", "main"}, nil))
	require.Equal(t, "foo::bar()\nmain\n", out.String())

	conf.Resolver.Demangle = symresolve.DemangleSimplified
	ctx, out = testContext()
	require.NoError(t, demangleNamesCmd(ctx, conf, nil, strings.NewReader("_ZN3foo3barIiEEvT_\nnot_mangled\n")))
	require.Equal(t, "foo::bar\nnot_mangled\n", out.String())
}

func TestPerfMapShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf-1.map")
	require.NoError(t, os.WriteFile(path, []byte("2000 10 _ZN3foo3barEv\n1000 40 jit_fn\n"), 0o644))

	ctx, out := testContext()
	require.NoError(t, perfMapShow(ctx, defaultConfig(), &perfMapShowParams{file: path}))
	require.Equal(t, "1000 40 jit_fn\n2000 10 foo::bar()\n", out.String())

	ctx, out = testContext()
	require.NoError(t, perfMapShow(ctx, defaultConfig(), &perfMapShowParams{file: path, raw: true, addrs: []string{"0x2008"}}))
	require.Equal(t, "2000 10 _ZN3foo3barEv\n", out.String())

	ctx, _ = testContext()
	require.Error(t, perfMapShow(ctx, defaultConfig(), &perfMapShowParams{file: path, addrs: []string{"3000"}}))
	require.Error(t, perfMapShow(ctx, defaultConfig(), &perfMapShowParams{file: path, addrs: []string{"xyz"}}))
}

func TestParseAddress(t *testing.T) {
	for in, expected := range map[string]uint64{
		"1000":       0x1000,
		"0x7fffabcd": 0x7fffabcd,
		"0XFF":       0xff,
	} {
		addr, err := parseAddress(in)
		require.NoError(t, err)
		require.Equal(t, expected, addr)
	}
	_, err := parseAddress("0xzz")
	require.Error(t, err)
}

func TestEmit(t *testing.T) {
	for name, build := range map[string]func(testing.TB) []byte{
		"text":              test.RelocatableObject,
		"function sections": test.FunctionSectionsObject,
	} {
		t.Run(name, func(t *testing.T) {
			testEmit(t, build(t))
		})
	}
}

func testEmit(t *testing.T, data []byte) {
	dir := t.TempDir()
	object := filepath.Join(dir, "jit.o")
	require.NoError(t, os.WriteFile(object, data, 0o644))

	conf := defaultConfig()
	conf.PerfMap.PerfMapPath = filepath.Join(dir, "perf-%d.map")
	conf.PerfMap.DumpDir = filepath.Join(dir, "dump")

	ctx, out := testContext()
	require.NoError(t, emit(ctx, conf, &emitParams{object: object, disasm: true}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	require.True(t, strings.HasSuffix(lines[0], " 10 foo"), lines[0])
	require.True(t, strings.HasSuffix(lines[1], " 8 bar"), lines[1])
	require.Contains(t, out.String(), "<foo>:")
	require.Contains(t, out.String(), "48 89 e5")

	perfMap, err := os.ReadFile(conf.PerfMap.PerfMapFile(os.Getpid()))
	require.NoError(t, err)
	require.Equal(t, lines[:2], strings.Split(strings.TrimSpace(string(perfMap)), "\n"))

	foo, err := os.ReadFile(filepath.Join(conf.PerfMap.DumpDir, "foo"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x55, 0x48, 0x89, 0xe5}, foo[:4])
	require.Len(t, foo, 16)
}

func TestResolveSelf(t *testing.T) {
	if _, err := symresolve.NewProcResolver(nil, symresolve.DefaultConfig(), nil); err != nil {
		t.Skip("process resolver not supported:", err)
	}
	pc := reflect.ValueOf(parseAddress).Pointer()

	ctx, out := testContext()
	err := resolve(ctx, defaultConfig(), &resolveParams{addrs: []string{"0x" + strconv.FormatUint(uint64(pc), 16)}, raw: true})
	require.NoError(t, err)
	require.Contains(t, out.String(), "main.parseAddress")

	ctx, out = testContext()
	require.NoError(t, resolve(ctx, defaultConfig(), &resolveParams{addrs: []string{"10"}, raw: true}))
	require.Equal(t, "10 <unknown>\n", out.String())
}

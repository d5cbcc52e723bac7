package funcaddr

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/jitsym/pkg/ir"
	"github.com/grafana/jitsym/pkg/symresolve"
	"github.com/grafana/jitsym/pkg/test"
	"github.com/grafana/jitsym/pkg/test/mocks/mocksymresolve"
)

type fakeMemory map[uint64][]byte

func (m fakeMemory) ReadMemory(addr, size uint64) ([]byte, error) {
	code, ok := m[addr]
	if !ok {
		return nil, fmt.Errorf("no memory at %#x", addr)
	}
	if uint64(len(code)) < size {
		return code, nil
	}
	return code[:size], nil
}

func newTestRegistry(t *testing.T, resolver symresolve.Resolver, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{
		WithFs(afero.NewMemMapFs()),
		WithPid(1234),
		WithMemoryReader(fakeMemory{}),
	}, opts...)
	r, err := New(test.NewTestingLogger(t), DefaultConfig(), resolver, prometheus.NewRegistry(), opts...)
	require.NoError(t, err)
	return r
}

func TestRegisteredFunction(t *testing.T) {
	// the resolver has no expectations: any call fails the test
	resolver := mocksymresolve.NewMockResolver(t)
	r := newTestRegistry(t, resolver)

	require.NoError(t, r.RegisterFunction("foo", 0x1000, 64, ir.FuncRef{}))

	def, ok := r.LookupDefinition(0x1000)
	require.False(t, ok)
	require.True(t, def.IsZero())

	name, ok := r.FuncNameAtAddress(0x1000, false)
	require.True(t, ok)
	require.Equal(t, "foo", name)

	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.registeredFunctions))
}

func TestRegisteredDefinition(t *testing.T) {
	m := ir.NewModule("test")
	ref, err := m.Define("compiled_fn")
	require.NoError(t, err)

	r := newTestRegistry(t, mocksymresolve.NewMockResolver(t))
	require.NoError(t, r.RegisterFunction("compiled_fn", 0x1000, 16, ref))

	def, ok := r.LookupDefinition(0x1000)
	require.True(t, ok)
	require.Equal(t, ref, def)
	require.Equal(t, 1, m.Len())
}

func TestRegisteredDefinitionErased(t *testing.T) {
	m := ir.NewModule("test")
	ref, err := m.Define("short_lived")
	require.NoError(t, err)

	r := newTestRegistry(t, mocksymresolve.NewMockResolver(t))
	require.NoError(t, r.RegisterFunction("short_lived", 0x1000, 16, ref))
	require.True(t, m.Erase("short_lived"))

	def, ok := r.LookupDefinition(0x1000)
	require.False(t, ok)
	require.Equal(t, ref, def)

	// the record itself stays known
	name, ok := r.FuncNameAtAddress(0x1000, false)
	require.True(t, ok)
	require.Equal(t, "short_lived", name)
}

func TestDuplicateAddress(t *testing.T) {
	r := newTestRegistry(t, symresolve.Nop{})

	require.NoError(t, r.RegisterFunction("foo", 0x1000, 64, ir.FuncRef{}))
	err := r.RegisterFunction("bar", 0x1000, 32, ir.FuncRef{})
	require.ErrorIs(t, err, ErrDuplicateAddress)

	name, ok := r.FuncNameAtAddress(0x1000, false)
	require.True(t, ok)
	require.Equal(t, "foo", name, "the first registration is kept")
	require.Equal(t, uint64(64), r.Functions()[0].Size)
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.duplicateAddresses))

	require.Panics(t, func() { r.MustRegisterFunction("baz", 0x1000, 8, ir.FuncRef{}) })
	require.NotPanics(t, func() { r.MustRegisterFunction("baz", 0x2000, 8, ir.FuncRef{}) })

	require.ErrorIs(t, r.RegisterFunction("null", 0, 8, ir.FuncRef{}), ErrZeroAddress)
}

func TestNegativeCache(t *testing.T) {
	resolver := mocksymresolve.NewMockResolver(t)
	resolver.EXPECT().Resolve(uint64(0x2000)).Return("", false).Once()
	r := newTestRegistry(t, resolver)

	_, ok := r.LookupDefinition(0x2000)
	require.False(t, ok)
	_, ok = r.LookupDefinition(0x2000)
	require.False(t, ok)

	resolver.AssertNumberOfCalls(t, "Resolve", 1)
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.negativeCacheHits))
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.externalResolutions.WithLabelValues(resultUnresolved)))
	functions, negative := r.Len()
	require.Equal(t, 0, functions)
	require.Equal(t, 1, negative)
}

func TestExternalDefinition(t *testing.T) {
	m := ir.NewModule("runtime")
	memcpy, err := m.Declare("memcpy")
	require.NoError(t, err)

	resolver := mocksymresolve.NewMockResolver(t)
	resolver.EXPECT().Resolve(uint64(0x3000)).Return("memcpy", true).Once()
	r := newTestRegistry(t, resolver, WithFunctionLookup(m))

	for i := 0; i < 3; i++ {
		def, ok := r.LookupDefinition(0x3000)
		require.True(t, ok)
		require.Equal(t, memcpy, def)
	}
	resolver.AssertNumberOfCalls(t, "Resolve", 1)

	// cached with an unknown size, the name lookup does not resolve again
	fns := r.Functions()
	require.Len(t, fns, 1)
	require.Equal(t, uint64(0), fns[0].Size)
	name, ok := r.FuncNameAtAddress(0x3000, false)
	require.True(t, ok)
	require.Equal(t, "memcpy", name)
	resolver.AssertNumberOfCalls(t, "Resolve", 1)
}

func TestExternalNameWithoutDefinition(t *testing.T) {
	m := ir.NewModule("runtime")
	resolver := mocksymresolve.NewMockResolver(t)
	resolver.EXPECT().Resolve(uint64(0x4000)).Return("_ZN3foo3barEv", true).Times(3)
	resolver.EXPECT().Demangle("_ZN3foo3barEv").Return("foo::bar()").Once()
	r := newTestRegistry(t, resolver, WithFunctionLookup(m))

	_, ok := r.LookupDefinition(0x4000)
	require.False(t, ok)
	_, ok = r.LookupDefinition(0x4000)
	require.False(t, ok)
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.externalResolutions.WithLabelValues(resultNoIR)))

	// name lookups ignore the negative cache
	name, ok := r.FuncNameAtAddress(0x4000, false)
	require.True(t, ok)
	require.Equal(t, "_ZN3foo3barEv", name)
	name, ok = r.FuncNameAtAddress(0x4000, true)
	require.True(t, ok)
	require.Equal(t, "foo::bar()", name)

	resolver.AssertNumberOfCalls(t, "Resolve", 3)
	functions, negative := r.Len()
	require.Equal(t, 0, functions, "name lookups register nothing")
	require.Equal(t, 1, negative)
}

func TestErasedDefinition(t *testing.T) {
	m := ir.NewModule("runtime")
	_, err := m.Declare("gone")
	require.NoError(t, err)
	require.True(t, m.Erase("gone"))

	resolver := mocksymresolve.NewMockResolver(t)
	resolver.EXPECT().Resolve(uint64(0x5000)).Return("gone", true).Once()
	r := newTestRegistry(t, resolver, WithFunctionLookup(m))

	_, ok := r.LookupDefinition(0x5000)
	require.False(t, ok)
	_, ok = r.LookupDefinition(0x5000)
	require.False(t, ok)
}

func TestFuncNameAtAddress(t *testing.T) {
	r := newTestRegistry(t, symresolve.Nop{})
	require.NoError(t, r.RegisterFunction("_ZN3foo3barEv", 0x1000, 8, ir.FuncRef{}))
	require.NoError(t, r.RegisterFunction("plain_name", 0x2000, 8, ir.FuncRef{}))

	for _, tc := range []struct {
		addr     uint64
		demangle bool
		name     string
		ok       bool
	}{
		{addr: 0x1000, demangle: false, name: "_ZN3foo3barEv", ok: true},
		{addr: 0x1000, demangle: true, name: "foo::bar()", ok: true},
		{addr: 0x2000, demangle: true, name: "plain_name", ok: true},
		{addr: 0x3000, demangle: false, name: UnknownName, ok: false},
		{addr: 0x3000, demangle: true, name: UnknownName, ok: false},
	} {
		t.Run(fmt.Sprintf("%x/%v", tc.addr, tc.demangle), func(t *testing.T) {
			name, ok := r.FuncNameAtAddress(tc.addr, tc.demangle)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.name, name)
		})
	}
}

func TestFunctionsSorted(t *testing.T) {
	r := newTestRegistry(t, symresolve.Nop{})
	for _, addr := range []uint64{0x3000, 0x1000, 0x2000} {
		r.MustRegisterFunction(fmt.Sprintf("f%x", addr), addr, 4, ir.FuncRef{})
	}
	fns := r.Functions()
	require.Len(t, fns, 3)
	for i, addr := range []uint64{0x1000, 0x2000, 0x3000} {
		require.Equal(t, addr, fns[i].Address)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := ir.NewModule("runtime")
	_, err := m.Declare("shared")
	require.NoError(t, err)

	resolver := mocksymresolve.NewMockResolver(t)
	resolver.EXPECT().Resolve(uint64(0xdead0)).Return("shared", true).Maybe()
	resolver.EXPECT().Resolve(uint64(0xbeef0)).Return("", false).Maybe()
	r := newTestRegistry(t, resolver, WithFunctionLookup(m))

	const workers, perWorker = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				addr := uint64(0x100000 + (w*perWorker+i)*0x10)
				assert.NoError(t, r.RegisterFunction(fmt.Sprintf("f_%x", addr), addr, 0x10, ir.FuncRef{}))
				_, ok := r.FuncNameAtAddress(addr, false)
				assert.True(t, ok)
				_, ok = r.LookupDefinition(0xdead0)
				assert.True(t, ok)
				_, ok = r.LookupDefinition(0xbeef0)
				assert.False(t, ok)
			}
		}()
	}
	wg.Wait()

	functions, negative := r.Len()
	require.Equal(t, workers*perWorker+1, functions)
	require.Equal(t, 1, negative)
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DumpConcurrency = 0
	_, err := New(nil, cfg, nil, nil)
	require.Error(t, err)
}

package ir

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModuleLookup(t *testing.T) {
	m := NewModule("stdlib")
	ref, err := m.Define("boxInt")
	require.NoError(t, err)
	_, err = m.Declare("malloc")
	require.NoError(t, err)

	_, err = m.Define("boxInt")
	require.Error(t, err)

	got, ok := m.LookupFunction("boxInt")
	require.True(t, ok)
	require.Equal(t, ref.ID(), got.ID())

	fn, ok := got.Function()
	require.True(t, ok)
	require.Equal(t, "boxInt", fn.Name)
	require.False(t, fn.Declaration)

	decl, ok := m.LookupFunction("malloc")
	require.True(t, ok)
	fn, ok = decl.Function()
	require.True(t, ok)
	require.True(t, fn.Declaration)

	_, ok = m.LookupFunction("missing")
	require.False(t, ok)
	require.Equal(t, 2, m.Len())
}

func TestFuncRefErase(t *testing.T) {
	m := NewModule("jit")
	ref, err := m.Define("f")
	require.NoError(t, err)

	require.True(t, m.Erase("f"))
	require.False(t, m.Erase("f"))

	_, ok := ref.Function()
	require.False(t, ok)
	require.False(t, ref.IsZero())
	require.Equal(t, "<dead>#0", ref.String())

	// slots are not reused
	ref2, err := m.Define("f")
	require.NoError(t, err)
	require.Equal(t, FuncID(1), ref2.ID())
}

func TestFuncRefZero(t *testing.T) {
	var ref FuncRef
	require.True(t, ref.IsZero())
	_, ok := ref.Function()
	require.False(t, ok)
	require.Equal(t, "<none>", ref.String())
}

func TestFuncRefDoesNotKeepModuleAlive(t *testing.T) {
	ref := func() FuncRef {
		m := NewModule("tmp")
		r, err := m.Define("g")
		require.NoError(t, err)
		return r
	}()
	require.Eventually(t, func() bool {
		runtime.GC()
		_, ok := ref.Function()
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

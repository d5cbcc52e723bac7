//go:build linux

package symresolve

import (
	"os"
	"reflect"
	"testing"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

//go:noinline
func resolveMe(x int) int {
	return x*31 + 7
}

func newTestProcResolver(t *testing.T, reg prometheus.Registerer) (*ProcResolver, *Metrics) {
	t.Helper()
	metrics := NewMetrics(reg)
	r, err := NewProcResolver(log.NewLogfmtLogger(os.Stderr), DefaultConfig(), metrics)
	require.NoError(t, err)
	return r, metrics
}

func TestProcResolverSelf(t *testing.T) {
	r, _ := newTestProcResolver(t, nil)

	pc := uint64(reflect.ValueOf(resolveMe).Pointer())
	name, ok := r.Resolve(pc)
	require.True(t, ok)
	require.Equal(t, "github.com/grafana/jitsym/pkg/symresolve.resolveMe", name)

	// inside the function body, not only at its entry
	name, ok = r.Resolve(pc + 2)
	require.True(t, ok)
	require.Equal(t, "github.com/grafana/jitsym/pkg/symresolve.resolveMe", name)

	// go symbols are not mangled
	require.Equal(t, name, r.Demangle(name))
}

func TestProcResolverUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, metrics := newTestProcResolver(t, reg)

	_, ok := r.Resolve(0x10)
	require.False(t, ok)

	heap := make([]byte, 64)
	_, ok = r.Resolve(uint64(uintptr(unsafe.Pointer(&heap[0]))))
	require.False(t, ok)

	require.Equal(t, float64(2), testutil.ToFloat64(metrics.UnknownMappings))
}

func TestProcResolverOtherPid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pid = os.Getpid()
	r, err := NewProcResolver(nil, cfg, nil)
	require.NoError(t, err)

	name, ok := r.Resolve(uint64(reflect.ValueOf(resolveMe).Pointer()))
	require.True(t, ok)
	require.Equal(t, "github.com/grafana/jitsym/pkg/symresolve.resolveMe", name)
}

func TestProcResolverInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ElfCacheSize = 0
	_, err := NewProcResolver(nil, cfg, nil)
	require.Error(t, err)
}

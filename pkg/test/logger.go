package test

import (
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/log"
)

type testingWriter struct {
	t testing.TB

	mu   sync.Mutex
	done bool
}

func (w *testingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// t.Log panics once the test has returned
	if !w.done {
		w.t.Log(strings.TrimSuffix(string(p), "\n"))
	}
	return len(p), nil
}

// NewTestingLogger returns a logfmt logger writing to t.Log. Lines logged by
// goroutines outliving the test are dropped.
func NewTestingLogger(t testing.TB) log.Logger {
	w := &testingWriter{t: t}
	t.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})
	return log.NewSyncLogger(log.NewLogfmtLogger(w))
}

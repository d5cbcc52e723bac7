package funcaddr

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-kit/log/level"
)

// DumpOnSignal dumps the perf map every time one of sig is received, until
// ctx is done. A failed dump panics, as a partial profile is worse than none.
func (r *Registry) DumpOnSignal(ctx context.Context, sig ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig...)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-ch:
				level.Debug(r.logger).Log("msg", "dumping perf map", "signal", s)
				r.MustDumpPerfMap()
			}
		}
	}()
}

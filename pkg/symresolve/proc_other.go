//go:build !linux

package symresolve

import (
	"errors"

	"github.com/go-kit/log"
)

// ProcResolver is only available on linux.
type ProcResolver struct {
	Nop
}

func NewProcResolver(log.Logger, Config, *Metrics) (*ProcResolver, error) {
	return nil, errors.New("process symbol resolution is only supported on linux")
}

func (r *ProcResolver) Refresh() {}

package symresolve

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

type DemangleType string

const (
	DemangleNone       DemangleType = "none"
	DemangleSimplified DemangleType = "simplified"
	DemangleTemplates  DemangleType = "templates"
	DemangleFull       DemangleType = "full"
)

func (dt DemangleType) valid() bool {
	switch dt {
	case DemangleNone, DemangleSimplified, DemangleTemplates, DemangleFull:
		return true
	}
	return false
}

func (dt DemangleType) options() []demangle.Option {
	switch dt {
	case DemangleSimplified:
		return []demangle.Option{demangle.NoParams, demangle.NoEnclosingParams, demangle.NoTemplateParams}
	case DemangleTemplates:
		return []demangle.Option{demangle.NoParams, demangle.NoEnclosingParams}
	default:
		return []demangle.Option{demangle.NoClones}
	}
}

func (dt *DemangleType) String() string { return string(*dt) }

func (dt *DemangleType) Set(s string) error {
	v := DemangleType(s)
	if !v.valid() {
		return fmt.Errorf("unknown demangle style %q", s)
	}
	*dt = v
	return nil
}

// Demangler decodes C++ (Itanium ABI) and Rust symbol names. The zero value
// demangles in full.
type Demangler struct {
	Type DemangleType
}

func NewDemangler(dt DemangleType) Demangler {
	return Demangler{Type: dt}
}

func (d Demangler) Demangle(name string) string {
	if d.Type == DemangleNone {
		return name
	}
	res, err := demangle.ToString(name, d.Type.options()...)
	if err != nil {
		return name
	}
	return res
}

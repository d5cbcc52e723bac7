// Package ir holds the backend's view of intermediate-representation
// functions: a per-module function table and weak handles into it.
package ir

import (
	"fmt"
	"sync"
	"weak"
)

// FuncID is an index into a Module's function table.
type FuncID uint32

// Function is a single IR function known to the backend. Declarations are
// functions the backend knows by signature only, typically support-library
// routines that live in the host executable.
type Function struct {
	ID          FuncID
	Name        string
	Declaration bool
}

// Module is the backend's function table. It is safe for concurrent use.
type Module struct {
	name string

	mu     sync.RWMutex
	funcs  []*Function
	byName map[string]FuncID
}

func NewModule(name string) *Module {
	return &Module{
		name:   name,
		byName: make(map[string]FuncID),
	}
}

func (m *Module) Name() string { return m.name }

// Define adds a function with a body to the module.
func (m *Module) Define(name string) (FuncRef, error) {
	return m.add(name, false)
}

// Declare adds an external declaration to the module.
func (m *Module) Declare(name string) (FuncRef, error) {
	return m.add(name, true)
}

func (m *Module) add(name string, decl bool) (FuncRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[name]; ok {
		return FuncRef{}, fmt.Errorf("ir: function %q already exists in module %q", name, m.name)
	}
	id := FuncID(len(m.funcs))
	m.funcs = append(m.funcs, &Function{ID: id, Name: name, Declaration: decl})
	m.byName[name] = id
	return m.ref(id), nil
}

// Erase removes a function from the module. Handles to it stop resolving;
// its slot is never reused.
func (m *Module) Erase(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byName[name]
	if !ok {
		return false
	}
	delete(m.byName, name)
	m.funcs[id] = nil
	return true
}

// LookupFunction returns a handle to the function with exactly this name.
func (m *Module) LookupFunction(name string) (FuncRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	if !ok {
		return FuncRef{}, false
	}
	return m.ref(id), true
}

// Len returns the size of the function table, erased slots included.
func (m *Module) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.funcs)
}

func (m *Module) function(id FuncID) *Function {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.funcs) {
		return nil
	}
	return m.funcs[id]
}

func (m *Module) ref(id FuncID) FuncRef {
	return FuncRef{module: weak.Make(m), id: id, valid: true}
}

// FuncRef is a weak handle to a function in a Module. It does not keep the
// module alive; once the module is collected or the function erased, Function
// reports false. The zero value refers to nothing.
type FuncRef struct {
	module weak.Pointer[Module]
	id     FuncID
	valid  bool
}

// IsZero reports whether the handle was never bound to a function.
func (r FuncRef) IsZero() bool { return !r.valid }

func (r FuncRef) ID() FuncID { return r.id }

// Function dereferences the handle.
func (r FuncRef) Function() (*Function, bool) {
	if !r.valid {
		return nil, false
	}
	m := r.module.Value()
	if m == nil {
		return nil, false
	}
	fn := m.function(r.id)
	return fn, fn != nil
}

func (r FuncRef) String() string {
	if fn, ok := r.Function(); ok {
		return fmt.Sprintf("%s#%d", fn.Name, r.id)
	}
	if r.valid {
		return fmt.Sprintf("<dead>#%d", r.id)
	}
	return "<none>"
}

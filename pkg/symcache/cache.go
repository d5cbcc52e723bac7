// Package symcache stores what is known about native code addresses: exact
// address to FunctionRecord, plus a negative cache of addresses that were
// looked up without success.
//
// A Cache does no locking of its own. The owner serializes access.
package symcache

import (
	"errors"
	"fmt"

	"github.com/grafana/jitsym/pkg/ir"
)

var ErrDuplicateAddress = errors.New("duplicate function address")

// FunctionRecord describes one known code address. Records are immutable
// once inserted.
type FunctionRecord struct {
	Address uint64
	// Name is the raw symbol name, never demangled.
	Name string
	// Size is the extent of the code in bytes. Zero means unknown, which is
	// the case for every externally resolved symbol.
	Size uint64
	// Definition is a weak handle to the IR function the code belongs to.
	Definition ir.FuncRef
}

// HasDefinition reports whether the record is bound to an IR function.
func (r FunctionRecord) HasDefinition() bool {
	return !r.Definition.IsZero()
}

func (r FunctionRecord) String() string {
	return fmt.Sprintf("%x %x %s", r.Address, r.Size, r.Name)
}

type Cache struct {
	records  map[uint64]FunctionRecord
	negative map[uint64]struct{}
}

func New() *Cache {
	return &Cache{
		records:  make(map[uint64]FunctionRecord),
		negative: make(map[uint64]struct{}),
	}
}

// Insert adds a record. Code addresses are never reused, so an address that
// is already present is rejected with ErrDuplicateAddress and the existing
// record is left untouched.
func (c *Cache) Insert(rec FunctionRecord) error {
	if existing, ok := c.records[rec.Address]; ok {
		return fmt.Errorf("%w: %#x registered as %q, got %q", ErrDuplicateAddress, rec.Address, existing.Name, rec.Name)
	}
	c.records[rec.Address] = rec
	return nil
}

// Lookup returns the record for exactly this address.
func (c *Cache) Lookup(addr uint64) (FunctionRecord, bool) {
	rec, ok := c.records[addr]
	return rec, ok
}

func (c *Cache) IsKnownNegative(addr uint64) bool {
	_, ok := c.negative[addr]
	return ok
}

func (c *Cache) MarkNegative(addr uint64) {
	c.negative[addr] = struct{}{}
}

// Len returns the number of records.
func (c *Cache) Len() int { return len(c.records) }

// NegativeLen returns the number of negative entries.
func (c *Cache) NegativeLen() int { return len(c.negative) }

// Range calls f for every record in unspecified order until f returns false.
func (c *Cache) Range(f func(FunctionRecord) bool) {
	for _, rec := range c.records {
		if !f(rec) {
			return
		}
	}
}

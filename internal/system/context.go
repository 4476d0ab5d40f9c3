// Package system wires together the process-wide singletons a hart needs
// (bus, ASID allocator) behind one explicit value, per spec §5's
// "Process-wide singletons" design note: BUS and ASID_ALLOCATOR are
// constructed once and passed down by reference rather than held in raw
// mutable package globals, the same discipline the teacher applies to its
// VM context struct.
package system

import "github.com/rv32dbt/core/internal/guest"

// Context owns the singletons shared across every hart in one guest
// instance. Bus device registration happens once at construction and is
// read-only thereafter, per §5's bus discipline; Context adds no locking
// of its own because nothing mutates it past setup.
type Context struct {
	Bus  *guest.Bus
	ASID *guest.ASIDAllocator
}

// NewContext constructs an empty bus and ASID allocator. Callers register
// devices on Bus before creating any hart.
func NewContext() *Context {
	return &Context{
		Bus:  guest.NewBus(),
		ASID: guest.NewASIDAllocator(),
	}
}

// NewCPU creates one hart's CPU state wired to this context's shared bus
// and ASID allocator, per §5's "Thread-local CPU/CSR" note: every other
// piece of per-hart state (registers, CSR file, TLB) is created fresh here
// and never shared.
func (c *Context) NewCPU() *guest.CPU {
	return guest.NewCPU(c.Bus, c.ASID)
}

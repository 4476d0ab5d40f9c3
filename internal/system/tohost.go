package system

import (
	"errors"
	"fmt"

	"github.com/rv32dbt/core/internal/guest"
)

// ErrExit is returned by ToHostDevice once the guest has stored its exit
// protocol word, per spec §6's "tohost magic address" test-harness
// convention (ported from the riscv-tests ISA suite's tohost/fromhost ABI,
// the de facto standard this style of bare-metal guest image uses).
// Code is 0 for success; any other value is the guest's reported failure
// code.
type ErrExit struct {
	Code int
}

func (e *ErrExit) Error() string { return fmt.Sprintf("guest exited: code=%d", e.Code) }

// ToHostDevice is a single 32-bit word at a fixed guest physical address.
// A store of 1 signals success; a store of (code<<1)|1 signals failure
// with that code. Reads always return 0 (fromhost is never driven by this
// core, since no device ever posts anything back to the guest).
type ToHostDevice struct {
	base uint32
	exit error // non-nil once the guest has signaled exit
}

// NewToHostDevice registers a tohost word at addr.
func NewToHostDevice(addr uint32) *ToHostDevice {
	return &ToHostDevice{base: addr}
}

func (t *ToHostDevice) Range() (uint32, uint32) { return t.base, t.base + 4 }

func (t *ToHostDevice) Load(addr uint32, sizeBits int) (uint32, error) { return 0, nil }

func (t *ToHostDevice) Store(addr uint32, data uint32, sizeBits int) error {
	if data == 1 {
		t.exit = &ErrExit{Code: 0}
		return nil
	}
	if data&1 == 1 {
		t.exit = &ErrExit{Code: int(data >> 1)}
		return nil
	}
	return nil
}

func (t *ToHostDevice) TickCoreLocal() {}

func (t *ToHostDevice) TickAsync(*guest.CPU) (int, bool) { return 0, false }

func (t *ToHostDevice) GetPtr(addr uint32) (uintptr, bool) { return 0, false }

// Exited reports whether the guest has signaled an exit, and the reason.
func (t *ToHostDevice) Exited() (error, bool) {
	return t.exit, t.exit != nil
}

// IsExit reports whether err (as returned by Exited) is an *ErrExit.
func IsExit(err error) (*ErrExit, bool) {
	var e *ErrExit
	ok := errors.As(err, &e)
	return e, ok
}

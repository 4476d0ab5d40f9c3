// Package jitcore drives translation and execution of RV32 guest code
// against the internal/guest state, using internal/frontend to decode and
// internal/backend to emit host machine code, per spec §4.
package jitcore

import (
	"unsafe"

	"github.com/rv32dbt/core/internal/backend"
	"github.com/rv32dbt/core/internal/guest"
)

// Dispatch is the backend.HelperDispatchFunc bound to this hart at
// construction (BackendCore.SetHelperDispatch(h.Dispatch)). cpuPtr is the
// *guest.CPU the backend's reserved CPU-pointer register held live across
// the translated block's execution, reinterpreted here rather than
// threaded through as a typed pointer so this package stays the only place
// that needs to know the cast is safe. A method rather than a free
// function so a store that lands in a live gpfn can reach this hart's
// Insn Map / code page bookkeeping (see dispatchStore); every backend's
// helper trampoline still only ever holds one function value at a time,
// matching the single-hart-per-OS-thread model spec §5 assumes.
//
// Dispatch's return type is uintptr rather than uint32 purely so
// HelperFastmemAddrLoad/Store can hand back a full host pointer through the
// same trampoline every other helper op uses; the trampoline already
// carries a 64-bit value through the Go-ABI0 shim on both backends, so every
// narrower helper just widens its uint32 result on return.
func (h *Hart) Dispatch(cpuPtr uintptr, a, b uint32, op backend.HelperOp) uintptr {
	cpu := (*guest.CPU)(unsafe.Pointer(cpuPtr))
	switch {
	case op < backend.HelperLoadEnd:
		return uintptr(dispatchLoad(cpu, op, a))
	case op < backend.HelperStoreEnd:
		dispatchStore(cpu, h.gpfns, op, a, b)
		return 0
	case op < backend.HelperArithEnd:
		return uintptr(dispatchArith(op, a, b))
	case op < backend.HelperAMOEnd:
		return uintptr(dispatchAMO(cpu, h.gpfns, op, a, b))
	case op < backend.HelperCSREnd:
		return uintptr(dispatchCSR(cpu, op, uint16(a), b))
	case op < backend.HelperFastmemEnd:
		return dispatchFastmemAddr(cpu, op, a)
	case op < backend.HelperSetPCEnd:
		cpu.PC = a
		return 0
	default:
		dispatchPriv(cpu, op)
		return 0
	}
}

// translateCached consults the active TLB bank before falling back to a
// full MMU walk, inserting the walk's result on a miss so the next access to
// the same page is TLB-served, per spec §4.H: "Fastmem paths call into TLB
// first; on miss they take the slow helper path (MMU walk)". A TLB hit that
// lacks the write permission this access needs still falls through to
// Translate rather than being treated as a fault here, so the permission
// fault (or lack of one) is always decided by the one authority that knows
// the full page table entry.
func translateCached(cpu *guest.CPU, access int, vaddr uint32) (uint32, error) {
	if phys, writable, ok := cpu.TLB.Lookup(vaddr); ok {
		if access != guest.AccessWrite || writable {
			return phys, nil
		}
	}
	phys, err := cpu.MMU.Translate(cpu.Priv, vaddr, access)
	if err != nil {
		return 0, err
	}
	cpu.TLB.Insert(vaddr, phys, access == guest.AccessWrite)
	return phys, nil
}

// dispatchFastmemAddr backs HelperFastmemAddrLoad/Store: translate vaddr
// (TLB-cached) and hand back a dereferenceable host pointer for it, or 0 if
// none is available. A translation fault is deliberately left unraised
// here: the emitted fastmem sequence treats a zero return as "take the slow
// path", and the slow Helper{Load,Store} op re-translates vaddr itself and
// raises the fault there, so the guest sees exactly one fault rather than a
// spurious one from this probe.
func dispatchFastmemAddr(cpu *guest.CPU, op backend.HelperOp, vaddr uint32) uintptr {
	access := guest.AccessRead
	if op == backend.HelperFastmemAddrStore {
		access = guest.AccessWrite
	}
	phys, err := translateCached(cpu, access, vaddr)
	if err != nil {
		return 0
	}
	ptr, ok := cpu.Bus.GetPtr(phys)
	if !ok {
		return 0
	}
	return ptr
}

// raiseFault stashes a guest.Exception on the CPU for the exec core to pick
// up once the current block exits. Faults are recognized at block
// granularity rather than precisely at the faulting instruction, per
// DESIGN.md's documented precision trade-off.
func raiseFault(cpu *guest.CPU, err error) {
	if exc, ok := err.(*guest.Exception); ok {
		cpu.Exception = exc
	}
}

func dispatchLoad(cpu *guest.CPU, op backend.HelperOp, vaddr uint32) uint32 {
	var bits int
	var signed bool
	switch op {
	case backend.HelperLoad8:
		bits, signed = 8, true
	case backend.HelperLoad8U:
		bits, signed = 8, false
	case backend.HelperLoad16:
		bits, signed = 16, true
	case backend.HelperLoad16U:
		bits, signed = 16, false
	case backend.HelperLoad32:
		bits, signed = 32, false
	}
	phys, err := translateCached(cpu, guest.AccessRead, vaddr)
	if err != nil {
		raiseFault(cpu, err)
		return 0
	}
	val, err := cpu.Bus.Load(phys, bits)
	if err != nil {
		raiseFault(cpu, err)
		return 0
	}
	if signed {
		return uint32(signExtend(val, bits))
	}
	return val
}

func dispatchStore(cpu *guest.CPU, gpfns *gpfnSet, op backend.HelperOp, vaddr, val uint32) {
	bits := 32
	switch op {
	case backend.HelperStore8:
		bits = 8
	case backend.HelperStore16:
		bits = 16
	}
	phys, err := translateCached(cpu, guest.AccessWrite, vaddr)
	if err != nil {
		raiseFault(cpu, err)
		return
	}
	// A store to the address underlying an outstanding LR reservation
	// invalidates it. SC never comes through here: dispatchAMO performs
	// SC's store and clears the reservation itself.
	if cpu.ReservationValid && cpu.ReservationAddr == phys&^3 {
		cpu.ReservationValid = false
	}
	if err := cpu.Bus.Store(phys, val, bits); err != nil {
		raiseFault(cpu, err)
		return
	}
	// A store into a gpfn backing a live translation must invalidate it
	// before the issuing hart executes anything else out of that page,
	// per spec §4.K/§4.L. The actual code-page teardown happens back in
	// Hart.Step once CallJIT returns, never while still running inside
	// the block that triggered it.
	if gpfn := gpfnOf(phys); gpfns.present(gpfn) {
		cpu.Exception = guest.NewException(guest.CauseInvalidateJitBlock, gpfn)
	}
}

func signExtend(val uint32, bits int) int32 {
	shift := 32 - bits
	return int32(val<<shift) >> shift
}

func dispatchArith(op backend.HelperOp, a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)
	switch op {
	case backend.HelperMul:
		return a * b
	case backend.HelperMulh:
		return uint32((int64(sa) * int64(sb)) >> 32)
	case backend.HelperMulhu:
		return uint32((uint64(a) * uint64(b)) >> 32)
	case backend.HelperMulhsu:
		return uint32((int64(sa) * int64(uint64(b))) >> 32)
	case backend.HelperDiv:
		if b == 0 {
			return 0xffffffff
		}
		if a == 0x80000000 && b == 0xffffffff {
			return a // overflow: most-negative / -1 yields the dividend
		}
		return uint32(sa / sb)
	case backend.HelperDivu:
		if b == 0 {
			return 0xffffffff
		}
		return a / b
	case backend.HelperRem:
		if b == 0 {
			return a
		}
		if a == 0x80000000 && b == 0xffffffff {
			return 0
		}
		return uint32(sa % sb)
	case backend.HelperRemu:
		if b == 0 {
			return a
		}
		return a % b
	}
	return 0
}

func dispatchAMO(cpu *guest.CPU, gpfns *gpfnSet, op backend.HelperOp, addr, val uint32) uint32 {
	if op == backend.HelperLR {
		phys, err := translateCached(cpu, guest.AccessRead, addr)
		if err != nil {
			raiseFault(cpu, err)
			return 0
		}
		word, err := cpu.Bus.Load(phys, 32)
		if err != nil {
			raiseFault(cpu, err)
			return 0
		}
		cpu.ReservationValid = true
		cpu.ReservationAddr = phys &^ 3
		return word
	}
	if op == backend.HelperSC {
		phys, err := translateCached(cpu, guest.AccessWrite, addr)
		if err != nil {
			raiseFault(cpu, err)
			return 1 // failure
		}
		if !cpu.ReservationValid || cpu.ReservationAddr != phys&^3 {
			return 1 // failure, reservation lost
		}
		cpu.ReservationValid = false
		if err := cpu.Bus.Store(phys, val, 32); err != nil {
			raiseFault(cpu, err)
			return 1
		}
		if gpfn := gpfnOf(phys); gpfns.present(gpfn) {
			cpu.Exception = guest.NewException(guest.CauseInvalidateJitBlock, gpfn)
		}
		return 0 // success
	}

	phys, err := translateCached(cpu, guest.AccessWrite, addr)
	if err != nil {
		raiseFault(cpu, err)
		return 0
	}
	old, err := cpu.Bus.Load(phys, 32)
	if err != nil {
		raiseFault(cpu, err)
		return 0
	}
	var result uint32
	switch op {
	case backend.HelperAMOSwap:
		result = val
	case backend.HelperAMOAdd:
		result = old + val
	case backend.HelperAMOXor:
		result = old ^ val
	case backend.HelperAMOAnd:
		result = old & val
	case backend.HelperAMOOr:
		result = old | val
	case backend.HelperAMOMin:
		if int32(old) < int32(val) {
			result = old
		} else {
			result = val
		}
	case backend.HelperAMOMax:
		if int32(old) > int32(val) {
			result = old
		} else {
			result = val
		}
	case backend.HelperAMOMinu:
		if old < val {
			result = old
		} else {
			result = val
		}
	case backend.HelperAMOMaxu:
		if old > val {
			result = old
		} else {
			result = val
		}
	}
	if cpu.ReservationValid && cpu.ReservationAddr == phys&^3 {
		cpu.ReservationValid = false
	}
	if err := cpu.Bus.Store(phys, result, 32); err != nil {
		raiseFault(cpu, err)
		return 0
	}
	if gpfn := gpfnOf(phys); gpfns.present(gpfn) {
		cpu.Exception = guest.NewException(guest.CauseInvalidateJitBlock, gpfn)
	}
	return old
}

func dispatchCSR(cpu *guest.CPU, op backend.HelperOp, csr uint16, val uint32) uint32 {
	old, err := cpu.CSR.Read(csr, cpu.Priv)
	if err != nil {
		raiseFault(cpu, err)
		return 0
	}
	var newVal uint32
	switch op {
	case backend.HelperCSRRW:
		newVal = val
	case backend.HelperCSRRS:
		newVal = old | val
	case backend.HelperCSRRC:
		newVal = old &^ val
	}
	if err := cpu.CSR.Write(csr, cpu.Priv, newVal); err != nil {
		raiseFault(cpu, err)
		return 0
	}
	if csr == guest.CSRSatp {
		cpu.TLB.SwitchASID((newVal >> 22) & 0x1ff)
	}
	return old
}

func dispatchPriv(cpu *guest.CPU, op backend.HelperOp) {
	switch op {
	case backend.HelperECall:
		cause := guest.CauseEcallFromM
		switch cpu.Priv {
		case guest.PrivUser:
			cause = guest.CauseEcallFromU
		case guest.PrivSupervisor:
			cause = guest.CauseEcallFromS
		}
		cpu.Exception = guest.NewException(cause, 0)
	case backend.HelperEBreak:
		cpu.Exception = guest.NewException(guest.CauseBreakpoint, cpu.PC)
	case backend.HelperMret:
		cpu.Mret()
	case backend.HelperSret:
		cpu.Sret()
	case backend.HelperWFI:
		cpu.WFI = true
	case backend.HelperSFenceVMA:
		// Operand-less per the privileged-call ABI (see DESIGN.md): always
		// flushes the whole active bank rather than a single VPN, which is
		// always architecturally legal, just more conservative than
		// necessary for the single-address form.
		cpu.TLB.FlushAll()
	}
}

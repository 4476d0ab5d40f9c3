package backend

// HelperOp selectors for the fixed dispatch table every backend's helper
// trampoline reaches, per spec §4.D's "call to helper" primitive. Grouped
// by family so jitcore's Dispatch can range-test rather than switch on
// every value. Defined here, rather than in jitcore alongside Dispatch's
// implementation, because the frontend driver (which emits CallHelper(op)
// for a decoded instruction) needs these names too, and frontend already
// depends on backend for every other emitter-facing type; jitcore depends
// on frontend for the driver, so the constants can't live in jitcore
// without a frontend<->jitcore import cycle.
const (
	HelperLoad8 HelperOp = iota
	HelperLoad8U
	HelperLoad16
	HelperLoad16U
	HelperLoad32
	HelperLoadEnd

	HelperStore8
	HelperStore16
	HelperStore32
	HelperStoreEnd

	HelperMul
	HelperMulh
	HelperMulhu
	HelperMulhsu
	HelperDiv
	HelperDivu
	HelperRem
	HelperRemu
	HelperArithEnd

	HelperAMOSwap
	HelperAMOAdd
	HelperAMOXor
	HelperAMOAnd
	HelperAMOOr
	HelperAMOMin
	HelperAMOMax
	HelperAMOMinu
	HelperAMOMaxu
	HelperLR
	HelperSC
	HelperAMOEnd

	HelperCSRRW
	HelperCSRRS
	HelperCSRRC
	HelperCSREnd

	// HelperFastmemAddrLoad/Store resolve a guest virtual address to a
	// dereferenceable host pointer (TLB hit or a fresh MMU walk, then
	// Bus.GetPtr), for the backend's inline fastmem sequence (§4.D). A
	// zero return means no host pointer is available (a translation
	// fault, now pending on cpu.Exception, or a device-backed address
	// with no direct backing store) and the caller must fall back to the
	// ordinary Helper{Load,Store} path.
	HelperFastmemAddrLoad
	HelperFastmemAddrStore
	HelperFastmemEnd

	// HelperSetPC writes a into CPU.PC, used by JALR (whose target is a
	// runtime register value, never a compile-time constant the exec
	// core's Jump-patch stubs could resolve statically).
	HelperSetPC
	HelperSetPCEnd

	HelperECall
	HelperEBreak
	HelperMret
	HelperSret
	HelperWFI
	HelperSFenceVMA
)

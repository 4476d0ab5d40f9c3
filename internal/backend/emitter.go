package backend

// GReg names one of the 32 RV32 integer registers (x0..x31).
type GReg uint8

// Scratch names one of three host scratch slots available to a translated
// block. The JIT core does not allocate host registers per guest value; it
// threads everything through the guest register file in memory and uses a
// small fixed scratch pool, matching a non-optimizing baseline tier. Each
// backend picks the concrete host registers these map to.
type Scratch uint8

const (
	Scratch0 Scratch = iota
	Scratch1
	Scratch2
)

// Width selects the memory access width for loads, stores and AMOs.
type Width uint8

const (
	Width8 Width = iota
	Width16
	Width32
)

// Cond selects a branch comparison, matching the six RV32 branch funct3
// encodings.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondGE
	CondLTU
	CondGEU
)

// ALUOp selects an arithmetic/logical op shared between register-register
// and register-immediate forms.
type ALUOp uint8

const (
	OpAdd ALUOp = iota
	OpSub
	OpAnd
	OpOr
	OpXor
	OpSLT
	OpSLTU
	OpSLL
	OpSRL
	OpSRA
)

// Patch marks a PC-relative (in practice, absolute-pointer) site in a just
// emitted instruction sequence that the exec core must back-patch once the
// jump target's host address is known, per spec §4.E's jump patch list.
// Every backend reserves PatchWidth bytes at Offset for a raw little-endian
// host pointer, followed by an indirect jump/call through it; back-patching
// is therefore a single arch-agnostic write, not an instruction re-encode.
type Patch struct {
	Offset int
}

// RVIEmitter covers the RV32I base integer ISA plus Zicsr helper dispatch,
// per spec §4.D.
type RVIEmitter interface {
	// LoadGReg loads guest register n into scratch s.
	LoadGReg(buf *InsnBuf, s Scratch, n GReg) error
	// StoreGReg stores scratch s into guest register n (a no-op encoding
	// when n is x0, per the frontend's responsibility to special-case it
	// before emitting, but tolerated here too).
	StoreGReg(buf *InsnBuf, n GReg, s Scratch) error
	// LoadImm materializes a 32-bit (sign-extended) immediate into scratch s.
	LoadImm(buf *InsnBuf, s Scratch, imm int32) error
	// SetPC materializes imm and stores it into the CPU's PC field. Used by
	// the exec core's exit stubs (spec §4.E) to redirect the dispatch loop
	// to a compile-time-known guest address without a guest register round
	// trip.
	SetPC(buf *InsnBuf, imm uint32) error
	// ALUReg computes dst = a OP b.
	ALUReg(buf *InsnBuf, op ALUOp, dst, a, b Scratch) error
	// ALUImm computes dst = a OP imm.
	ALUImm(buf *InsnBuf, op ALUOp, dst, a Scratch, imm int32) error
	// CondBranch emits "if a CMP b goto <patched target>" and returns the
	// patch site for the target's absolute host address.
	CondBranch(buf *InsnBuf, cond Cond, a, b Scratch) (*Patch, error)
	// Jump emits an unconditional jump to a patched absolute host address.
	Jump(buf *InsnBuf) (*Patch, error)
	// CallHelper dispatches to the registered helper identified by op
	// (spec §4.D's "call to helper" primitive), leaving the result in
	// Scratch0. Every backend calls through a single fixed trampoline
	// address rather than one address per helper, so the dispatch
	// selector travels as a third argument alongside a and b rather than
	// as a varying call target; see HelperDispatchFunc.
	CallHelper(buf *InsnBuf, op HelperOp, a, b Scratch) error
	// FastmemLoad emits the inline fastmem access sequence, per spec §4.D:
	// resolve addr to a host pointer via the HelperFastmemAddrLoad helper
	// (itself TLB-first, §4.H), branch to a CallHelper(slowOp, ...) fallback
	// on a zero result (translation fault or no direct host backing), and
	// otherwise dereference the resolved pointer inline at width, sign
	// extending into dst when signed. The whole sequence is padded with
	// NOPs to a fixed per-backend block size so the slow path and the
	// fallthrough both resume at the same offset.
	FastmemLoad(buf *InsnBuf, dst, addr Scratch, width Width, signed bool, slowOp HelperOp) error
	// FastmemStore is FastmemLoad's store counterpart, resolving addr via
	// HelperFastmemAddrStore.
	FastmemStore(buf *InsnBuf, addr, val Scratch, width Width, slowOp HelperOp) error
	// Nop emits host no-op instructions covering at least n bytes (n
	// single-byte NOPs on amd64; 4-byte NOP words on arm64, rounding n up).
	// The fastmem sequences do not call it.
	Nop(buf *InsnBuf, n int) error
}

// RVMEmitter covers the M extension, per spec §4.D. Every RVM op is
// dispatched to a Go helper rather than encoded inline: division-by-zero and
// overflow edge cases are simpler to get right once in Go than duplicated
// per backend.
type RVMEmitter interface {
	// CallArithHelper is CallHelper specialized for the M-extension
	// dispatch table.
	CallArithHelper(buf *InsnBuf, op HelperOp, a, b Scratch) error
}

// RVAEmitter covers the A extension (LR/SC and AMOs), per spec §4.D.
type RVAEmitter interface {
	// CallAMOHelper calls the AMO dispatch table; the result (the AMO's
	// return value, i.e. the prior memory word) is left in Scratch0.
	CallAMOHelper(buf *InsnBuf, op HelperOp, addr, val Scratch) error
}

// CSREmitter covers Zicsr, per spec §4.D.
type CSREmitter interface {
	// CallCSRHelper dispatches a CSR read-modify-write, leaving the CSR's
	// pre-write value in Scratch0.
	CallCSRHelper(buf *InsnBuf, op HelperOp, csr, val Scratch) error
}

// PrivEmitter covers MRET/SRET/WFI/SFENCE.VMA, per spec §4.D.
type PrivEmitter interface {
	// CallPrivHelper dispatches a privileged op taking no register
	// operands; guest PC and mode live in the CPU struct already.
	CallPrivHelper(buf *InsnBuf, op HelperOp) error
}

// HelperOp selects a registered helper implementation out of jitcore's
// dispatch table (spec §4.D/§4.E's helper-call primitive). Kept as a
// backend-visible type, rather than a raw function address, because every
// backend calls through one fixed trampoline entry point instead of one
// machine-code address per helper: see HelperDispatchFunc.
type HelperOp uint32

// HelperDispatchFunc is the single Go-side entry point every backend's
// helper trampoline forwards into. cpu is the *guest.CPU pointer (passed as
// uintptr to keep this package free of an unsafe dependency); a/b are the
// two general-purpose operands (address/value, dividend/divisor, CSR/value,
// and so on depending on op). The result is a full uintptr rather than a
// uint32 so HelperFastmemAddrLoad/Store can return a dereferenceable host
// pointer through the exact same trampoline every other helper already
// uses instead of needing a second call path; every narrower helper just
// widens its uint32 result.
type HelperDispatchFunc func(cpu uintptr, a, b uint32, op HelperOp) uintptr

// FaultPCResolver turns a host PC captured from a recovered translated-block
// fault into the guest PC whose translation covers it, per spec §4.E's
// find_guest_pc_from_host_stack_frame. Only jitcore can implement it (it
// needs the Insn Map's reverse lookup); a backend just stores and forwards
// the callback, the same shape BackendCore already uses for
// HelperDispatchFunc.
type FaultPCResolver func(hostPC uintptr) (guestPC uint32, ok bool)

// BackendCore is the arch-specific entry/exit trampoline and identifying
// information, per spec §4.E.
type BackendCore interface {
	// Name identifies the backend, used in diagnostics.
	Name() string
	// PatchWidth is the number of bytes a Patch site reserves.
	PatchWidth() int
	// CallJIT transfers control to translated code at entry, with the
	// reserved CPU-pointer register loaded from cpu, and returns once the
	// translated code runs an emitted Return sequence. Return always yields
	// 0; the run state the block exited with is left in CPU fields (PC,
	// Exception, WFI).
	CallJIT(entry uintptr, cpu uintptr) uint32
	// SetHelperDispatch registers the Go function every CallHelper-family
	// emission eventually reaches. Must be called once before any
	// translated code runs.
	SetHelperDispatch(fn HelperDispatchFunc)
	// SetFaultPCResolver registers the callback a recovered CallJIT fault
	// uses to turn a captured host PC into a guest PC (spec §4.E's
	// find_guest_pc_from_host_stack_frame), for a more precise fault
	// report than the block-start-PC fallback. Optional: FindGuestPC
	// reports ok=false until this has been called.
	SetFaultPCResolver(fn FaultPCResolver)
	// FindGuestPC forwards hostPC to the registered FaultPCResolver, or
	// reports ok=false if none is registered.
	FindGuestPC(hostPC uintptr) (guestPC uint32, ok bool)
	// Return emits the sequence that hands control back to the CallJIT
	// caller (spec §4.E/§4.K's block-exit primitive). Every translated
	// block ends with either a Jump/CondBranch into another block's cached
	// code or, at a control-flow edge the exec core cannot statically
	// resolve to host code yet, a Return out to the dispatch loop, which
	// re-reads CPU.PC to decide where to go next.
	Return(buf *InsnBuf) error
}

// Emitter bundles every capability family a host backend must implement.
type Emitter interface {
	RVIEmitter
	RVMEmitter
	RVAEmitter
	CSREmitter
	PrivEmitter
	BackendCore
}

package frontend

import (
	"fmt"

	"github.com/rv32dbt/core/internal/backend"
)

// RISC-V base opcodes this core decodes, per spec §4.F.
const (
	opLUI    = 0x37
	opAUIPC  = 0x17
	opJAL    = 0x6f
	opJALR   = 0x67
	opBranch = 0x63
	opLoad   = 0x03
	opStore  = 0x23
	opImm    = 0x13
	opReg    = 0x33
	opFence  = 0x0f
	opSystem = 0x73
	opAMO    = 0x2f
)

// Result describes how one decoded instruction ends a translated block, if
// at all. Mirrors the exec core's jump-patch-list bookkeeping (spec §4.E):
// a non-nil Patch names a host-code site that must be back-filled with the
// host address for TargetPC. The exec core fills every patch when it seals
// the block: with TargetPC's Insn Map entry if one exists, otherwise with an
// exit stub that sets PC to TargetPC and returns to the dispatch loop.
type Result struct {
	Patch       *backend.Patch
	TargetPC    uint32
	IsCall      bool // JAL/JALR semantics: TargetPC is not necessarily IsCall-exclusive
	Unconditional bool // true if the instruction always transfers control (no fallthrough)
	EndsBlock   bool // true if translation must stop after this instruction
}

// Driver decodes RV32 instruction words into backend emitter calls,
// dispatching across the I/M/A/Zicsr/privileged families in a fixed order,
// per spec §4.F.
type Driver struct {
	E backend.Emitter
}

// NewDriver constructs a Driver around the given backend emitter.
func NewDriver(e backend.Emitter) *Driver {
	return &Driver{E: e}
}

// Translate decodes and emits insn (fetched from guest PC pc) into buf,
// returning control-flow metadata the exec core needs to maintain the
// block's Insn Map and jump patch list.
func (d *Driver) Translate(buf *backend.InsnBuf, insn uint32, pc uint32) (*Result, error) {
	switch opcode(insn) {
	case opLUI:
		return nil, d.emitLUI(buf, insn)
	case opAUIPC:
		return nil, d.emitAUIPC(buf, insn, pc)
	case opJAL:
		return d.emitJAL(buf, insn, pc)
	case opJALR:
		return d.emitJALR(buf, insn, pc)
	case opBranch:
		return d.emitBranch(buf, insn, pc)
	case opLoad:
		return nil, d.emitLoad(buf, insn)
	case opStore:
		return nil, d.emitStore(buf, insn)
	case opImm:
		return nil, d.emitOpImm(buf, insn)
	case opReg:
		if funct7(insn) == 0x01 {
			return nil, d.emitMulDiv(buf, insn)
		}
		return nil, d.emitOpReg(buf, insn)
	case opFence:
		return nil, nil // FENCE/FENCE.I: no-op, this core has no instruction cache to flush
	case opAMO:
		return nil, d.emitAMO(buf, insn)
	case opSystem:
		return d.emitSystem(buf, insn, pc)
	}
	return nil, fmt.Errorf("frontend: unknown opcode %#x (insn %#08x at pc %#08x)", opcode(insn), insn, pc)
}

// loadOperand loads guest register n into scratch s, skipping the emission
// entirely when n is x0 (always reads zero, so LoadImm 0 is cheaper and
// still correct since nothing downstream depends on the "real" load
// happening).
func (d *Driver) loadOperand(buf *backend.InsnBuf, s backend.Scratch, n backend.GReg) error {
	if n == 0 {
		return d.E.LoadImm(buf, s, 0)
	}
	return d.E.LoadGReg(buf, s, n)
}

// storeResult stores scratch s into guest register n, skipped for x0 since
// writes there are architecturally discarded.
func (d *Driver) storeResult(buf *backend.InsnBuf, n backend.GReg, s backend.Scratch) error {
	if n == 0 {
		return nil
	}
	return d.E.StoreGReg(buf, n, s)
}

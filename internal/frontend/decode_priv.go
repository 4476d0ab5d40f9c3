package frontend

import (
	"fmt"

	"github.com/rv32dbt/core/internal/backend"
)

// SYSTEM-opcode, funct3=0 encodings: ECALL/EBREAK/MRET/SRET/WFI/SFENCE.VMA,
// selected by the full imm12 (insn[31:20]) field rather than funct7, since
// ECALL/EBREAK pack into what looks like an I-type immediate.
const (
	sysECall    uint32 = 0x000
	sysEBreak   uint32 = 0x001
	sysSret     uint32 = 0x102
	sysMret     uint32 = 0x302
	sysWFI      uint32 = 0x105
	sysSFenceLo uint32 = 0x120 // SFENCE.VMA's imm12 with rs2=0; funct7 is sysSFenceLo>>5
)

func (d *Driver) emitSystem(buf *backend.InsnBuf, insn uint32, pc uint32) (*Result, error) {
	if funct3(insn) != 0 {
		return nil, d.emitCSR(buf, insn)
	}

	imm12 := insn >> 20
	switch {
	case imm12 == sysECall:
		return d.emitTrapExit(buf, backend.HelperECall)
	case imm12 == sysEBreak:
		return d.emitTrapExit(buf, backend.HelperEBreak)
	case imm12 == sysMret:
		return d.emitTrapExit(buf, backend.HelperMret)
	case imm12 == sysSret:
		return d.emitTrapExit(buf, backend.HelperSret)
	case imm12 == sysWFI:
		return d.emitTrapExit(buf, backend.HelperWFI)
	case funct7(insn) == sysSFenceLo>>5:
		return d.emitTrapExit(buf, backend.HelperSFenceVMA)
	}
	return nil, fmt.Errorf("frontend: unknown SYSTEM encoding imm12=%#x at pc %#08x", imm12, pc)
}

// emitTrapExit lowers any privileged op that unconditionally ends the
// block: the helper mutates CPU state (PC, Exception, WFI, TLB) and
// control always returns to the dispatch loop afterward to re-read it.
func (d *Driver) emitTrapExit(buf *backend.InsnBuf, op backend.HelperOp) (*Result, error) {
	if err := d.E.CallPrivHelper(buf, op); err != nil {
		return nil, err
	}
	if err := d.E.Return(buf); err != nil {
		return nil, err
	}
	return &Result{Unconditional: true, EndsBlock: true}, nil
}

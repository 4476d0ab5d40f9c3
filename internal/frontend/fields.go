// Package frontend decodes RV32 guest instruction words into backend emitter
// calls (spec §4.F), dispatching across the RVI/RVM/RVA/Zicsr/privileged
// decoder families in a fixed order.
package frontend

import "github.com/rv32dbt/core/internal/backend"

func opcode(insn uint32) uint32 { return insn & 0x7f }
func rd(insn uint32) backend.GReg  { return backend.GReg((insn >> 7) & 0x1f) }
func funct3(insn uint32) uint32 { return (insn >> 12) & 0x7 }
func rs1(insn uint32) backend.GReg { return backend.GReg((insn >> 15) & 0x1f) }
func rs2(insn uint32) backend.GReg { return backend.GReg((insn >> 20) & 0x1f) }
func funct7(insn uint32) uint32 { return (insn >> 25) & 0x7f }
func funct5(insn uint32) uint32 { return (insn >> 27) & 0x1f } // A-extension op
func aqrl(insn uint32) uint32   { return (insn >> 25) & 0x3 }
func shamt(insn uint32) uint32  { return (insn >> 20) & 0x1f } // RV32: 5-bit shift amount
func csrAddr(insn uint32) uint16 { return uint16(insn >> 20) }

func signExtend(val uint32, bits int) int32 {
	shift := 32 - bits
	return int32(val<<shift) >> shift
}

func immI(insn uint32) int32 {
	return signExtend(insn>>20, 12)
}

func immS(insn uint32) int32 {
	imm := (insn >> 7) & 0x1f
	imm |= ((insn >> 25) & 0x7f) << 5
	return signExtend(imm, 12)
}

func immB(insn uint32) int32 {
	imm := ((insn >> 8) & 0xf) << 1
	imm |= ((insn >> 25) & 0x3f) << 5
	imm |= ((insn >> 7) & 0x1) << 11
	imm |= ((insn >> 31) & 0x1) << 12
	return signExtend(imm, 13)
}

func immU(insn uint32) int32 {
	return int32(insn & 0xfffff000)
}

func immJ(insn uint32) int32 {
	imm := ((insn >> 21) & 0x3ff) << 1
	imm |= ((insn >> 20) & 0x1) << 11
	imm |= ((insn >> 12) & 0xff) << 12
	imm |= ((insn >> 31) & 0x1) << 20
	return signExtend(imm, 21)
}

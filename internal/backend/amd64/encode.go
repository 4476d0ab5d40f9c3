package amd64

import "encoding/binary"

// binaryLE writes v little-endian into dst[0:4], used by call sites that
// build raw instruction bytes inline rather than through the ALU/mov
// helpers below (which assume a low-eight, REX-free register).
func binaryLE(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

// rex builds a REX prefix. w selects 64-bit operand size. It never sets the
// R/X/B extension bits: the Scratch and CPU-pointer registers are all in the
// low eight, and the few encodings that touch R11 (jumpTargetReg) add
// REX.B/REX.R themselves.
func rex(w bool) byte {
	if !w {
		return 0
	}
	return 0x48
}

// movRegMemDisp32 encodes "mov rDst, [rBase+disp32]" (load) when load is
// true, or "mov [rBase+disp32], rSrc" (store) when load is false. The
// operand is always 32 bits wide (guest registers and CSRs are 32 bits).
func movRegMemDisp32(reg, base byte, disp int32, load bool) []byte {
	var out []byte
	out = append(out, 0x8b) // mov r32, r/m32 (load form)
	if !load {
		out[0] = 0x89 // mov r/m32, r32 (store form)
	}
	out = append(out, modrm(0x02, reg, base))
	if base == regSP || base == 12 {
		out = append(out, 0x24) // SIB: no index, base=RSP
	}
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(disp))
	out = append(out, d[:]...)
	return out
}

// movRegImm32 encodes "mov r32, imm32" (B8+rd, zero-extends into the full
// 64-bit register, which is exactly what an unsigned RV32 value needs).
func movRegImm32(reg byte, imm int32) []byte {
	out := []byte{0xb8 + reg}
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(imm))
	return append(out, d[:]...)
}

// movRegImm64 encodes "movabs r64, imm64" (REX.W, plus REX.B for R8-R15,
// + B8+rd + imm64).
func movRegImm64(reg byte, imm uint64) []byte {
	out := []byte{rex(true) | (reg>>3)&1, 0xb8 + (reg & 7)}
	var d [8]byte
	binary.LittleEndian.PutUint64(d[:], imm)
	return append(out, d[:]...)
}

// aluRegReg encodes a register-register ALU op ("op dst, src"), 32-bit.
// Every opcode used here is the "op r32, r/m32" form, so the ModRM reg
// field is the destination and rm is the source.
func aluRegReg(op ALUOpcode, dst, src byte) []byte {
	return []byte{op.regOpcode, modrm(0x03, dst, src)}
}

// aluRegImm32 encodes a register-immediate ALU op via the 0x81 /n group.
func aluRegImm32(ext byte, reg byte, imm int32) []byte {
	out := []byte{0x81, modrm(0x03, ext, reg)}
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], uint32(imm))
	return append(out, d[:]...)
}

// ALUOpcode bundles the register-register opcode byte for one ALU op
// alongside the /digit extension used by the 0x81 immediate-group form.
type ALUOpcode struct {
	regOpcode byte
	immExt    byte
}

var (
	aluAdd = ALUOpcode{regOpcode: 0x03, immExt: 0}
	aluSub = ALUOpcode{regOpcode: 0x2b, immExt: 5}
	aluAnd = ALUOpcode{regOpcode: 0x23, immExt: 4}
	aluOr  = ALUOpcode{regOpcode: 0x0b, immExt: 1}
	aluXor = ALUOpcode{regOpcode: 0x33, immExt: 6}
	aluCmp = ALUOpcode{regOpcode: 0x3b, immExt: 7}
)

// shiftRegImm8 encodes "op reg, imm8" from the 0xc1 /n shift group.
func shiftRegImm8(ext byte, reg byte, shamt uint8) []byte {
	return []byte{0xc1, modrm(0x03, ext, reg), shamt & 0x1f}
}

// shiftRegCL encodes "op reg, cl" from the 0xd3 /n shift group.
func shiftRegCL(ext byte, reg byte) []byte {
	return []byte{0xd3, modrm(0x03, ext, reg)}
}

// setccMovzx encodes "setcc al; movzx reg32, al" to materialize a 0/1
// boolean comparison result (used for SLT/SLTU).
func setccMovzx(cc byte, dst byte) []byte {
	out := []byte{0x0f, cc, modrm(0x03, 0, 0)} // setcc al
	out = append(out, 0x0f, 0xb6, modrm(0x03, dst, 0))
	return out
}

// jumpThroughReg64 encodes a 13-byte "movabs r11, imm64; jmp r11"-style indirect
// transfer, used both for the patched-jump primitive and (with the opcode
// swapped to 0xff /2) for an indirect call.
func jumpThroughReg64(jumpOp byte) (prefix []byte, patchOffset int) {
	mov := []byte{0x49, 0xbb, 0, 0, 0, 0, 0, 0, 0, 0} // REX.WB movabs r11, imm64
	jmp := []byte{0x41, 0xff, jumpOp}                 // REX.B ff /n r11
	return append(mov, jmp...), 2
}

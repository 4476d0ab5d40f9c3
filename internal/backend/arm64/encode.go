package arm64

import "encoding/binary"

func word(w uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], w)
	return b[:]
}

// ldrW32 encodes "LDR Wt, [Xn, #imm]" (unsigned offset form, imm scaled by
// 4, so imm must be a multiple of 4 in [0, 16380]).
func ldrW32(rt, rn uint32, imm int32) uint32 {
	return 0xB9400000 | ((uint32(imm)/4)&0xfff)<<10 | (rn&0x1f)<<5 | (rt & 0x1f)
}

// strW32 encodes "STR Wt, [Xn, #imm]".
func strW32(rt, rn uint32, imm int32) uint32 {
	return 0xB9000000 | ((uint32(imm)/4)&0xfff)<<10 | (rn&0x1f)<<5 | (rt & 0x1f)
}

func movzW(rd uint32, imm uint16) uint32 { return 0x52800000 | uint32(imm)<<5 | (rd & 0x1f) }
func movkW(rd uint32, imm uint16) uint32 { return 0x72a00000 | uint32(imm)<<5 | (rd & 0x1f) }

// movReg64 encodes "MOV Xd, Xn" (alias of ORR Xd, XZR, Xn).
func movReg64(rd, rn uint32) uint32 {
	return 0xAA0003E0 | (rn&0x1f)<<16 | (rd & 0x1f)
}

// movReg32 encodes "MOV Wd, Wn".
func movReg32(rd, rn uint32) uint32 {
	return 0x2A0003E0 | (rn&0x1f)<<16 | (rd & 0x1f)
}

func addW(rd, rn, rm uint32) uint32 { return 0x0B000000 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }
func subW(rd, rn, rm uint32) uint32 { return 0x4B000000 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }
func andW(rd, rn, rm uint32) uint32 { return 0x0A000000 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }
func orrW(rd, rn, rm uint32) uint32 { return 0x2A000000 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }
func eorW(rd, rn, rm uint32) uint32 { return 0x4A000000 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }

func addImmW(rd, rn uint32, imm uint16) uint32 {
	return 0x11000000 | uint32(imm&0xfff)<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}
func subImmW(rd, rn uint32, imm uint16) uint32 {
	return 0x51000000 | uint32(imm&0xfff)<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}
func andImmW(rd, rn uint32, n, immr, imms uint32) uint32 {
	return 0x12000000 | n<<22 | immr<<16 | imms<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}
func eorImmW(rd, rn uint32, n, immr, imms uint32) uint32 {
	return 0x52000000 | n<<22 | immr<<16 | imms<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}
func orrImmW(rd, rn uint32, n, immr, imms uint32) uint32 {
	return 0x32000000 | n<<22 | immr<<16 | imms<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}

// cmpW encodes "CMP Wn, Wm" (alias of SUBS WZR, Wn, Wm).
func cmpW(rn, rm uint32) uint32 { return 0x6B00001F | (rm&0x1f)<<16 | (rn&0x1f)<<5 }

// csetW encodes "CSET Wd, cond" (alias of CSINC Wd, WZR, WZR, !cond).
func csetW(rd uint32, invCond uint32) uint32 {
	return 0x1A800400 | regZR<<16 | invCond<<12 | regZR<<5 | (rd & 0x1f)
}

// lslW/lsrW/asrW encode "<op> Wd, Wn, Wm" (variable shift, register form).
func lslW(rd, rn, rm uint32) uint32 { return 0x1AC02000 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }
func lsrW(rd, rn, rm uint32) uint32 { return 0x1AC02400 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }
func asrW(rd, rn, rm uint32) uint32 { return 0x1AC02800 | (rm&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f) }

// lslImmW/lsrImmW/asrImmW encode the immediate shift forms (UBFM/SBFM
// aliases), shamt in [0,31].
func lslImmW(rd, rn uint32, shamt uint32) uint32 {
	immr := (32 - shamt) & 0x1f
	imms := (31 - shamt) & 0x1f
	return 0x53000000 | immr<<16 | imms<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}
func lsrImmW(rd, rn uint32, shamt uint32) uint32 {
	return 0x53007c00 | (shamt&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f)
}
func asrImmW(rd, rn uint32, shamt uint32) uint32 {
	return 0x13007c00 | (shamt&0x1f)<<16 | (rn&0x1f)<<5 | (rd & 0x1f)
}

// brReg encodes "BR Xn" (unconditional jump through register).
func brReg(rn uint32) uint32 { return 0xD61F0000 | (rn&0x1f)<<5 }

// blrReg encodes "BLR Xn" (call through register).
func blrReg(rn uint32) uint32 { return 0xD63F0000 | (rn&0x1f)<<5 }

// retReg encodes "RET Xn" (defaults to X30/LR).
func retReg(rn uint32) uint32 { return 0xD65F0000 | (rn&0x1f)<<5 }

// addImmX/subImmX are addImmW/subImmW's 64-bit (sf=1) counterparts, used
// only to adjust SP (register index 31 means SP, not XZR, in this
// instruction class).
func addImmX(rd, rn uint32, imm uint16) uint32 {
	return 0x91000000 | uint32(imm&0xfff)<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}
func subImmX(rd, rn uint32, imm uint16) uint32 {
	return 0xD1000000 | uint32(imm&0xfff)<<10 | (rn&0x1f)<<5 | (rd & 0x1f)
}

// strX/ldrX encode "STR/LDR Xt, [Xn, #imm]" (unsigned offset, imm scaled by 8).
func strX(rt, rn uint32, imm int32) uint32 {
	return 0xF9000000 | ((uint32(imm)/8)&0xfff)<<10 | (rn&0x1f)<<5 | (rt & 0x1f)
}
func ldrX(rt, rn uint32, imm int32) uint32 {
	return 0xF9400000 | ((uint32(imm)/8)&0xfff)<<10 | (rn&0x1f)<<5 | (rt & 0x1f)
}

// bCond encodes "B.cond #imm19<<2" (PC-relative conditional branch).
func bCond(cond uint32, imm19 int32) uint32 {
	return 0x54000000 | (uint32(imm19)&0x7ffff)<<5 | (cond & 0xf)
}

// ldrLitX encodes "LDR Xt, <label>" (PC-relative literal load), used to
// pull a patched 64-bit absolute address out of an adjacent literal pool
// rather than synthesizing it through MOVZ/MOVK (which would scatter the
// patch bytes across four non-contiguous 16-bit immediate fields).
func ldrLitX(rt uint32, imm19 int32) uint32 {
	return 0x58000000 | (uint32(imm19)&0x7ffff)<<5 | (rt & 0x1f)
}

// ldrbW/ldrsbW/ldrhW/ldrshW/strbW/strhW are the sub-word unsigned-offset
// load/store forms used by the fastmem inline dereference, all with imm12
// fixed at 0 since the base register already holds the exact resolved host
// address. Derived from the same (size<<30)|(0x39<<24)|(opc<<22) shape as
// ldrW32/strW32 above, varying size (00=byte, 01=halfword) and opc (01=
// zero-extending load, 11=sign-extending load to Wt, 00=store).
func ldrbW(rt, rn uint32) uint32  { return 0x39400000 | (rn&0x1f)<<5 | (rt & 0x1f) }
func ldrsbW(rt, rn uint32) uint32 { return 0x39c00000 | (rn&0x1f)<<5 | (rt & 0x1f) }
func strbW(rt, rn uint32) uint32  { return 0x39000000 | (rn&0x1f)<<5 | (rt & 0x1f) }
func ldrhW(rt, rn uint32) uint32  { return 0x79400000 | (rn&0x1f)<<5 | (rt & 0x1f) }
func ldrshW(rt, rn uint32) uint32 { return 0x79c00000 | (rn&0x1f)<<5 | (rt & 0x1f) }
func strhW(rt, rn uint32) uint32  { return 0x79000000 | (rn&0x1f)<<5 | (rt & 0x1f) }

// cbzX encodes "CBZ Xt, #imm19<<2" (64-bit compare-and-branch-if-zero).
func cbzX(rt uint32, imm19 int32) uint32 {
	return 0xb4000000 | (uint32(imm19)&0x7ffff)<<5 | (rt & 0x1f)
}

// bUncond encodes "B #imm26<<2" (unconditional PC-relative branch).
func bUncond(imm26 int32) uint32 {
	return 0x14000000 | (uint32(imm26) & 0x3ffffff)
}

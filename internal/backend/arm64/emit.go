package arm64

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/rv32dbt/core/internal/backend"
	"github.com/rv32dbt/core/internal/guest"
)

var xOffset = int32(unsafe.Offsetof(guest.CPU{}.X))
var pcOffset = int32(unsafe.Offsetof(guest.CPU{}.PC))

// AArch64 condition codes (cond field values), indexed by backend.Cond.
var condCode = map[backend.Cond]uint32{
	backend.CondEQ:  0x0, // EQ
	backend.CondNE:  0x1, // NE
	backend.CondLT:  0xb, // LT (signed)
	backend.CondGE:  0xa, // GE (signed)
	backend.CondLTU: 0x3, // LO (unsigned)
	backend.CondGEU: 0x2, // HS (unsigned)
}

// Emitter implements backend.Emitter for the AArch64 host.
type Emitter struct{}

var _ backend.Emitter = Emitter{}

func (Emitter) Name() string    { return "arm64" }
func (Emitter) PatchWidth() int { return 8 }

func (Emitter) LoadGReg(buf *backend.InsnBuf, s backend.Scratch, n backend.GReg) error {
	return buf.PushSlice(word(ldrW32(scratchReg(s), cpuPtrReg, xOffset+int32(n)*4)))
}

func (Emitter) StoreGReg(buf *backend.InsnBuf, n backend.GReg, s backend.Scratch) error {
	if n == 0 {
		return nil
	}
	return buf.PushSlice(word(strW32(scratchReg(s), cpuPtrReg, xOffset+int32(n)*4)))
}

// LoadImm materializes a 32-bit sign-extended immediate via MOVZ (+MOVK for
// the upper half when non-trivial).
func (Emitter) LoadImm(buf *backend.InsnBuf, s backend.Scratch, imm int32) error {
	r := scratchReg(s)
	u := uint32(imm)
	if err := buf.PushSlice(word(movzW(r, uint16(u)))); err != nil {
		return err
	}
	if hi := uint16(u >> 16); hi != 0 {
		if err := buf.PushSlice(word(movkW(r, hi))); err != nil {
			return err
		}
	}
	return nil
}

// SetPC materializes imm into the jump-target scratch register (never
// exposed to callers) and stores it to the CPU's PC field.
func (Emitter) SetPC(buf *backend.InsnBuf, imm uint32) error {
	if err := buf.PushSlice(word(movzW(jumpTargetReg, uint16(imm)))); err != nil {
		return err
	}
	if hi := uint16(imm >> 16); hi != 0 {
		if err := buf.PushSlice(word(movkW(jumpTargetReg, hi))); err != nil {
			return err
		}
	}
	return buf.PushSlice(word(strW32(jumpTargetReg, cpuPtrReg, pcOffset)))
}

// Return hands control back to the CallJIT caller.
func (Emitter) Return(buf *backend.InsnBuf) error {
	if err := buf.PushSlice(word(movzW(regX0, 0))); err != nil {
		return err
	}
	return buf.PushSlice(word(retReg(regLR)))
}

func (Emitter) ALUReg(buf *backend.InsnBuf, op backend.ALUOp, dst, a, b backend.Scratch) error {
	d, aa, bb := scratchReg(dst), scratchReg(a), scratchReg(b)
	switch op {
	case backend.OpAdd:
		return buf.PushSlice(word(addW(d, aa, bb)))
	case backend.OpSub:
		return buf.PushSlice(word(subW(d, aa, bb)))
	case backend.OpAnd:
		return buf.PushSlice(word(andW(d, aa, bb)))
	case backend.OpOr:
		return buf.PushSlice(word(orrW(d, aa, bb)))
	case backend.OpXor:
		return buf.PushSlice(word(eorW(d, aa, bb)))
	case backend.OpSLT, backend.OpSLTU:
		cc := condCode[backend.CondLT]
		if op == backend.OpSLTU {
			cc = condCode[backend.CondLTU]
		}
		inv := cc ^ 1 // AArch64 condition codes pair up as even/odd inverses
		if err := buf.PushSlice(word(cmpW(aa, bb))); err != nil {
			return err
		}
		return buf.PushSlice(word(csetW(d, inv)))
	case backend.OpSLL:
		return buf.PushSlice(word(lslW(d, aa, bb)))
	case backend.OpSRL:
		return buf.PushSlice(word(lsrW(d, aa, bb)))
	case backend.OpSRA:
		return buf.PushSlice(word(asrW(d, aa, bb)))
	}
	return fmt.Errorf("arm64: unsupported ALU op %d", op)
}

func (Emitter) ALUImm(buf *backend.InsnBuf, op backend.ALUOp, dst, a backend.Scratch, imm int32) error {
	d, aa := scratchReg(dst), scratchReg(a)
	switch op {
	case backend.OpAdd:
		if imm >= 0 && imm <= 0xfff {
			return buf.PushSlice(word(addImmW(d, aa, uint16(imm))))
		}
		return aluImmFallback(buf, addW, d, aa, imm)
	case backend.OpSub:
		if imm >= 0 && imm <= 0xfff {
			return buf.PushSlice(word(subImmW(d, aa, uint16(imm))))
		}
		return aluImmFallback(buf, subW, d, aa, imm)
	case backend.OpAnd:
		return aluImmFallback(buf, andW, d, aa, imm)
	case backend.OpOr:
		return aluImmFallback(buf, orrW, d, aa, imm)
	case backend.OpXor:
		return aluImmFallback(buf, eorW, d, aa, imm)
	case backend.OpSLT, backend.OpSLTU:
		if err := aluImmFallback(buf, func(d2, n2, m2 uint32) uint32 { return cmpW(n2, m2) }, d, aa, imm); err != nil {
			return err
		}
		cc := condCode[backend.CondLT]
		if op == backend.OpSLTU {
			cc = condCode[backend.CondLTU]
		}
		return buf.PushSlice(word(csetW(d, cc^1)))
	case backend.OpSLL:
		return buf.PushSlice(word(lslImmW(d, aa, uint32(imm)&0x1f)))
	case backend.OpSRL:
		return buf.PushSlice(word(lsrImmW(d, aa, uint32(imm)&0x1f)))
	case backend.OpSRA:
		return buf.PushSlice(word(asrImmW(d, aa, uint32(imm)&0x1f)))
	}
	return fmt.Errorf("arm64: unsupported ALU imm op %d", op)
}

// aluImmFallback materializes imm into the jump-target scratch register and
// performs the register-register form, used for ops (AND/OR/XOR/CMP, and
// out-of-range ADD/SUB) whose bitmask-immediate encodings this backend does
// not bother synthesizing.
func aluImmFallback(buf *backend.InsnBuf, regOp func(d, n, m uint32) uint32, d, aa uint32, imm int32) error {
	if err := buf.PushSlice(word(movzW(jumpTargetReg, uint16(uint32(imm))))); err != nil {
		return err
	}
	if hi := uint16(uint32(imm) >> 16); hi != 0 {
		if err := buf.PushSlice(word(movkW(jumpTargetReg, hi))); err != nil {
			return err
		}
	}
	return buf.PushSlice(word(regOp(d, aa, jumpTargetReg)))
}

// jumpBlock emits a literal-pool indirect transfer: load an 8-byte patched
// absolute address from the adjacent literal into the jump-target register,
// then branch through it. Returns the byte offset of the literal within buf.
func jumpBlock(buf *backend.InsnBuf) (int, error) {
	if err := buf.PushSlice(word(ldrLitX(jumpTargetReg, 2))); err != nil {
		return 0, err
	}
	if err := buf.PushSlice(word(brReg(jumpTargetReg))); err != nil {
		return 0, err
	}
	litOff := buf.Size()
	if err := buf.PushSlice(make([]byte, 8)); err != nil {
		return 0, err
	}
	return litOff, nil
}

func (Emitter) CondBranch(buf *backend.InsnBuf, cond backend.Cond, a, b backend.Scratch) (*backend.Patch, error) {
	cc, ok := condCode[cond]
	if !ok {
		return nil, fmt.Errorf("arm64: unsupported branch condition %d", cond)
	}
	if err := buf.PushSlice(word(cmpW(scratchReg(a), scratchReg(b)))); err != nil {
		return nil, err
	}
	// b.!cond skips the 16-byte jump block (branch offset 5 words including self).
	if err := buf.PushSlice(word(bCond(cc^1, 5))); err != nil {
		return nil, err
	}
	off, err := jumpBlock(buf)
	if err != nil {
		return nil, err
	}
	return &backend.Patch{Offset: off}, nil
}

func (Emitter) Jump(buf *backend.InsnBuf) (*backend.Patch, error) {
	off, err := jumpBlock(buf)
	if err != nil {
		return nil, err
	}
	return &backend.Patch{Offset: off}, nil
}

// callHelper marshals the reserved CPU pointer into X0, up to two extra
// uint32 arguments into X1/X2, and op into X3, then calls the single fixed
// helper trampoline. The CPU pointer is staged through the jump-target
// scratch register first so it is safe to clobber X0 last, after any
// argument that happened to be Scratch0 has already been copied out. Every
// HelperOp enters Go through the same trampoline address; see
// HelperDispatchFunc.
func callHelper(buf *backend.InsnBuf, op backend.HelperOp, args ...backend.Scratch) error {
	argRegs := []uint32{regX1, regX2}
	if err := buf.PushSlice(word(movReg64(jumpTargetReg, cpuPtrReg))); err != nil {
		return err
	}
	for i, a := range args {
		if i >= len(argRegs) {
			return fmt.Errorf("arm64: helper calls support at most %d arguments", len(argRegs))
		}
		if err := buf.PushSlice(word(movReg32(argRegs[i], scratchReg(a)))); err != nil {
			return err
		}
	}
	if err := buf.PushSlice(word(movzW(regX3, uint16(uint32(op))))); err != nil {
		return err
	}
	if hi := uint16(uint32(op) >> 16); hi != 0 {
		if err := buf.PushSlice(word(movkW(regX3, hi))); err != nil {
			return err
		}
	}
	if err := buf.PushSlice(word(movReg64(regX0, jumpTargetReg))); err != nil {
		return err
	}
	_, err := jumpBlockCall(buf, helperTrampolineAddr())
	return err
}

// jumpBlockCall is jumpBlock specialized for calls (BLR) with the target
// pre-filled rather than left for later backpatching, since helper
// addresses are known at emit time. BLR clobbers LR, which on entry to a
// translated block holds the return address back into callJITAsm (or an
// enclosing caller), so this saves and restores it around the call on the
// raw stack rather than relying on any Go-assembler-managed frame, since
// none exists here: this is hand-emitted bytes, not assembled code.
func jumpBlockCall(buf *backend.InsnBuf, fn uintptr) (int, error) {
	if err := buf.PushSlice(word(subImmX(regSP, regSP, 16))); err != nil {
		return 0, err
	}
	if err := buf.PushSlice(word(strX(regLR, regSP, 0))); err != nil {
		return 0, err
	}
	if err := buf.PushSlice(word(ldrLitX(jumpTargetReg, 2))); err != nil {
		return 0, err
	}
	if err := buf.PushSlice(word(blrReg(jumpTargetReg))); err != nil {
		return 0, err
	}
	off := buf.Size()
	var lit [8]byte
	binary.LittleEndian.PutUint64(lit[:], uint64(fn))
	if err := buf.PushSlice(lit[:]); err != nil {
		return 0, err
	}
	if err := buf.PushSlice(word(ldrX(regLR, regSP, 0))); err != nil {
		return 0, err
	}
	return off, buf.PushSlice(word(addImmX(regSP, regSP, 16)))
}

func (Emitter) CallHelper(buf *backend.InsnBuf, op backend.HelperOp, a, b backend.Scratch) error {
	return callHelper(buf, op, a, b)
}

func (Emitter) CallArithHelper(buf *backend.InsnBuf, op backend.HelperOp, a, b backend.Scratch) error {
	return callHelper(buf, op, a, b)
}

func (Emitter) CallAMOHelper(buf *backend.InsnBuf, op backend.HelperOp, addr, val backend.Scratch) error {
	return callHelper(buf, op, addr, val)
}

func (Emitter) CallCSRHelper(buf *backend.InsnBuf, op backend.HelperOp, csr, val backend.Scratch) error {
	return callHelper(buf, op, csr, val)
}

func (Emitter) CallPrivHelper(buf *backend.InsnBuf, op backend.HelperOp) error {
	return callHelper(buf, op)
}

// fastmemBlockSize bounds the padded length of one inline fastmem sequence.
// Sized against the worst case of resolve-call + stash + cbz + fast block +
// slow-call (~112-116 bytes, see derefLoadX9/derefStoreX9 and callHelper's
// ~48-byte cost under this backend's LR-save/literal-pool calling
// convention) with room to spare, and checked against InsnBufCapacity.
const fastmemBlockSize = 128

// derefLoadX9 encodes a width/sign-aware load from [x9] into dst, x9 holding
// the host pointer FastmemLoad's resolve call already validated.
func derefLoadX9(dst uint32, width backend.Width, signed bool) (uint32, error) {
	switch width {
	case backend.Width8:
		if signed {
			return ldrsbW(dst, jumpTargetReg), nil
		}
		return ldrbW(dst, jumpTargetReg), nil
	case backend.Width16:
		if signed {
			return ldrshW(dst, jumpTargetReg), nil
		}
		return ldrhW(dst, jumpTargetReg), nil
	case backend.Width32:
		return ldrW32(dst, jumpTargetReg, 0), nil
	}
	return 0, fmt.Errorf("arm64: unsupported fastmem load width %d", width)
}

// derefStoreX9 encodes a width-aware store of src into [x9].
func derefStoreX9(src uint32, width backend.Width) (uint32, error) {
	switch width {
	case backend.Width8:
		return strbW(src, jumpTargetReg), nil
	case backend.Width16:
		return strhW(src, jumpTargetReg), nil
	case backend.Width32:
		return strW32(src, jumpTargetReg, 0), nil
	}
	return 0, fmt.Errorf("arm64: unsupported fastmem store width %d", width)
}

// padFastmem appends NOP words to reach fastmemBlockSize, or fails if the
// assembled sequence already ran past it.
func padFastmem(buf *backend.InsnBuf, used int) error {
	if used > fastmemBlockSize {
		return fmt.Errorf("arm64: fastmem sequence (%d bytes) exceeds fastmemBlockSize (%d)", used, fastmemBlockSize)
	}
	for i := used; i < fastmemBlockSize; i += 4 {
		if err := buf.PushSlice(word(0xD503201F)); err != nil { // NOP
			return err
		}
	}
	return nil
}

// branchWordsOver returns the imm19/imm26 operand (word count, self
// included) a branch immediately followed by skipBytes of content needs to
// land just past that content, matching the convention CondBranch's
// jumpBlock-skipping b.!cond already uses.
func branchWordsOver(skipBytes int) int32 {
	return 1 + int32(skipBytes/4)
}

// FastmemLoad resolves addr to a host pointer via HelperFastmemAddrLoad,
// stashes the result in the jump-target register (x9, free again once the
// call returns), and either loads through [x9] inline when that pointer is
// non-zero or falls through to CallHelper(slowOp, addr) when it is zero (a
// translation fault, now pending on cpu.Exception, or no direct host
// backing). See DESIGN.md and jitcore/recover.go for why this inline
// dereference never needs its own signal-recovery path: the address is
// validated before this point, never blind. Unlike the amd64 backend, no
// register save/restore is needed around the resolve call: addr/val live in
// Scratch1/Scratch2 (X1/X2), and callHelper's marshaling for a
// single-argument call only ever touches X0, X3 and (a same-register,
// harmless) X1.
func (Emitter) FastmemLoad(buf *backend.InsnBuf, dst, addr backend.Scratch, width backend.Width, signed bool, slowOp backend.HelperOp) error {
	dstReg := scratchReg(dst)
	start := buf.Size()

	if err := callHelper(buf, backend.HelperFastmemAddrLoad, addr); err != nil {
		return err
	}
	if err := buf.PushSlice(word(movReg64(jumpTargetReg, regX0))); err != nil {
		return err
	}

	var slow backend.InsnBuf
	if err := callHelper(&slow, slowOp, addr); err != nil {
		return err
	}
	if dstReg != regX0 {
		if err := slow.PushSlice(word(movReg32(dstReg, regX0))); err != nil {
			return err
		}
	}

	derefOp, err := derefLoadX9(dstReg, width, signed)
	if err != nil {
		return err
	}
	var fast backend.InsnBuf
	if err := fast.PushSlice(word(derefOp)); err != nil {
		return err
	}
	if err := fast.PushSlice(word(bUncond(branchWordsOver(slow.Size())))); err != nil {
		return err
	}

	if err := buf.PushSlice(word(cbzX(jumpTargetReg, branchWordsOver(fast.Size())))); err != nil {
		return err
	}
	if err := buf.PushSlice(fast.AsSlice()); err != nil {
		return err
	}
	if err := buf.PushSlice(slow.AsSlice()); err != nil {
		return err
	}
	return padFastmem(buf, buf.Size()-start)
}

// FastmemStore mirrors FastmemLoad: resolve addr via HelperFastmemAddrStore,
// stash the result in x9, and either store through [x9] inline or fall back
// to CallHelper(slowOp, addr, val).
func (Emitter) FastmemStore(buf *backend.InsnBuf, addr, val backend.Scratch, width backend.Width, slowOp backend.HelperOp) error {
	valReg := scratchReg(val)
	start := buf.Size()

	if err := callHelper(buf, backend.HelperFastmemAddrStore, addr); err != nil {
		return err
	}
	if err := buf.PushSlice(word(movReg64(jumpTargetReg, regX0))); err != nil {
		return err
	}

	var slow backend.InsnBuf
	if err := callHelper(&slow, slowOp, addr, val); err != nil {
		return err
	}

	derefOp, err := derefStoreX9(valReg, width)
	if err != nil {
		return err
	}
	var fast backend.InsnBuf
	if err := fast.PushSlice(word(derefOp)); err != nil {
		return err
	}
	if err := fast.PushSlice(word(bUncond(branchWordsOver(slow.Size())))); err != nil {
		return err
	}

	if err := buf.PushSlice(word(cbzX(jumpTargetReg, branchWordsOver(fast.Size())))); err != nil {
		return err
	}
	if err := buf.PushSlice(fast.AsSlice()); err != nil {
		return err
	}
	if err := buf.PushSlice(slow.AsSlice()); err != nil {
		return err
	}
	return padFastmem(buf, buf.Size()-start)
}

func (Emitter) Nop(buf *backend.InsnBuf, n int) error {
	for i := 0; i < n; i += 4 {
		if err := buf.PushSlice(word(0xD503201F)); err != nil { // NOP
			return err
		}
	}
	return nil
}

package amd64

import (
	"fmt"
	"unsafe"

	"github.com/rv32dbt/core/internal/backend"
	"github.com/rv32dbt/core/internal/guest"
)

var xOffset = int32(unsafe.Offsetof(guest.CPU{}.X))
var pcOffset = int32(unsafe.Offsetof(guest.CPU{}.PC))

// Inverted short-jcc opcodes for the six RV32 branch conditions, used by CondBranch's
// cmp+jcc-over-indirect-jump sequence (j!cond skips the jump block).
var invertedJcc = map[backend.Cond]byte{
	backend.CondEQ:  0x75, // jne (inverse of eq)
	backend.CondNE:  0x74, // je
	backend.CondLT:  0x7d, // jge (signed)
	backend.CondGE:  0x7c, // jl
	backend.CondLTU: 0x73, // jae (unsigned)
	backend.CondGEU: 0x72, // jb
}

var setccOp = map[backend.Cond]byte{
	// empty and unreferenced: ALUReg/ALUImm pass their setl/setb bytes
	// directly to setccMovzx
}

// Emitter implements backend.Emitter for the x86-64 host.
type Emitter struct{}

var _ backend.Emitter = Emitter{}

func (Emitter) Name() string     { return "amd64" }
func (Emitter) PatchWidth() int  { return 8 }

func (Emitter) LoadGReg(buf *backend.InsnBuf, s backend.Scratch, n backend.GReg) error {
	return buf.PushSlice(movRegMemDisp32(scratchReg(s), cpuPtrReg, xOffset+int32(n)*4, true))
}

func (Emitter) StoreGReg(buf *backend.InsnBuf, n backend.GReg, s backend.Scratch) error {
	if n == 0 {
		return nil
	}
	return buf.PushSlice(movRegMemDisp32(scratchReg(s), cpuPtrReg, xOffset+int32(n)*4, false))
}

func (Emitter) LoadImm(buf *backend.InsnBuf, s backend.Scratch, imm int32) error {
	return buf.PushSlice(movRegImm32(scratchReg(s), imm))
}

// SetPC materializes imm into the jump-target scratch register (never
// exposed to callers, so it is safe to clobber here) and stores it to the
// CPU's PC field. jumpTargetReg is R11, an extended register, so this
// writes its own REX.B/REX.R prefixed encodings rather than reusing the
// low-eight-GPR helpers in encode.go.
func (Emitter) SetPC(buf *backend.InsnBuf, imm uint32) error {
	movR11Imm32 := []byte{0x41, 0xbb, 0, 0, 0, 0}
	binaryLE(movR11Imm32[2:], imm)
	if err := buf.PushSlice(movR11Imm32); err != nil {
		return err
	}
	storeR11 := []byte{0x44, 0x89, modrm(0x02, jumpTargetReg&7, cpuPtrReg), 0, 0, 0, 0}
	binaryLE(storeR11[3:], uint32(pcOffset))
	return buf.PushSlice(storeR11)
}

// Return hands control back to the CallJIT caller. The translated code's
// run-state result is read from CPU fields (PC, Exception, WFI) by the exec
// core rather than threaded through the return register, so this always
// returns zero.
func (Emitter) Return(buf *backend.InsnBuf) error {
	if err := buf.PushSlice([]byte{0x31, modrm(0x03, regAX, regAX)}); err != nil { // xor eax, eax
		return err
	}
	return buf.PushByte(0xc3) // ret
}

func aluOpcode(op backend.ALUOp) (ALUOpcode, bool) {
	switch op {
	case backend.OpAdd:
		return aluAdd, true
	case backend.OpSub:
		return aluSub, true
	case backend.OpAnd:
		return aluAnd, true
	case backend.OpOr:
		return aluOr, true
	case backend.OpXor:
		return aluXor, true
	}
	return ALUOpcode{}, false
}

func (Emitter) ALUReg(buf *backend.InsnBuf, op backend.ALUOp, dst, a, b backend.Scratch) error {
	d, aa, bb := scratchReg(dst), scratchReg(a), scratchReg(b)
	if d != aa {
		if err := buf.PushSlice([]byte{0x89, modrm(0x03, aa, d)}); err != nil { // mov d, a
			return err
		}
	}
	switch op {
	case backend.OpAdd, backend.OpSub, backend.OpAnd, backend.OpOr, backend.OpXor:
		alu, _ := aluOpcode(op)
		return buf.PushSlice(aluRegReg(alu, d, bb))
	case backend.OpSLT, backend.OpSLTU:
		if err := buf.PushSlice(aluRegReg(aluCmp, d, bb)); err != nil {
			return err
		}
		cc := byte(0x9c) // setl
		if op == backend.OpSLTU {
			cc = 0x92 // setb
		}
		return buf.PushSlice(setccMovzx(cc, d))
	case backend.OpSLL, backend.OpSRL, backend.OpSRA:
		if bb != regCX {
			return fmt.Errorf("amd64: variable shift amount must be in Scratch1 (got host reg %d)", bb)
		}
		return buf.PushSlice(shiftRegCL(shiftExt(op), d))
	}
	return fmt.Errorf("amd64: unsupported ALU op %d", op)
}

func shiftExt(op backend.ALUOp) byte {
	switch op {
	case backend.OpSLL:
		return 4
	case backend.OpSRL:
		return 5
	case backend.OpSRA:
		return 7
	}
	return 4
}

func (Emitter) ALUImm(buf *backend.InsnBuf, op backend.ALUOp, dst, a backend.Scratch, imm int32) error {
	d, aa := scratchReg(dst), scratchReg(a)
	if d != aa {
		if err := buf.PushSlice([]byte{0x89, modrm(0x03, aa, d)}); err != nil {
			return err
		}
	}
	switch op {
	case backend.OpAdd, backend.OpSub, backend.OpAnd, backend.OpOr, backend.OpXor:
		alu, _ := aluOpcode(op)
		return buf.PushSlice(aluRegImm32(alu.immExt, d, imm))
	case backend.OpSLT, backend.OpSLTU:
		if err := buf.PushSlice(aluRegImm32(aluCmp.immExt, d, imm)); err != nil {
			return err
		}
		cc := byte(0x9c)
		if op == backend.OpSLTU {
			cc = 0x92
		}
		return buf.PushSlice(setccMovzx(cc, d))
	case backend.OpSLL, backend.OpSRL, backend.OpSRA:
		return buf.PushSlice(shiftRegImm8(shiftExt(op), d, uint8(imm)))
	}
	return fmt.Errorf("amd64: unsupported ALU imm op %d", op)
}

func (Emitter) CondBranch(buf *backend.InsnBuf, cond backend.Cond, a, b backend.Scratch) (*backend.Patch, error) {
	aa, bb := scratchReg(a), scratchReg(b)
	if err := buf.PushSlice(aluRegReg(aluCmp, aa, bb)); err != nil {
		return nil, err
	}
	jcc, ok := invertedJcc[cond]
	if !ok {
		return nil, fmt.Errorf("amd64: unsupported branch condition %d", cond)
	}
	jumpBlock, patchOff := jumpThroughReg64(0xe3) // jmp r11
	if err := buf.PushSlice([]byte{0x70 | (jcc & 0x0f), byte(len(jumpBlock))}); err != nil {
		return nil, err
	}
	base := buf.Size()
	if err := buf.PushSlice(jumpBlock); err != nil {
		return nil, err
	}
	return &backend.Patch{Offset: base + patchOff}, nil
}

func (Emitter) Jump(buf *backend.InsnBuf) (*backend.Patch, error) {
	jumpBlock, patchOff := jumpThroughReg64(0xe3)
	base := buf.Size()
	if err := buf.PushSlice(jumpBlock); err != nil {
		return nil, err
	}
	return &backend.Patch{Offset: base + patchOff}, nil
}

// callHelper marshals cpu (the reserved register), then up to two extra
// uint32 arguments, into the SysV argument registers, loads op into the
// fourth (RCX), and calls the single fixed helper trampoline. RDX and RCX
// are also Scratch2 and Scratch1 (see scratchReg), so this overwrites
// whatever those slots held; callHelper saves nothing, and callers that
// still need a value there (FastmemLoad/FastmemStore) push and pop it
// themselves. Every HelperOp enters Go through the same address; see
// HelperDispatchFunc.
func callHelper(buf *backend.InsnBuf, op backend.HelperOp, args ...backend.Scratch) error {
	// mov rdi, rbx (cpu pointer)
	if err := buf.PushSlice([]byte{0x48, 0x89, modrm(0x03, cpuPtrReg, regDI)}); err != nil {
		return err
	}
	argRegs := []byte{regSI, regDX}
	for i, a := range args {
		if i >= len(argRegs) {
			return fmt.Errorf("amd64: helper calls support at most %d arguments", len(argRegs))
		}
		if err := buf.PushSlice([]byte{0x89, modrm(0x03, scratchReg(a), argRegs[i])}); err != nil {
			return err
		}
	}
	if err := buf.PushSlice(movRegImm32(regCX, int32(op))); err != nil {
		return err
	}
	callBlock, _ := jumpThroughReg64(0xd3) // call r11
	return buf.PushSlice(append(movRegImm64(jumpTargetReg, uint64(helperTrampolineAddr())), callBlock[10:]...))
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

// fastmemBlockSize bounds the padded length of one inline fastmem sequence
// (address-resolve call, r11 zero test, inline dereference, fallback helper
// call). Sized against the worst case of the four width/signedness
// combinations (64 bytes for a load, 66 for a store, see derefLoadR11/
// derefStoreR11) with a few bytes of slack. emitLoad/emitStore's
// surrounding operand marshaling spends up to 24 more bytes, so one load or
// store instruction stays within 96 bytes, well under InsnBufCapacity (192).
const fastmemBlockSize = 70

// derefLoadR11 encodes a width/sign-aware load from [r11] into dst, r11
// holding the host pointer FastmemLoad's helper call already resolved and
// validated.
func derefLoadR11(dst byte, width backend.Width, signed bool) ([]byte, error) {
	switch width {
	case backend.Width8:
		op := byte(0xb6) // movzx
		if signed {
			op = 0xbe // movsx
		}
		return []byte{0x41, 0x0f, op, modrm(0x00, dst, 3)}, nil
	case backend.Width16:
		op := byte(0xb7)
		if signed {
			op = 0xbf
		}
		return []byte{0x41, 0x0f, op, modrm(0x00, dst, 3)}, nil
	case backend.Width32:
		return []byte{0x41, 0x8b, modrm(0x00, dst, 3)}, nil // mov dst, [r11]
	}
	return nil, fmt.Errorf("amd64: unsupported fastmem load width %d", width)
}

// derefStoreR11 encodes a width-aware store of src into [r11].
func derefStoreR11(src byte, width backend.Width) ([]byte, error) {
	switch width {
	case backend.Width8:
		return []byte{0x41, 0x88, modrm(0x00, src, 3)}, nil
	case backend.Width16:
		return []byte{0x66, 0x41, 0x89, modrm(0x00, src, 3)}, nil
	case backend.Width32:
		return []byte{0x41, 0x89, modrm(0x00, src, 3)}, nil
	}
	return nil, fmt.Errorf("amd64: unsupported fastmem store width %d", width)
}

// padFastmem appends NOPs to reach fastmemBlockSize, or fails if the
// assembled sequence already ran past it (the original Rust backend this is
// grounded on carries the same assert against its FASTMEM_BLOCK_SIZE).
func padFastmem(buf *backend.InsnBuf, used int) error {
	if used > fastmemBlockSize {
		return fmt.Errorf("amd64: fastmem sequence (%d bytes) exceeds fastmemBlockSize (%d)", used, fastmemBlockSize)
	}
	for i := used; i < fastmemBlockSize; i++ {
		if err := buf.PushByte(0x90); err != nil {
			return err
		}
	}
	return nil
}

// FastmemLoad emits: push addr; resolve it to a host pointer via
// HelperFastmemAddrLoad; stash the result in r11 before the pop restores
// addr (needed by the slow path); branch past the inline dereference when
// r11 is zero (no direct host backing, or a translation fault now pending
// on cpu.Exception); otherwise load through [r11] and jump over the slow
// helper call. See DESIGN.md and jitcore/recover.go for why this inline
// dereference never needs its own signal-recovery path: the address is
// validated before this point, never blind.
func (Emitter) FastmemLoad(buf *backend.InsnBuf, dst, addr backend.Scratch, width backend.Width, signed bool, slowOp backend.HelperOp) error {
	addrReg, dstReg := scratchReg(addr), scratchReg(dst)

	var slow backend.InsnBuf
	if err := callHelper(&slow, slowOp, addr); err != nil {
		return err
	}
	if dstReg != regAX {
		if err := slow.PushSlice([]byte{0x89, modrm(0x03, regAX, dstReg)}); err != nil {
			return err
		}
	}

	deref, err := derefLoadR11(dstReg, width, signed)
	if err != nil {
		return err
	}
	var fast backend.InsnBuf
	if err := fast.PushSlice(deref); err != nil {
		return err
	}
	if err := fast.PushSlice([]byte{0xeb, byte(slow.Size())}); err != nil { // jmp rel8, over slow
		return err
	}

	start := buf.Size()
	if err := buf.PushByte(0x50 + addrReg); err != nil { // push addr
		return err
	}
	if err := callHelper(buf, backend.HelperFastmemAddrLoad, addr); err != nil {
		return err
	}
	if err := buf.PushSlice([]byte{0x49, 0x89, 0xc3}); err != nil { // mov r11, rax
		return err
	}
	if err := buf.PushByte(0x58 + addrReg); err != nil { // pop addr
		return err
	}
	if err := buf.PushSlice([]byte{0x4d, 0x85, 0xdb}); err != nil { // test r11, r11
		return err
	}
	if err := buf.PushSlice([]byte{0x74, byte(fast.Size())}); err != nil { // jz rel8, over fast block
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

// FastmemStore mirrors FastmemLoad: push both addr and val, resolve addr via
// HelperFastmemAddrStore, restore val then addr (LIFO) before testing r11,
// and either store through [r11] inline or fall back to CallHelper(slowOp,
// addr, val).
func (Emitter) FastmemStore(buf *backend.InsnBuf, addr, val backend.Scratch, width backend.Width, slowOp backend.HelperOp) error {
	addrReg, valReg := scratchReg(addr), scratchReg(val)

	var slow backend.InsnBuf
	if err := callHelper(&slow, slowOp, addr, val); err != nil {
		return err
	}

	deref, err := derefStoreR11(valReg, width)
	if err != nil {
		return err
	}
	var fast backend.InsnBuf
	if err := fast.PushSlice(deref); err != nil {
		return err
	}
	if err := fast.PushSlice([]byte{0xeb, byte(slow.Size())}); err != nil {
		return err
	}

	start := buf.Size()
	if err := buf.PushByte(0x50 + addrReg); err != nil { // push addr
		return err
	}
	if err := buf.PushByte(0x50 + valReg); err != nil { // push val
		return err
	}
	if err := callHelper(buf, backend.HelperFastmemAddrStore, addr); err != nil {
		return err
	}
	if err := buf.PushSlice([]byte{0x49, 0x89, 0xc3}); err != nil { // mov r11, rax
		return err
	}
	if err := buf.PushByte(0x58 + valReg); err != nil { // pop val
		return err
	}
	if err := buf.PushByte(0x58 + addrReg); err != nil { // pop addr
		return err
	}
	if err := buf.PushSlice([]byte{0x4d, 0x85, 0xdb}); err != nil { // test r11, r11
		return err
	}
	if err := buf.PushSlice([]byte{0x74, byte(fast.Size())}); err != nil { // jz rel8, over fast block
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
	for i := 0; i < n; i++ {
		if err := buf.PushByte(0x90); err != nil {
			return err
		}
	}
	return nil
}

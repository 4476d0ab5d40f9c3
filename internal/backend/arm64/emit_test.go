package arm64

import (
	"encoding/binary"
	"testing"

	"github.com/rv32dbt/core/internal/backend"
)

func TestLoadImmEncodesMovz(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.LoadImm(&buf, backend.Scratch0, 0x1234); err != nil {
		t.Fatalf("LoadImm: %v", err)
	}
	if buf.Size() != 4 {
		t.Fatalf("small immediate should need only one MOVZ word, got %d bytes", buf.Size())
	}
	got := binary.LittleEndian.Uint32(buf.AsSlice())
	want := movzW(regX0, 0x1234)
	if got != want {
		t.Fatalf("word = %#x, want %#x", got, want)
	}
}

func TestLoadImmWithHighHalfEmitsMovk(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.LoadImm(&buf, backend.Scratch1, int32(-1)); err != nil {
		t.Fatalf("LoadImm: %v", err)
	}
	if buf.Size() != 8 {
		t.Fatalf("expected MOVZ+MOVK pair, got %d bytes", buf.Size())
	}
}

func TestJumpLiteralPatchOffset(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	patch, err := e.Jump(&buf)
	if err != nil {
		t.Fatalf("Jump: %v", err)
	}
	if patch.Offset != 8 {
		t.Fatalf("Offset=%d, want 8 (after LDR literal + BR, two 4-byte words)", patch.Offset)
	}
	if patch.Offset+8 != buf.Size() {
		t.Fatalf("literal pool should be exactly 8 bytes, buf size=%d offset=%d", buf.Size(), patch.Offset)
	}
}

func TestFastmemLoadPadsToFixedBlockSizeAndBranchesLocally(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.FastmemLoad(&buf, backend.Scratch0, backend.Scratch1, backend.Width32, false, backend.HelperLoad32); err != nil {
		t.Fatalf("FastmemLoad: %v", err)
	}
	if buf.Size() != fastmemBlockSize {
		t.Fatalf("Size()=%d, want fixed block size %d", buf.Size(), fastmemBlockSize)
	}
	raw := buf.AsSlice()
	wantStash := movReg64(jumpTargetReg, regX0)
	foundStashThenCBZ := false
	for off := 0; off+8 <= len(raw); off += 4 {
		if binary.LittleEndian.Uint32(raw[off:off+4]) != wantStash {
			continue
		}
		next := binary.LittleEndian.Uint32(raw[off+4 : off+8])
		if next&0xff000000 == 0xb4000000 { // CBZ
			foundStashThenCBZ = true
			break
		}
	}
	if !foundStashThenCBZ {
		t.Fatalf("expected MOV X9, X0 immediately followed by a CBZ somewhere in %x", raw)
	}
}

func TestFastmemStoreUnsupportedWidthIsAnError(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.FastmemStore(&buf, backend.Scratch1, backend.Scratch2, backend.Width(99), backend.HelperStore32); err == nil {
		t.Fatalf("expected an error for an unsupported fastmem width")
	}
}

func TestCallHelperLoadsCPUPointerLast(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.CallHelper(&buf, backend.HelperOp(1), backend.Scratch0, backend.Scratch1); err != nil {
		t.Fatalf("CallHelper: %v", err)
	}
	// Last non-literal instruction before the branch block's LDR/BLR must be
	// the "MOV X0, X9" (cpu pointer restore), which comes after the op
	// selector has been loaded into X3.
	// layout: mov x9,x19 ; mov x1,<a> ; mov x2,<b> ; movz x3,#op ; mov x0,x9 ; sub sp,sp,#16; str lr,[sp]; ldr x9,lit; blr x9; [8-byte lit]; ldr lr,[sp]; add sp,sp,#16
	words := buf.AsSlice()
	movX0X9 := binary.LittleEndian.Uint32(words[16:20])
	if movX0X9 != movReg64(regX0, jumpTargetReg) {
		t.Fatalf("expected MOV X0, X9 at offset 16, got word %#x", movX0X9)
	}
}

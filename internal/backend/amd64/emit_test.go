package amd64

import (
	"testing"

	"github.com/rv32dbt/core/internal/backend"
)

func TestLoadImmEncodesMovRegImm32(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.LoadImm(&buf, backend.Scratch0, 0x12345678); err != nil {
		t.Fatalf("LoadImm: %v", err)
	}
	got := buf.AsSlice()
	want := []byte{0xb8, 0x78, 0x56, 0x34, 0x12} // mov eax, imm32
	if string(got) != string(want) {
		t.Fatalf("LoadImm bytes = % x, want % x", got, want)
	}
}

func TestALURegAdd(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.ALUReg(&buf, backend.OpAdd, backend.Scratch0, backend.Scratch0, backend.Scratch1); err != nil {
		t.Fatalf("ALUReg: %v", err)
	}
	// dst==a, so no preceding mov; just "add eax, ecx".
	want := []byte{0x03, modrm(0x03, regAX, regCX)}
	got := buf.AsSlice()
	if string(got) != string(want) {
		t.Fatalf("ALUReg(add) bytes = % x, want % x", got, want)
	}
}

func TestCondBranchPatchOffsetLandsOnImm64Field(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	patch, err := e.CondBranch(&buf, backend.CondEQ, backend.Scratch0, backend.Scratch1)
	if err != nil {
		t.Fatalf("CondBranch: %v", err)
	}
	if patch.Offset+8 > buf.Size() {
		t.Fatalf("patch offset %d leaves no room for an 8-byte pointer in a %d-byte buffer", patch.Offset, buf.Size())
	}
	// The byte at patch.Offset-2 must be the movabs r11 opcode (REX.WB, B8+3).
	b := buf.AsSlice()
	if b[patch.Offset-2] != 0x49 || b[patch.Offset-1] != 0xbb {
		t.Fatalf("expected movabs r11 opcode immediately before the patch site, got % x", b[patch.Offset-2:patch.Offset])
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
	got := buf.AsSlice()
	if got[0] != 0x50+regCX { // push rcx (addr is Scratch1)
		t.Fatalf("expected push addr as first byte, got %#x", got[0])
	}
	// test r11, r11 must appear before the padding, followed by a short jz
	// whose target is an in-buffer, non-padding offset.
	foundTest := false
	for i := 0; i+5 < len(got); i++ {
		if got[i] == 0x4d && got[i+1] == 0x85 && got[i+2] == 0xdb && got[i+3] == 0x74 {
			foundTest = true
			jzTarget := i + 4 + 1 + int(got[i+4])
			if jzTarget >= fastmemBlockSize {
				t.Fatalf("jz target %d falls outside the unpadded sequence", jzTarget)
			}
			break
		}
	}
	if !foundTest {
		t.Fatalf("expected a test r11,r11 / jz sequence in %x", got)
	}
}

func TestFastmemStoreUnsupportedWidthIsAnError(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.FastmemStore(&buf, backend.Scratch1, backend.Scratch2, backend.Width(99), backend.HelperStore32); err == nil {
		t.Fatalf("expected an error for an unsupported fastmem width")
	}
}

func TestNopPadsRequestedLength(t *testing.T) {
	var buf backend.InsnBuf
	e := Emitter{}
	if err := e.Nop(&buf, 5); err != nil {
		t.Fatalf("Nop: %v", err)
	}
	if buf.Size() != 5 {
		t.Fatalf("Size()=%d, want 5", buf.Size())
	}
	for _, b := range buf.AsSlice() {
		if b != 0x90 {
			t.Fatalf("expected all 0x90 nops, got % x", buf.AsSlice())
		}
	}
}

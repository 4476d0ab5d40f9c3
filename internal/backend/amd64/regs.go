// Package amd64 implements the backend.Emitter capability interfaces for
// the x86-64 host, grounded in the same direct byte-encoding approach the
// teacher's asm/amd64 package uses (encode helpers building raw opcode
// bytes rather than going through an external assembler).
package amd64

import "github.com/rv32dbt/core/internal/backend"

// Host register encodings used by this backend. The Scratch slots and the
// CPU pointer all live in the low eight GPRs, so their encodings need at most
// REX.W. The one extended register, R11 (jumpTargetReg below), is reached
// only by encodings that add their own REX.B/REX.R bits.
const (
	regAX = 0
	regCX = 1
	regDX = 2
	regBX = 3
	regSP = 4
	regBP = 5
	regSI = 6
	regDI = 7
)

// scratchReg maps a backend.Scratch slot to its fixed host register.
func scratchReg(s backend.Scratch) byte {
	switch s {
	case backend.Scratch0:
		return regAX
	case backend.Scratch1:
		return regCX
	case backend.Scratch2:
		return regDX
	default:
		return regAX
	}
}

// cpuPtrReg is the reserved register holding the *guest.CPU pointer for the
// lifetime of a translated block's execution. Callee-saved under both SysV
// and Go's ABI0, so the CallJIT trampoline saves and restores it.
const cpuPtrReg = regBX

// jumpTargetReg is a scratch-of-scratch register used only to stage a
// patched absolute jump target; never exposed through the Scratch API so
// frontend-held values can never collide with it.
const jumpTargetReg = 11 // R11

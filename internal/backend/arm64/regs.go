// Package arm64 implements the backend.Emitter capability interfaces for
// the AArch64 host, grounded in the teacher's asm/arm64 fixed-width
// instruction-word encoding style.
package arm64

import "github.com/rv32dbt/core/internal/backend"

const (
	regX0  = 0
	regX1  = 1
	regX2  = 2
	regX3  = 3 // holds the HelperOp selector across a helper call
	regX9  = 9  // jump-target scratch, never exposed as a Scratch slot
	regX19 = 19 // reserved CPU-pointer register, callee-saved
	regLR  = 30
	regZR  = 31
	regSP  = 31 // same bit pattern as regZR; meaning depends on instruction class
)

func scratchReg(s backend.Scratch) uint32 {
	switch s {
	case backend.Scratch0:
		return regX0
	case backend.Scratch1:
		return regX1
	case backend.Scratch2:
		return regX2
	default:
		return regX0
	}
}

const cpuPtrReg = regX19
const jumpTargetReg = regX9

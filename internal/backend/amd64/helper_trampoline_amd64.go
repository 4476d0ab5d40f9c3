//go:build linux && amd64

package amd64

import (
	"reflect"

	"github.com/rv32dbt/core/internal/backend"
)

// helperDispatch is the Go-registered sink every translated block's helper
// call eventually reaches. Set once via SetHelperDispatch before any
// translated code runs.
var helperDispatch backend.HelperDispatchFunc

// SetHelperDispatch implements backend.BackendCore.
func (Emitter) SetHelperDispatch(fn backend.HelperDispatchFunc) {
	helperDispatch = fn
}

// helperTrampolineAsm is the single address every CallHelper-family
// emission calls into, implemented in helperTrampoline_amd64.s. It bridges
// from the raw SysV register convention JIT code uses into an ordinary,
// ABI-checked Go call, the same crossing callJITAsm makes in the opposite
// direction.
func helperTrampolineAsm()

func helperTrampolineAddr() uintptr {
	return reflect.ValueOf(helperTrampolineAsm).Pointer()
}

// goHelperDispatchShim is called from helperTrampolineAsm with the SysV
// argument registers already moved onto the Go stack-call frame. Kept
// uint64-only to sidestep mixed-width stack-slot alignment in the hand
// written frame layout.
func goHelperDispatchShim(cpu uintptr, a, b, op uint64) uint64 {
	return uint64(helperDispatch(cpu, uint32(a), uint32(b), backend.HelperOp(op)))
}

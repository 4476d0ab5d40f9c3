//go:build linux && arm64

package arm64

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
// emission calls into, implemented in helperTrampoline_arm64.s.
func helperTrampolineAsm()

func helperTrampolineAddr() uintptr {
	return reflect.ValueOf(helperTrampolineAsm).Pointer()
}

// goHelperDispatchShim is called from helperTrampolineAsm with the AAPCS64
// argument registers already moved onto the Go stack-call frame.
func goHelperDispatchShim(cpu uintptr, a, b, op uint64) uint64 {
	return uint64(helperDispatch(cpu, uint32(a), uint32(b), backend.HelperOp(op)))
}

//go:build linux && arm64

package arm64

import "github.com/rv32dbt/core/internal/backend"

// CallJIT transfers control to translated code at entry with the reserved
// CPU-pointer register (X19) loaded from cpu, and returns the value left in
// W0 by the block's Return sequence (always 0).
func (Emitter) CallJIT(entry uintptr, cpu uintptr) uint32 {
	return callJITAsm(entry, cpu)
}

func callJITAsm(entry uintptr, cpu uintptr) uint32

// faultPCResolver is the jitcore-supplied callback behind
// find_guest_pc_from_host_stack_frame (spec §4.E). Only jitcore can
// implement it (it needs the Insn Map), so this package just stores and
// forwards it, the same shape helperDispatch already uses.
var faultPCResolver backend.FaultPCResolver

// SetFaultPCResolver implements backend.BackendCore.
func (Emitter) SetFaultPCResolver(fn backend.FaultPCResolver) {
	faultPCResolver = fn
}

// FindGuestPC implements backend.BackendCore: it forwards a host PC
// captured by jitcore's fault recovery path (see jitcore.Protected) to the
// registered resolver, reporting ok=false until one has been registered.
func (Emitter) FindGuestPC(hostPC uintptr) (uint32, bool) {
	if faultPCResolver == nil {
		return 0, false
	}
	return faultPCResolver(hostPC)
}

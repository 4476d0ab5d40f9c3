//go:build linux || darwin

package jitcore

import (
	"runtime"
	"runtime/debug"
)

// protectedImpl arms runtime/debug.SetPanicOnFault for the duration of fn
// and recovers the resulting panic, per spec §4.K's host-signal-recovery
// item. See Protected's doc comment for why this is a safety net against an
// engine bug rather than a guest-fault-recovery mechanism.
//
// runtime.Callers is called from inside the deferred recover, which is the
// one point a panicking goroutine's stack is still walkable (the same
// trick runtime/debug.Stack relies on); the first PC it reports is used as
// hostPC. Best-effort only: if the fault occurred mid-block in a JIT code
// page the unwinder has no frame info for, it may report a PC further up
// the stack (inside CallJIT's own asm frame) instead, and the caller's
// find_guest_pc_from_host_stack_frame lookup simply won't resolve it.
func protectedImpl(fn func()) (faulted bool, hostPC uintptr) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)
	defer func() {
		if recover() != nil {
			faulted = true
			var pcs [8]uintptr
			if n := runtime.Callers(2, pcs[:]); n > 0 {
				hostPC = pcs[0]
			}
		}
	}()
	fn()
	return false, 0
}

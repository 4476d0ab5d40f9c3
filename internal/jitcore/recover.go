package jitcore

// Protected runs fn with the platform's returnable-handler recovery armed,
// per spec §4.K's Executing->Handling transition item (b). It reports
// whether a host fault was caught and, best-effort, the host PC the
// runtime's stack unwinder could still see at the point of recovery (spec
// §4.E's find_guest_pc_from_host_stack_frame feeds on exactly this value;
// see jitcore.Hart.findGuestPCFromHostPC).
//
// This implementation does not install a raw sigaction/ucontext handler
// the way returnable_posix.rs does: runtime/debug.SetPanicOnFault only
// converts a fault into a recoverable panic for PCs the Go runtime
// recognizes (has symbol/frame info for), and a JIT code page's bytes carry
// none. So FastmemLoad/FastmemStore (see both backends' emit.go) never
// perform a blind inline dereference: the address is resolved and
// bounds-checked by a Go-side helper call first (HelperFastmemAddrLoad/
// Store, TLB-first per §4.H), and the inline sequence only dereferences a
// pointer that call already validated, falling back to the ordinary helper
// path on any failure. A genuine guest memory access therefore still can't
// raise a host SIGSEGV/SIGBUS here, by construction rather than by
// omission; what Protected actually guards against is a bug in the hand
// emitted machine code itself (a backend encoder defect producing some
// other bad pointer dereference), which is a host-engine-internal fault,
// not a guest-visible one, so recovering it here prevents one translated
// block's bug from taking down the whole process instead of reporting a
// precise guest fault for it.
func Protected(fn func()) (faulted bool, hostPC uintptr) {
	return protectedImpl(fn)
}

//go:build windows

package jitcore

import (
	"runtime"
	"runtime/debug"
)

// protectedImpl on Windows uses the same SetPanicOnFault safety net as the
// POSIX build. A SEH-based returnable handler is a genuine open question
// (spec §9's "Windows flavor") left undecided by the distillation; this
// core targets Linux/amd64+arm64 only, matching the teacher's build
// matrix, so this stub exists to keep the package buildable on Windows
// rather than to implement SEH recovery.
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

//go:build linux || darwin

package pagealloc

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// unixAllocator backs the code cache with anonymous mmap regions, following
// the mmap/mprotect usage in the teacher's asm/amd64/exec.go trampoline
// allocator.
type unixAllocator struct {
	pageSize int

	mu    sync.Mutex
	stats Stats
}

// New returns the OS-backed page allocator for the current platform.
func New() Allocator {
	return &unixAllocator{pageSize: unix.Getpagesize()}
}

func (a *unixAllocator) PageSize() int { return a.pageSize }

func (a *unixAllocator) Alloc(npages int) (uintptr, error) {
	return a.allocAt(0, npages, false)
}

func (a *unixAllocator) AllocAt(address uintptr, npages int) (uintptr, error) {
	return a.allocAt(address, npages, true)
}

// rawMmap calls mmap(2) directly rather than through unix.Mmap, which has no
// way to express a fixed-address hint; fixed placement is required to
// identity-map guest physical RAM at the guest's configured base.
func rawMmap(address uintptr, size int, fixed bool) (uintptr, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if fixed {
		flags |= unix.MAP_FIXED
	}
	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, address, uintptr(size),
		uintptr(unix.PROT_READ|unix.PROT_WRITE), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return 0, errno
	}
	return addr, nil
}

func (a *unixAllocator) allocAt(address uintptr, npages int, fixed bool) (uintptr, error) {
	if npages <= 0 {
		return 0, unknownError("alloc", fmt.Errorf("npages must be positive, got %d", npages))
	}
	size := npages * a.pageSize

	base, err := rawMmap(address, size, fixed)
	if err != nil {
		if err == unix.ENOMEM {
			return 0, outOfMemory("alloc", err)
		}
		return 0, unknownError("alloc", err)
	}

	if fixed && base != address {
		_, _, _ = unix.Syscall(unix.SYS_MUNMAP, base, uintptr(size), 0)
		return 0, unknownError("alloc_at", fmt.Errorf("kernel placed mapping at %#x, wanted %#x", base, address))
	}

	a.mu.Lock()
	a.stats.PagesAllocated += npages
	a.stats.PagesLive += npages
	a.mu.Unlock()

	return base, nil
}

func (a *unixAllocator) Free(ptr uintptr, npages int) error {
	if npages <= 0 {
		return nil
	}
	size := npages * a.pageSize
	if _, _, errno := unix.Syscall(unix.SYS_MUNMAP, ptr, uintptr(size), 0); errno != 0 {
		return unknownError("free", errno)
	}
	a.mu.Lock()
	a.stats.PagesLive -= npages
	a.mu.Unlock()
	return nil
}

func (a *unixAllocator) Mark(ptr uintptr, npages int, state State) error {
	if npages <= 0 {
		return nil
	}
	size := npages * a.pageSize

	var prot int
	switch state {
	case ReadWrite:
		prot = unix.PROT_READ | unix.PROT_WRITE
	case ReadExecute:
		prot = unix.PROT_READ | unix.PROT_EXEC
	case NoAccess:
		prot = unix.PROT_NONE
	default:
		return unknownError("mark", fmt.Errorf("invalid state %v", state))
	}

	if err := unix.Mprotect(a.Bytes(ptr, npages), prot); err != nil {
		return unknownError("mark", err)
	}
	return nil
}

func (a *unixAllocator) Realloc(ptr uintptr, oldPages, newPages int) (uintptr, error) {
	if newPages <= oldPages {
		// Shrinking or unchanged: in place. We don't unmap the tail because
		// CodePage tracks its own logical size; the extra pages are simply
		// unused capacity until the next growth.
		return ptr, nil
	}

	newPtr, err := a.Alloc(newPages)
	if err != nil {
		return 0, err
	}

	if oldPages > 0 {
		oldBytes := a.Bytes(ptr, oldPages)
		newBytes := a.Bytes(newPtr, oldPages)
		copy(newBytes, oldBytes)
		if err := a.Free(ptr, oldPages); err != nil {
			return 0, err
		}
	}

	return newPtr, nil
}

func (a *unixAllocator) Bytes(ptr uintptr, npages int) []byte {
	size := npages * a.pageSize
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
}

func (a *unixAllocator) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

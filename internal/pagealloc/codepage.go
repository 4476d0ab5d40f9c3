package pagealloc

import "fmt"

// initialCodePages is the starting capacity of a fresh CodePage, in whole
// host pages. Growth doubles from here.
const initialCodePages = 1

// CodePage is an append-only host-code buffer. It grows by doubling,
// copying live bytes into a fresh region and rebasing, per spec §4.B. State
// transitions (mark_rw, mark_rx, mark_invalid) are idempotent; push always
// transitions to ReadWrite first if necessary.
type CodePage struct {
	alloc Allocator

	base     uintptr
	capacity int // bytes
	size     int // bytes used
	state    State
}

// NewCodePage allocates a fresh, empty, ReadWrite code page.
func NewCodePage(alloc Allocator) (*CodePage, error) {
	npages := initialCodePages
	base, err := alloc.Alloc(npages)
	if err != nil {
		return nil, fmt.Errorf("pagealloc: new code page: %w", err)
	}
	return &CodePage{
		alloc:    alloc,
		base:     base,
		capacity: npages * alloc.PageSize(),
		state:    ReadWrite,
	}, nil
}

// Begin returns the host address of the first byte of the page.
func (p *CodePage) Begin() uintptr { return p.base }

// End returns the host address just past the last live byte.
func (p *CodePage) End() uintptr { return p.base + uintptr(p.size) }

// Size returns the number of bytes emitted so far.
func (p *CodePage) Size() int { return p.size }

// Capacity returns the number of bytes currently allocated.
func (p *CodePage) Capacity() int { return p.capacity }

// State returns the page's current protection.
func (p *CodePage) State() State { return p.state }

// Contains reports whether host address addr lies within the page's live
// bytes.
func (p *CodePage) Contains(addr uintptr) bool {
	return addr >= p.base && addr < p.base+uintptr(p.size)
}

// Push appends data to the page, growing (by doubling) if needed.
// Transitions to ReadWrite first if the page isn't already writable.
func (p *CodePage) Push(data []byte) (uintptr, error) {
	if p.state != ReadWrite {
		if err := p.MarkRW(); err != nil {
			return 0, err
		}
	}

	need := p.size + len(data)
	for need > p.capacity {
		if err := p.grow(); err != nil {
			return 0, err
		}
	}

	dst := p.alloc.Bytes(p.base, p.capacity/p.alloc.PageSize())
	off := p.size
	copy(dst[off:off+len(data)], data)
	p.size += len(data)

	return p.base + uintptr(off), nil
}

// WriteAt overwrites already-pushed bytes at byte offset off, used by the
// jump patch list to backfill a site reserved earlier in the same page with
// a now-known target host address. off+len(data) must not exceed Size().
func (p *CodePage) WriteAt(off int, data []byte) error {
	if off < 0 || off+len(data) > p.size {
		return fmt.Errorf("pagealloc: WriteAt out of range (off=%d len=%d size=%d)", off, len(data), p.size)
	}
	if p.state != ReadWrite {
		if err := p.MarkRW(); err != nil {
			return err
		}
	}
	dst := p.alloc.Bytes(p.base, p.capacity/p.alloc.PageSize())
	copy(dst[off:off+len(data)], data)
	return nil
}

func (p *CodePage) grow() error {
	oldPages := p.capacity / p.alloc.PageSize()
	newPages := oldPages * 2
	if newPages == 0 {
		newPages = initialCodePages
	}

	newBase, err := p.alloc.Realloc(p.base, oldPages, newPages)
	if err != nil {
		return fmt.Errorf("pagealloc: grow code page: %w", err)
	}

	p.base = newBase
	p.capacity = newPages * p.alloc.PageSize()
	return nil
}

// MarkRW transitions the page to ReadWrite. Idempotent.
func (p *CodePage) MarkRW() error {
	if p.state == ReadWrite {
		return nil
	}
	if err := p.alloc.Mark(p.base, p.pages(), ReadWrite); err != nil {
		return err
	}
	p.state = ReadWrite
	return nil
}

// MarkRX transitions the page to ReadExecute. Idempotent.
func (p *CodePage) MarkRX() error {
	if p.state == ReadExecute {
		return nil
	}
	if err := p.alloc.Mark(p.base, p.pages(), ReadExecute); err != nil {
		return err
	}
	p.state = ReadExecute
	return nil
}

// MarkInvalid transitions the page to NoAccess. Idempotent. Used when a
// translation is torn down by gpfn invalidation, ahead of Free.
func (p *CodePage) MarkInvalid() error {
	if p.state == NoAccess {
		return nil
	}
	if err := p.alloc.Mark(p.base, p.pages(), NoAccess); err != nil {
		return err
	}
	p.state = NoAccess
	return nil
}

// Free releases the page's host memory. The page must not be used again.
func (p *CodePage) Free() error {
	return p.alloc.Free(p.base, p.pages())
}

func (p *CodePage) pages() int {
	return p.capacity / p.alloc.PageSize()
}

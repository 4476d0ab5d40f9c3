//go:build linux || darwin

package pagealloc

import "testing"

func TestAllocMarkFree(t *testing.T) {
	a := New()

	ptr, err := a.Alloc(1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	defer a.Free(ptr, 1)

	buf := a.Bytes(ptr, 1)
	buf[0] = 0xC3 // RET

	if err := a.Mark(ptr, 1, ReadExecute); err != nil {
		t.Fatalf("Mark(ReadExecute): %v", err)
	}

	// Idempotent: marking the same state twice must not error.
	if err := a.Mark(ptr, 1, ReadExecute); err != nil {
		t.Fatalf("Mark(ReadExecute) again: %v", err)
	}

	if err := a.Mark(ptr, 1, ReadWrite); err != nil {
		t.Fatalf("Mark(ReadWrite): %v", err)
	}
	if got := a.Bytes(ptr, 1)[0]; got != 0xC3 {
		t.Fatalf("byte after mark round-trip = %#x, want 0xc3", got)
	}
}

func TestAllocInvalidSize(t *testing.T) {
	a := New()
	if _, err := a.Alloc(0); err == nil {
		t.Fatal("expected error allocating zero pages")
	}
}

func TestCodePageGrowsByDoubling(t *testing.T) {
	a := New()
	cp, err := NewCodePage(a)
	if err != nil {
		t.Fatalf("NewCodePage: %v", err)
	}
	defer cp.Free()

	startCap := cp.Capacity()
	big := make([]byte, startCap+1)
	for i := range big {
		big[i] = byte(i)
	}

	if _, err := cp.Push(big); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if cp.Capacity() <= startCap {
		t.Fatalf("capacity did not grow: %d -> %d", startCap, cp.Capacity())
	}
	if cp.Capacity()%startCap != 0 {
		t.Fatalf("capacity %d is not a multiple of the original %d (doubling)", cp.Capacity(), startCap)
	}
	if cp.Size() != len(big) {
		t.Fatalf("Size()=%d, want %d", cp.Size(), len(big))
	}
}

func TestCodePagePushTransitionsToRW(t *testing.T) {
	a := New()
	cp, err := NewCodePage(a)
	if err != nil {
		t.Fatalf("NewCodePage: %v", err)
	}
	defer cp.Free()

	if err := cp.MarkRX(); err != nil {
		t.Fatalf("MarkRX: %v", err)
	}
	if _, err := cp.Push([]byte{0x90}); err != nil {
		t.Fatalf("Push after MarkRX: %v", err)
	}
	if cp.State() != ReadWrite {
		t.Fatalf("state after Push = %v, want ReadWrite", cp.State())
	}
}

func TestMarkIdempotence(t *testing.T) {
	a := New()
	cp, err := NewCodePage(a)
	if err != nil {
		t.Fatalf("NewCodePage: %v", err)
	}
	defer cp.Free()

	for _, s := range []State{ReadWrite, ReadExecute, NoAccess, NoAccess, ReadWrite} {
		if err := markState(cp, s); err != nil {
			t.Fatalf("Mark(%v): %v", s, err)
		}
		if cp.State() != s {
			t.Fatalf("State()=%v, want %v", cp.State(), s)
		}
	}
}

func markState(cp *CodePage, s State) error {
	switch s {
	case ReadWrite:
		return cp.MarkRW()
	case ReadExecute:
		return cp.MarkRX()
	case NoAccess:
		return cp.MarkInvalid()
	}
	return nil
}

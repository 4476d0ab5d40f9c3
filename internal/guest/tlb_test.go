package guest

import "testing"

func TestTLBSetInsertLookupRoundTrip(t *testing.T) {
	alloc := NewASIDAllocator()
	set := NewTLBSet(alloc)

	set.Insert(0x40001000, 0x80007000, true)
	phys, writable, ok := set.Lookup(0x40001123)
	if !ok {
		t.Fatal("expected a TLB hit")
	}
	if phys != 0x80007123 {
		t.Fatalf("phys=%#x, want %#x", phys, 0x80007123)
	}
	if !writable {
		t.Fatal("expected writable bit to round trip")
	}
}

func TestTLBSetFlushEntry(t *testing.T) {
	alloc := NewASIDAllocator()
	set := NewTLBSet(alloc)

	set.Insert(0x1000, 0x2000, false)
	set.FlushEntry(0x1000)
	if _, _, ok := set.Lookup(0x1000); ok {
		t.Fatal("expected miss after FlushEntry")
	}
}

func TestTLBSetFlushAll(t *testing.T) {
	alloc := NewASIDAllocator()
	set := NewTLBSet(alloc)

	set.Insert(0x1000, 0x2000, false)
	set.Insert(0x3000, 0x4000, false)
	set.FlushAll()
	if _, _, ok := set.Lookup(0x1000); ok {
		t.Fatal("expected miss after FlushAll")
	}
	if _, _, ok := set.Lookup(0x3000); ok {
		t.Fatal("expected miss after FlushAll")
	}
}

func TestTLBSetPerASIDIsolation(t *testing.T) {
	alloc := NewASIDAllocator()
	set := NewTLBSet(alloc)

	set.SwitchASID(1)
	set.Insert(0x1000, 0xaaaa000, false)

	set.SwitchASID(2)
	if _, _, ok := set.Lookup(0x1000); ok {
		t.Fatal("ASID 2 should not see ASID 1's mapping")
	}

	set.SwitchASID(1)
	if _, _, ok := set.Lookup(0x1000); !ok {
		t.Fatal("switching back to ASID 1 should restore its mapping")
	}
}

func TestASIDAllocatorEvictsLeastRecentlyUsed(t *testing.T) {
	alloc := NewASIDAllocator()
	set := NewTLBSet(alloc)

	// Fill every bank with a distinct ASID, mapping 0x1000 each time.
	for asid := uint32(0); asid < MaxASIDEntries; asid++ {
		set.SwitchASID(asid)
		set.Insert(0x1000, 0x1000*(asid+1), false)
	}

	// Touch every ASID except 0, making ASID 0 the LRU victim.
	for asid := uint32(1); asid < MaxASIDEntries; asid++ {
		set.SwitchASID(asid)
		set.Lookup(0x1000)
	}

	// Allocating one more distinct ASID should evict ASID 0's bank.
	set.SwitchASID(MaxASIDEntries)
	set.Insert(0x1000, 0x9999, false)

	set.SwitchASID(0)
	if _, _, ok := set.Lookup(0x1000); ok {
		t.Fatal("expected ASID 0's bank to have been evicted as LRU")
	}
}

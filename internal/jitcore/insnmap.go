package jitcore

// maxWalkBack bounds the backward scan a host-PC reverse lookup performs,
// per spec §4.L: a call embedded mid-block pushes a return address that
// does not itself start an emitted instruction, so the lookup walks
// backward byte by byte until it finds one that does.
const maxWalkBack = 64

// insnEntry is one (guest_pc, host_ptr, block_id) tuple, per spec §4.L.
type insnEntry struct {
	guestPC uint32
	hostPtr uintptr
	blockID uint32
}

// insnMap is the bidirectional guest_pc<->host_ptr table backing block
// lookup, reverse fault recovery, and gpfn-region invalidation. Strictly
// per-hart, per spec §5's concurrency model — never touched cross-thread.
type insnMap struct {
	byGuestPC map[uint32]insnEntry
	byHostPtr map[uintptr]insnEntry
}

func newInsnMap() *insnMap {
	return &insnMap{
		byGuestPC: make(map[uint32]insnEntry),
		byHostPtr: make(map[uintptr]insnEntry),
	}
}

// add records a freshly emitted guest instruction's host address.
func (m *insnMap) add(guestPC uint32, hostPtr uintptr, blockID uint32) {
	e := insnEntry{guestPC: guestPC, hostPtr: hostPtr, blockID: blockID}
	m.byGuestPC[guestPC] = e
	m.byHostPtr[hostPtr] = e
}

// addAlias records a second guest virtual address mapping to an already
// emitted entry, for paged views of the same physical translation.
func (m *insnMap) addAlias(guestVirt uint32, existing insnEntry) {
	m.byGuestPC[guestVirt] = existing
}

// lookupByGuestPC returns the entry for an exact guest PC, used to find an
// already-translated block's entry point before retranslating.
func (m *insnMap) lookupByGuestPC(pc uint32) (insnEntry, bool) {
	e, ok := m.byGuestPC[pc]
	return e, ok
}

// lookupByHostPtr scans backward from p, p-1, ..., p-maxWalkBack for a
// recorded host_ptr, per spec §4.L: a return address pushed by a call
// embedded in a translated block lands just past the call instruction, not
// exactly on a recorded entry.
func (m *insnMap) lookupByHostPtr(p uintptr) (insnEntry, bool) {
	for off := uintptr(0); off <= maxWalkBack && off <= p; off++ {
		if e, ok := m.byHostPtr[p-off]; ok {
			return e, true
		}
	}
	return insnEntry{}, false
}

// removeByGuestRegion drops every mapping in [lo, hi), used when a gpfn's
// code page is torn down by invalidation.
func (m *insnMap) removeByGuestRegion(lo, hi uint32) {
	for pc, e := range m.byGuestPC {
		if pc >= lo && pc < hi {
			delete(m.byGuestPC, pc)
			delete(m.byHostPtr, e.hostPtr)
		}
	}
}

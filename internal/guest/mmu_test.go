package guest

import "testing"

func newTestCPU(t *testing.T, ramSize int) *CPU {
	t.Helper()
	bus := NewBus()
	ram := NewRAMDevice(uint32(RAMBase), make([]byte, ramSize))
	bus.AddDevice(ram)
	return NewCPU(bus, NewASIDAllocator())
}

func TestTranslateBareMode(t *testing.T) {
	cpu := newTestCPU(t, 4096)
	paddr, err := cpu.MMU.Translate(PrivSupervisor, 0x1234, AccessRead)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if paddr != 0x1234 {
		t.Fatalf("Translate(bare) = %#x, want identity 0x1234", paddr)
	}
}

func TestTranslateMachineModeAlwaysIdentity(t *testing.T) {
	cpu := newTestCPU(t, 4096)
	cpu.CSR.Satp = (SatpModeSv32 << 31) | 0xabc
	cpu.Priv = PrivMachine
	paddr, err := cpu.MMU.Translate(PrivMachine, 0x9000, AccessRead)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if paddr != 0x9000 {
		t.Fatalf("Translate(machine) = %#x, want identity", paddr)
	}
}

func TestTranslateUnmappedFaults(t *testing.T) {
	cpu := newTestCPU(t, 64*1024)
	// Root page table at RAM base, all zero -> every PTE is invalid.
	cpu.CSR.Satp = (SatpModeSv32 << 31) | (uint32(RAMBase) >> PageShift)

	_, err := cpu.MMU.Translate(PrivSupervisor, 0x40000000, AccessRead)
	var exc *Exception
	if !errorsAs(err, &exc) {
		t.Fatalf("expected *Exception, got %v", err)
	}
	if exc.Cause != CauseLoadPageFault {
		t.Fatalf("Cause=%#x, want LoadPageFault", exc.Cause)
	}
}

func TestTranslateMappedLeaf(t *testing.T) {
	cpu := newTestCPU(t, 256*1024)
	root := uint32(RAMBase)
	leafTable := root + PageSize
	dataPage := root + 2*PageSize

	cpu.CSR.Satp = (SatpModeSv32 << 31) | (root >> PageShift)

	vaddr := uint32(0x40000000 + 17) // vpn1=256, vpn0=0, offset=17 style address
	vpn1 := (vaddr >> 22) & 0x3ff
	vpn0 := (vaddr >> 12) & 0x3ff

	// Level-1 (non-leaf) PTE pointing at leafTable.
	nonLeaf := ((leafTable >> PageShift) << 10) | PteV
	if err := cpu.Bus.Store(root+vpn1*4, nonLeaf, 32); err != nil {
		t.Fatalf("store root pte: %v", err)
	}

	// Level-0 (leaf) PTE pointing at dataPage, RWX + U.
	leaf := ((dataPage >> PageShift) << 10) | PteV | PteR | PteW | PteX | PteU
	if err := cpu.Bus.Store(leafTable+vpn0*4, leaf, 32); err != nil {
		t.Fatalf("store leaf pte: %v", err)
	}

	paddr, err := cpu.MMU.Translate(PrivUser, vaddr, AccessRead)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := dataPage + (vaddr & (PageSize - 1))
	if paddr != want {
		t.Fatalf("Translate = %#x, want %#x", paddr, want)
	}

	// A bit must now be set.
	got, _ := cpu.Bus.Load(leafTable+vpn0*4, 32)
	if got&PteA == 0 {
		t.Fatal("expected A bit set after access")
	}
}

// errorsAs is a tiny local errors.As to avoid importing errors just for this.
func errorsAs(err error, target **Exception) bool {
	exc, ok := err.(*Exception)
	if !ok {
		return false
	}
	*target = exc
	return true
}

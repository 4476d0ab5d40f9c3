package guest

import "testing"

func TestSstatusMaskedView(t *testing.T) {
	f := NewCSRFile()

	if err := f.Write(CSRSstatus, PrivSupervisor, 0xffffffff); err != nil {
		t.Fatalf("Write(sstatus): %v", err)
	}
	if got, want := f.Mstatus, uint32(sstatusMask); got != want {
		t.Fatalf("Mstatus after sstatus write = %#x, want only mask bits %#x", got, want)
	}

	got, err := f.Read(CSRSstatus, PrivSupervisor)
	if err != nil {
		t.Fatalf("Read(sstatus): %v", err)
	}
	if want := f.Mstatus & sstatusMask; got != want {
		t.Fatalf("Read(sstatus) = %#x, want mstatus&mask = %#x", got, want)
	}
}

func TestSieSipMaskedByMideleg(t *testing.T) {
	f := NewCSRFile()
	if err := f.Write(CSRMideleg, PrivMachine, MipSSIP|MipSTIP); err != nil {
		t.Fatalf("Write(mideleg): %v", err)
	}
	if err := f.Write(CSRSie, PrivSupervisor, 0xffffffff); err != nil {
		t.Fatalf("Write(sie): %v", err)
	}
	if f.Mie != MipSSIP|MipSTIP {
		t.Fatalf("Mie = %#x, want only delegated bits %#x", f.Mie, MipSSIP|MipSTIP)
	}
}

func TestCSRPrivilegeCheck(t *testing.T) {
	f := NewCSRFile()
	if _, err := f.Read(CSRMstatus, PrivUser); err == nil {
		t.Fatal("expected illegal-instruction exception reading an M-mode CSR from U-mode")
	}
	if _, err := f.Read(CSRMstatus, PrivMachine); err != nil {
		t.Fatalf("Read(mstatus) from M-mode: %v", err)
	}
}

func TestReadWriteBits(t *testing.T) {
	v := WriteBits(0, 4, 7, 0xf)
	if got, want := ReadBits(v, 4, 7), uint32(0xf); got != want {
		t.Fatalf("ReadBits=%#x, want %#x", got, want)
	}
	v = WriteBit(v, 0, true)
	if ReadBit(v, 0) != 1 {
		t.Fatal("WriteBit/ReadBit round trip failed")
	}
}

func TestMPPMode(t *testing.T) {
	f := NewCSRFile()
	f.SetMPPMode(PrivSupervisor)
	if got := f.MPPMode(); got != PrivSupervisor {
		t.Fatalf("MPPMode()=%d, want %d", got, PrivSupervisor)
	}
}

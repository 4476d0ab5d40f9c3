package guest

import "testing"

func TestTrapDelegatedToSupervisor(t *testing.T) {
	cpu := newTestCPU(t, 4096)
	cpu.Priv = PrivUser
	cpu.CSR.Mstatus |= MstatusSIE
	cpu.CSR.Medeleg = 1 << CauseLoadPageFault.Code()
	cpu.CSR.Stvec = 0x80001000

	pc := uint32(0x80000122)
	oldSIE := cpu.CSR.Mstatus & MstatusSIE

	cpu.Trap(CauseLoadPageFault, pc|1, 0xdead)

	if cpu.CSR.Sepc != pc {
		t.Fatalf("sepc=%#x, want %#x (pc & ~1)", cpu.CSR.Sepc, pc)
	}
	if cpu.CSR.Scause != uint32(CauseLoadPageFault) {
		t.Fatalf("scause=%#x, want %#x", cpu.CSR.Scause, uint32(CauseLoadPageFault))
	}
	if cpu.CSR.Stval != 0xdead {
		t.Fatalf("stval=%#x, want 0xdead", cpu.CSR.Stval)
	}
	spie := cpu.CSR.Mstatus & MstatusSPIE
	if (oldSIE != 0) != (spie != 0) {
		t.Fatalf("mstatus.SPIE=%v, want it to mirror old SIE=%v", spie != 0, oldSIE != 0)
	}
	if cpu.CSR.Mstatus&MstatusSIE != 0 {
		t.Fatal("mstatus.SIE must be cleared after trap delivery")
	}
	if cpu.Priv != PrivSupervisor {
		t.Fatalf("Priv=%d, want Supervisor", cpu.Priv)
	}
	if cpu.PC != cpu.CSR.Stvec {
		t.Fatalf("PC=%#x, want stvec %#x (direct mode)", cpu.PC, cpu.CSR.Stvec)
	}
}

func TestTrapNotDelegatedGoesToMachine(t *testing.T) {
	cpu := newTestCPU(t, 4096)
	cpu.Priv = PrivUser
	cpu.CSR.Mtvec = 0x80002000
	// Medeleg left at zero: nothing delegated.

	cpu.Trap(CauseIllegalInsn, 0x80000200, 0)

	if cpu.Priv != PrivMachine {
		t.Fatalf("Priv=%d, want Machine", cpu.Priv)
	}
	if cpu.CSR.Mcause != uint32(CauseIllegalInsn) {
		t.Fatalf("mcause=%#x, want %#x", cpu.CSR.Mcause, uint32(CauseIllegalInsn))
	}
	if mpp := uint8(ReadBits(cpu.CSR.Mstatus, 11, 12)); mpp != PrivUser {
		t.Fatalf("mstatus.MPP=%d, want saved old priv %d", mpp, PrivUser)
	}
}

func TestPendingInterruptPriorityOrder(t *testing.T) {
	cpu := newTestCPU(t, 4096)
	cpu.Priv = PrivMachine
	cpu.CSR.Mstatus |= MstatusMIE
	cpu.CSR.Mie = MipMSIP | MipMTIP
	cpu.CSR.Mip = MipMSIP | MipMTIP

	cause, ok := cpu.PendingInterrupt()
	if !ok {
		t.Fatal("expected a pending interrupt")
	}
	if cause != CauseMSoftwareInt {
		t.Fatalf("cause=%#x, want MSoftwareInt (higher priority than MTimer)", uint32(cause))
	}
	if cpu.CSR.Mip&MipMSIP != 0 {
		t.Fatal("selected interrupt's mip bit should be cleared")
	}
	if cpu.CSR.Mip&MipMTIP == 0 {
		t.Fatal("MTIP should remain pending")
	}
}

func TestMretRestoresPrivAndPC(t *testing.T) {
	cpu := newTestCPU(t, 4096)
	cpu.CSR.Mepc = 0x80000040
	cpu.CSR.SetMPPMode(PrivSupervisor)
	cpu.CSR.Mstatus |= MstatusMPIE

	cpu.Mret()

	if cpu.PC != 0x80000040 {
		t.Fatalf("PC=%#x, want mepc", cpu.PC)
	}
	if cpu.Priv != PrivSupervisor {
		t.Fatalf("Priv=%d, want Supervisor (restored from MPP)", cpu.Priv)
	}
	if cpu.CSR.Mstatus&MstatusMIE == 0 {
		t.Fatal("MIE should be restored from MPIE")
	}
}

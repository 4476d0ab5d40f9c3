package guest

// PendingInterrupt selects the highest-priority enabled, pending interrupt,
// per spec §4.J. Priority order: MEIP > MSIP > MTIP > SEIP > SSIP > STIP.
// Returns (cause, true) if one is selected, clearing its mip bit; otherwise
// (0, false).
func (c *CPU) PendingInterrupt() (Cause, bool) {
	pending := c.CSR.Mie & c.CSR.Mip
	if pending == 0 {
		return 0, false
	}

	if c.Priv == PrivMachine {
		if c.CSR.Mstatus&MstatusMIE == 0 {
			return 0, false
		}
	} else if c.Priv == PrivSupervisor {
		if c.CSR.Mstatus&MstatusSIE == 0 {
			// M-mode interrupts are still globally enabled from S-mode.
			pending &^= c.CSR.Mideleg
			if pending == 0 {
				return 0, false
			}
		}
	}
	// U-mode: interrupts are always enabled.

	order := []struct {
		bit   uint32
		cause Cause
	}{
		{MipMEIP, CauseMExternalInt},
		{MipMSIP, CauseMSoftwareInt},
		{MipMTIP, CauseMTimerInt},
		{MipSEIP, CauseSExternalInt},
		{MipSSIP, CauseSSoftwareInt},
		{MipSTIP, CauseSTimerInt},
	}
	for _, o := range order {
		if pending&o.bit != 0 {
			c.CSR.Mip &^= o.bit
			return o.cause, true
		}
	}
	return 0, false
}

// Trap delivers an exception or interrupt, per spec §4.J: delegates to
// Supervisor mode when mideleg/medeleg[cause] is set and the current
// privilege is S or U, otherwise delivers to Machine mode. pc is the
// faulting/trapping instruction's address; tval is the cause-specific
// associated data word.
func (c *CPU) Trap(cause Cause, pc uint32, tval uint32) {
	isInterrupt := cause.IsInterrupt()
	code := cause.Code()

	delegate := false
	if c.Priv <= PrivSupervisor {
		if isInterrupt {
			delegate = c.CSR.Mideleg&(1<<code) != 0
		} else {
			delegate = c.CSR.Medeleg&(1<<code) != 0
		}
	}

	savedPC := pc &^ 1

	if delegate {
		c.CSR.Sepc = savedPC
		c.CSR.Scause = uint32(cause)
		c.CSR.Stval = tval

		if c.CSR.Mstatus&MstatusSIE != 0 {
			c.CSR.Mstatus |= MstatusSPIE
		} else {
			c.CSR.Mstatus &^= MstatusSPIE
		}
		c.CSR.Mstatus &^= MstatusSIE

		if c.Priv == PrivSupervisor {
			c.CSR.Mstatus |= MstatusSPP
		} else {
			c.CSR.Mstatus &^= MstatusSPP
		}
		c.Priv = PrivSupervisor

		if c.CSR.Stvec&1 == 1 && isInterrupt {
			c.PC = (c.CSR.Stvec &^ 1) + 4*code
		} else {
			c.PC = c.CSR.Stvec &^ 3
		}
		return
	}

	c.CSR.Mepc = savedPC
	c.CSR.Mcause = uint32(cause)
	c.CSR.Mtval = tval

	if c.CSR.Mstatus&MstatusMIE != 0 {
		c.CSR.Mstatus |= MstatusMPIE
	} else {
		c.CSR.Mstatus &^= MstatusMPIE
	}
	c.CSR.Mstatus &^= MstatusMIE

	c.CSR.Mstatus &^= MstatusMPP
	c.CSR.Mstatus |= uint32(c.Priv) << MstatusMPPShift
	c.Priv = PrivMachine

	if c.CSR.Mtvec&1 == 1 && isInterrupt {
		c.PC = (c.CSR.Mtvec &^ 1) + 4*code
	} else {
		c.PC = c.CSR.Mtvec &^ 3
	}
}

// Mret returns from a machine-mode trap, per the privileged spec: restores
// MIE from MPIE, restores privilege from MPP, and jumps to mepc.
func (c *CPU) Mret() {
	mpp := uint8(ReadBits(c.CSR.Mstatus, 11, 12))
	if c.CSR.Mstatus&MstatusMPIE != 0 {
		c.CSR.Mstatus |= MstatusMIE
	} else {
		c.CSR.Mstatus &^= MstatusMIE
	}
	c.CSR.Mstatus |= MstatusMPIE
	c.CSR.Mstatus = WriteBits(c.CSR.Mstatus, 11, 12, uint32(PrivUser))
	if mpp != PrivMachine {
		c.CSR.Mstatus &^= MstatusMPRV
	}
	c.Priv = mpp
	c.PC = c.CSR.Mepc
}

// Sret returns from a supervisor-mode trap.
func (c *CPU) Sret() {
	spp := uint8(ReadBit(c.CSR.Mstatus, 8))
	if c.CSR.Mstatus&MstatusSPIE != 0 {
		c.CSR.Mstatus |= MstatusSIE
	} else {
		c.CSR.Mstatus &^= MstatusSIE
	}
	c.CSR.Mstatus |= MstatusSPIE
	c.CSR.Mstatus = WriteBit(c.CSR.Mstatus, 8, false)
	if spp != PrivMachine {
		c.CSR.Mstatus &^= MstatusMPRV
	}
	c.Priv = spp
	c.PC = c.CSR.Sepc
}

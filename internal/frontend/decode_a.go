package frontend

import (
	"fmt"

	"github.com/rv32dbt/core/internal/backend"
)

// amoFunct5 maps the instruction's funct5 field to a helper op, per the A
// extension's word-width (.W) AMOs; this core has no 64-bit guest mode, so
// the .D forms never arise.
var amoFunct5 = map[uint32]backend.HelperOp{
	0x02: backend.HelperLR,
	0x03: backend.HelperSC,
	0x01: backend.HelperAMOSwap,
	0x00: backend.HelperAMOAdd,
	0x04: backend.HelperAMOXor,
	0x0c: backend.HelperAMOAnd,
	0x08: backend.HelperAMOOr,
	0x10: backend.HelperAMOMin,
	0x14: backend.HelperAMOMax,
	0x18: backend.HelperAMOMinu,
	0x1c: backend.HelperAMOMaxu,
}

// emitAMO handles the A extension (LR.W/SC.W/AMO*.W), per spec §4.D. aq/rl
// ordering bits are accepted but not distinguished: this core runs one hart
// at a time inside a single CallJIT invocation, so there is no weaker
// ordering to exploit.
func (d *Driver) emitAMO(buf *backend.InsnBuf, insn uint32) error {
	op, ok := amoFunct5[funct5(insn)]
	if !ok {
		return fmt.Errorf("frontend: bad amo funct5 %#x", funct5(insn))
	}
	if err := d.loadOperand(buf, backend.Scratch0, rs1(insn)); err != nil {
		return err
	}
	if op == backend.HelperLR {
		if err := d.E.CallAMOHelper(buf, op, backend.Scratch0, backend.Scratch0); err != nil {
			return err
		}
		return d.storeResult(buf, rd(insn), backend.Scratch0)
	}
	if err := d.loadOperand(buf, backend.Scratch1, rs2(insn)); err != nil {
		return err
	}
	if err := d.E.CallAMOHelper(buf, op, backend.Scratch0, backend.Scratch1); err != nil {
		return err
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

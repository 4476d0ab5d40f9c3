package frontend

import (
	"github.com/rv32dbt/core/internal/backend"
)

var csrOp = map[uint32]backend.HelperOp{
	1: backend.HelperCSRRW,
	2: backend.HelperCSRRS,
	3: backend.HelperCSRRC,
	5: backend.HelperCSRRW,
	6: backend.HelperCSRRS,
	7: backend.HelperCSRRC,
}

// emitCSR handles Zicsr (SYSTEM opcode, funct3 in {1,2,3,5,6,7}), per spec
// §4.D/§4.I. funct3 bit 2 (the "immediate" forms CSRRWI/CSRRSI/CSRRCI)
// selects the 5-bit rs1 field as a literal rather than a register read.
func (d *Driver) emitCSR(buf *backend.InsnBuf, insn uint32) error {
	op := csrOp[funct3(insn)]
	if err := d.E.LoadImm(buf, backend.Scratch0, int32(csrAddr(insn))); err != nil {
		return err
	}
	if funct3(insn)&0x4 != 0 {
		if err := d.E.LoadImm(buf, backend.Scratch1, int32(rs1(insn))); err != nil {
			return err
		}
	} else if err := d.loadOperand(buf, backend.Scratch1, rs1(insn)); err != nil {
		return err
	}
	if err := d.E.CallCSRHelper(buf, op, backend.Scratch0, backend.Scratch1); err != nil {
		return err
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

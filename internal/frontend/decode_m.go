package frontend

import (
	"fmt"

	"github.com/rv32dbt/core/internal/backend"
)

var mulDivOp = map[uint32]backend.HelperOp{
	0: backend.HelperMul,
	1: backend.HelperMulh,
	2: backend.HelperMulhsu,
	3: backend.HelperMulhu,
	4: backend.HelperDiv,
	5: backend.HelperDivu,
	6: backend.HelperRem,
	7: backend.HelperRemu,
}

// emitMulDiv handles the M extension (opcode OP, funct7=0x01): every op is
// dispatched to a Go helper, since correctly handling division-by-zero and
// the signed-overflow edge case inline, twice (once per backend), is more
// error-prone than doing it once in Go.
func (d *Driver) emitMulDiv(buf *backend.InsnBuf, insn uint32) error {
	op, ok := mulDivOp[funct3(insn)]
	if !ok {
		return fmt.Errorf("frontend: bad mul/div funct3 %d", funct3(insn))
	}
	if err := d.loadOperand(buf, backend.Scratch0, rs1(insn)); err != nil {
		return err
	}
	if err := d.loadOperand(buf, backend.Scratch1, rs2(insn)); err != nil {
		return err
	}
	if err := d.E.CallArithHelper(buf, op, backend.Scratch0, backend.Scratch1); err != nil {
		return err
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

package frontend

import (
	"fmt"

	"github.com/rv32dbt/core/internal/backend"
)

func (d *Driver) emitLUI(buf *backend.InsnBuf, insn uint32) error {
	if rd(insn) == 0 {
		return nil
	}
	if err := d.E.LoadImm(buf, backend.Scratch0, immU(insn)); err != nil {
		return err
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

func (d *Driver) emitAUIPC(buf *backend.InsnBuf, insn uint32, pc uint32) error {
	if rd(insn) == 0 {
		return nil
	}
	if err := d.E.LoadImm(buf, backend.Scratch0, int32(pc)+immU(insn)); err != nil {
		return err
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

func (d *Driver) emitJAL(buf *backend.InsnBuf, insn uint32, pc uint32) (*Result, error) {
	if rd(insn) != 0 {
		if err := d.E.LoadImm(buf, backend.Scratch0, int32(pc)+4); err != nil {
			return nil, err
		}
		if err := d.storeResult(buf, rd(insn), backend.Scratch0); err != nil {
			return nil, err
		}
	}
	patch, err := d.E.Jump(buf)
	if err != nil {
		return nil, err
	}
	target := uint32(int32(pc) + immJ(insn))
	return &Result{Patch: patch, TargetPC: target, Unconditional: true, EndsBlock: true}, nil
}

func (d *Driver) emitJALR(buf *backend.InsnBuf, insn uint32, pc uint32) (*Result, error) {
	// target = (rs1 + imm) & ^1, computed at run time: JALR's target is not
	// statically known, so it can never land in this block's Insn Map and
	// always needs a helper round trip through the exec core's dispatch
	// rather than a backend Jump/CondBranch patch site.
	if err := d.loadOperand(buf, backend.Scratch1, rs1(insn)); err != nil {
		return nil, err
	}
	if err := d.E.ALUImm(buf, backend.OpAdd, backend.Scratch1, backend.Scratch1, immI(insn)); err != nil {
		return nil, err
	}
	if err := d.E.ALUImm(buf, backend.OpAnd, backend.Scratch1, backend.Scratch1, ^1); err != nil {
		return nil, err
	}
	if rd(insn) != 0 {
		if err := d.E.LoadImm(buf, backend.Scratch0, int32(pc)+4); err != nil {
			return nil, err
		}
		if err := d.storeResult(buf, rd(insn), backend.Scratch0); err != nil {
			return nil, err
		}
	}
	// The target lives in a register, not a compile-time constant, so it
	// can never be resolved to a Jump patch site; set CPU.PC directly via
	// the generic helper call and exit to the dispatch loop.
	if err := d.E.CallHelper(buf, backend.HelperSetPC, backend.Scratch1, backend.Scratch1); err != nil {
		return nil, err
	}
	if err := d.E.Return(buf); err != nil {
		return nil, err
	}
	return &Result{Unconditional: true, EndsBlock: true}, nil
}

var branchCond = map[uint32]backend.Cond{
	0: backend.CondEQ,
	1: backend.CondNE,
	4: backend.CondLT,
	5: backend.CondGE,
	6: backend.CondLTU,
	7: backend.CondGEU,
}

func (d *Driver) emitBranch(buf *backend.InsnBuf, insn uint32, pc uint32) (*Result, error) {
	cond, ok := branchCond[funct3(insn)]
	if !ok {
		return nil, fmt.Errorf("frontend: bad branch funct3 %d", funct3(insn))
	}
	if err := d.loadOperand(buf, backend.Scratch0, rs1(insn)); err != nil {
		return nil, err
	}
	if err := d.loadOperand(buf, backend.Scratch1, rs2(insn)); err != nil {
		return nil, err
	}
	patch, err := d.E.CondBranch(buf, cond, backend.Scratch0, backend.Scratch1)
	if err != nil {
		return nil, err
	}
	target := uint32(int32(pc) + immB(insn))
	return &Result{Patch: patch, TargetPC: target, EndsBlock: true}, nil
}

var loadOpHelper = map[uint32]backend.HelperOp{
	0: backend.HelperLoad8,  // LB
	1: backend.HelperLoad16, // LH
	2: backend.HelperLoad32, // LW
	4: backend.HelperLoad8U, // LBU
	5: backend.HelperLoad16U, // LHU
}

var loadWidth = map[uint32]backend.Width{
	0: backend.Width8, 1: backend.Width16, 2: backend.Width32, 4: backend.Width8, 5: backend.Width16,
}

func (d *Driver) emitLoad(buf *backend.InsnBuf, insn uint32) error {
	op, ok := loadOpHelper[funct3(insn)]
	if !ok {
		return fmt.Errorf("frontend: bad load funct3 %d", funct3(insn))
	}
	signed := funct3(insn) < 4
	if err := d.loadOperand(buf, backend.Scratch1, rs1(insn)); err != nil {
		return err
	}
	if err := d.E.ALUImm(buf, backend.OpAdd, backend.Scratch1, backend.Scratch1, immI(insn)); err != nil {
		return err
	}
	if err := d.E.FastmemLoad(buf, backend.Scratch0, backend.Scratch1, loadWidth[funct3(insn)], signed, op); err != nil {
		return err
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

var storeOpHelper = map[uint32]backend.HelperOp{
	0: backend.HelperStore8,
	1: backend.HelperStore16,
	2: backend.HelperStore32,
}

var storeWidth = map[uint32]backend.Width{0: backend.Width8, 1: backend.Width16, 2: backend.Width32}

func (d *Driver) emitStore(buf *backend.InsnBuf, insn uint32) error {
	op, ok := storeOpHelper[funct3(insn)]
	if !ok {
		return fmt.Errorf("frontend: bad store funct3 %d", funct3(insn))
	}
	if err := d.loadOperand(buf, backend.Scratch1, rs1(insn)); err != nil {
		return err
	}
	if err := d.E.ALUImm(buf, backend.OpAdd, backend.Scratch1, backend.Scratch1, immS(insn)); err != nil {
		return err
	}
	if err := d.loadOperand(buf, backend.Scratch2, rs2(insn)); err != nil {
		return err
	}
	return d.E.FastmemStore(buf, backend.Scratch1, backend.Scratch2, storeWidth[funct3(insn)], op)
}

var immALUOp = map[uint32]backend.ALUOp{
	0: backend.OpAdd, 2: backend.OpSLT, 3: backend.OpSLTU, 4: backend.OpXor,
	6: backend.OpOr, 7: backend.OpAnd,
}

func (d *Driver) emitOpImm(buf *backend.InsnBuf, insn uint32) error {
	if err := d.loadOperand(buf, backend.Scratch0, rs1(insn)); err != nil {
		return err
	}
	f3 := funct3(insn)
	switch f3 {
	case 1: // SLLI
		if err := d.E.ALUImm(buf, backend.OpSLL, backend.Scratch0, backend.Scratch0, int32(shamt(insn))); err != nil {
			return err
		}
	case 5: // SRLI/SRAI, distinguished by bit 30 of funct7
		op := backend.OpSRL
		if funct7(insn)&0x20 != 0 {
			op = backend.OpSRA
		}
		if err := d.E.ALUImm(buf, op, backend.Scratch0, backend.Scratch0, int32(shamt(insn))); err != nil {
			return err
		}
	default:
		op, ok := immALUOp[f3]
		if !ok {
			return fmt.Errorf("frontend: bad op-imm funct3 %d", f3)
		}
		if err := d.E.ALUImm(buf, op, backend.Scratch0, backend.Scratch0, immI(insn)); err != nil {
			return err
		}
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

var regALUOp = map[uint32]backend.ALUOp{
	0: backend.OpAdd, // or OpSub, disambiguated by funct7 below
	1: backend.OpSLL,
	2: backend.OpSLT,
	3: backend.OpSLTU,
	4: backend.OpXor,
	5: backend.OpSRL, // or OpSRA
	6: backend.OpOr,
	7: backend.OpAnd,
}

// emitOpReg handles RV32I's register-register ALU ops (funct7 0x00/0x20);
// the M-extension's funct7 0x01 forms are routed to emitMulDiv by Translate
// before reaching here.
func (d *Driver) emitOpReg(buf *backend.InsnBuf, insn uint32) error {
	f3 := funct3(insn)
	op, ok := regALUOp[f3]
	if !ok {
		return fmt.Errorf("frontend: bad op funct3 %d", f3)
	}
	if f3 == 0 && funct7(insn)&0x20 != 0 {
		op = backend.OpSub
	}
	if f3 == 5 && funct7(insn)&0x20 != 0 {
		op = backend.OpSRA
	}

	// Shift amounts must land in Scratch1 (the amd64 backend's fixed
	// shift-by-CL operand register). Every op loads rs1 into Scratch0 and
	// rs2 into Scratch1, so shifts meet that requirement without the
	// frontend needing to know backend register assignments.
	if err := d.loadOperand(buf, backend.Scratch0, rs1(insn)); err != nil {
		return err
	}
	if err := d.loadOperand(buf, backend.Scratch1, rs2(insn)); err != nil {
		return err
	}
	if err := d.E.ALUReg(buf, op, backend.Scratch0, backend.Scratch0, backend.Scratch1); err != nil {
		return err
	}
	return d.storeResult(buf, rd(insn), backend.Scratch0)
}

package ir

import "testing"

func TestVerifyAcceptsWellFormedFunction(t *testing.T) {
	fn := NewFunction("add", TypeI64)
	a := fn.NewValue(TypeI64)
	b := fn.NewValue(TypeI64)
	fn.Params = []Value{a, b}

	entry := fn.NewBlock("entry")
	sum := fn.NewValue(TypeI64)
	entry.Emit(&Instruction{Op: OpAdd, Type: TypeI64, Dst: sum, Operands: []Value{a, b}})
	entry.Terminator = &TermReturn{Value: &sum}

	if errs := Verify(fn); len(errs) != 0 {
		t.Fatalf("Verify() = %v, want none", errs)
	}
}

func TestVerifyRejectsMissingTerminator(t *testing.T) {
	fn := NewFunction("noret", TypeVoid)
	fn.NewBlock("entry")

	errs := Verify(fn)
	if len(errs) != 1 || errs[0].Message != "block has no terminator" {
		t.Fatalf("Verify() = %v, want a single missing-terminator error", errs)
	}
}

func TestVerifyRejectsWrongArithmeticOperandCount(t *testing.T) {
	fn := NewFunction("bad", TypeI64)
	a := fn.NewValue(TypeI64)
	entry := fn.NewBlock("entry")
	dst := fn.NewValue(TypeI64)
	entry.Emit(&Instruction{Op: OpAdd, Type: TypeI64, Dst: dst, Operands: []Value{a}})
	entry.Terminator = &TermReturn{Value: &dst}

	errs := Verify(fn)
	if len(errs) != 1 {
		t.Fatalf("Verify() = %v, want exactly one shape error", errs)
	}
}

func TestVerifyRejectsLoadConstantWithOperands(t *testing.T) {
	fn := NewFunction("badconst", TypeI64)
	entry := fn.NewBlock("entry")
	dst := fn.NewValue(TypeI64)
	bogus := fn.NewValue(TypeI64)
	entry.Emit(&Instruction{Op: OpLoadConstant, Type: TypeI64, Dst: dst, Imm: 5, Operands: []Value{bogus}})
	entry.Terminator = &TermReturn{Value: &dst}

	if errs := Verify(fn); len(errs) == 0 {
		t.Fatal("expected an error for load.const carrying register operands")
	}
}

func TestVerifyRejectsNegativeLoopCount(t *testing.T) {
	fn := NewFunction("badloop", TypeVoid)
	entry := fn.NewBlock("entry")
	dst := fn.NewValue(TypeVoid)
	entry.Emit(&Instruction{Op: OpOptimizedLoop, Type: TypeVoid, Dst: dst, Imm: -1})
	entry.Terminator = &TermReturn{}

	if errs := Verify(fn); len(errs) == 0 {
		t.Fatal("expected an error for a negative loop iteration count")
	}
}

func TestVerifyRejectsNonComparisonCondBranch(t *testing.T) {
	fn := NewFunction("badbr", TypeVoid)
	entry := fn.NewBlock("entry")
	trueBlk := fn.NewBlock("t")
	falseBlk := fn.NewBlock("f")
	trueBlk.Terminator = &TermReturn{}
	falseBlk.Terminator = &TermReturn{}

	a := fn.NewValue(TypeI64)
	b := fn.NewValue(TypeI64)
	entry.Terminator = &TermCondBranch{Op: OpAdd, Lhs: a, Rhs: b, TrueBlk: trueBlk, FalseBlk: falseBlk}

	errs := Verify(fn)
	found := false
	for _, e := range errs {
		if e.Message == "conditional branch uses non-comparison op add" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Verify() = %v, want a non-comparison conditional branch error", errs)
	}
}

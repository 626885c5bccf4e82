package ir

import "fmt"

// VerifyError describes a single IR verification failure, located by the
// function, block, and instruction index at which it was found.
type VerifyError struct {
	Func    string
	Block   string
	Index   int
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify error in %s/%s#%d: %s", e.Func, e.Block, e.Index, e.Message)
}

// Verify checks that every instruction's operand kinds match its opcode and
// that every block ends in a terminator. The IR is SSA-like but SSA is not
// required, so Verify never checks def-before-use ordering — only shape.
func Verify(f *Function) []VerifyError {
	var errs []VerifyError
	for _, b := range f.Blocks {
		for i, in := range b.Instructions {
			if msg, ok := checkShape(in); !ok {
				errs = append(errs, VerifyError{Func: f.Name, Block: b.Label, Index: i, Message: msg})
			}
		}
		if b.Terminator == nil {
			errs = append(errs, VerifyError{Func: f.Name, Block: b.Label, Index: len(b.Instructions), Message: "block has no terminator"})
			continue
		}
		if cb, ok := b.Terminator.(*TermCondBranch); ok {
			if !cb.Op.IsCompare() {
				errs = append(errs, VerifyError{Func: f.Name, Block: b.Label, Message: fmt.Sprintf("conditional branch uses non-comparison op %s", cb.Op)})
			}
		}
	}
	return errs
}

func checkShape(in *Instruction) (string, bool) {
	switch {
	case in.Op.IsArithmetic():
		if len(in.Operands) != 2 {
			return fmt.Sprintf("%s expects 2 operands, got %d", in.Op, len(in.Operands)), false
		}
	case in.Op.IsCompare():
		if len(in.Operands) != 2 {
			return fmt.Sprintf("%s expects 2 operands, got %d", in.Op, len(in.Operands)), false
		}
	case in.Op == OpDiv:
		if len(in.Operands) != 2 {
			return "div expects 2 operands", false
		}
	case in.Op == OpLoadConstant:
		if len(in.Operands) != 0 {
			return "load.const takes no register operands", false
		}
	case in.Op == OpLoad:
		if len(in.Operands) != 1 {
			return "load expects 1 base-pointer operand", false
		}
	case in.Op == OpStore:
		if len(in.Operands) != 2 {
			return "store expects base-pointer and value operands", false
		}
	case in.Op == OpCall:
		// variadic argument count; nothing further to check structurally.
	case in.Op == OpOptimizedLoop:
		if in.Imm < 0 {
			return "loop iteration count must be non-negative", false
		}
	}
	return "", true
}

package ir

import (
	"testing"

	fuzz "github.com/google/gofuzz"
)

// TestVerifyNeverPanicsOnMalformedOperandCounts fuzzes the operand count and
// immediate of an arithmetic instruction to confirm Verify never panics on
// it; the returned errors themselves are not checked.
func TestVerifyNeverPanicsOnMalformedOperandCounts(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 5)

	for i := 0; i < 200; i++ {
		var opIdx int
		var operandCount uint8
		f.Fuzz(&opIdx)
		f.Fuzz(&operandCount)

		op := Op(opIdx % int(OpAtomicCAS+1))
		if op < 0 {
			op = -op
		}

		fn := NewFunction("fuzz", TypeI64)
		b := fn.NewBlock("entry")
		dst := fn.NewValue(TypeI64)
		operands := make([]Value, int(operandCount)%4)
		for j := range operands {
			operands[j] = fn.NewValue(TypeI64)
		}
		b.Emit(&Instruction{Op: op, Type: TypeI64, Dst: dst, Operands: operands})
		b.Terminator = &TermReturn{Value: &dst}

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Verify panicked on op=%v operands=%d: %v", op, len(operands), r)
				}
			}()
			Verify(fn)
		}()
	}
}

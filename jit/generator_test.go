package jit

import (
	"testing"

	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/arch/riscv64"
	"github.com/aerocore/aerocore/codebuffer"
	"github.com/aerocore/aerocore/ir"
)

type noSymbols struct{}

func (noSymbols) Resolve(name string) (uintptr, bool) { return 0, false }

type mapSymbols map[string]uintptr

func (m mapSymbols) Resolve(name string) (uintptr, bool) {
	addr, ok := m[name]
	return addr, ok
}

func buildAddFunction() *ir.Function {
	fn := ir.NewFunction("add", ir.TypeI64)
	a := fn.NewValue(ir.TypeI64)
	b := fn.NewValue(ir.TypeI64)
	fn.Params = []ir.Value{a, b}

	entry := fn.NewBlock("entry")
	sum := fn.NewValue(ir.TypeI64)
	entry.Emit(&ir.Instruction{Op: ir.OpAdd, Type: ir.TypeI64, Dst: sum, Operands: []ir.Value{a, b}})
	entry.Terminator = &ir.TermReturn{Value: &sum}
	return fn
}

func buildDivFunction() *ir.Function {
	fn := ir.NewFunction("safe_div", ir.TypeI64)
	a := fn.NewValue(ir.TypeI64)
	b := fn.NewValue(ir.TypeI64)
	fn.Params = []ir.Value{a, b}

	entry := fn.NewBlock("entry")
	q := fn.NewValue(ir.TypeI64)
	entry.Emit(&ir.Instruction{Op: ir.OpDiv, Type: ir.TypeI64, Dst: q, Operands: []ir.Value{a, b}, CheckDivByZero: true})
	entry.Terminator = &ir.TermReturn{Value: &q}
	return fn
}

func newTestGenerator(t *testing.T, peephole bool) *Generator {
	t.Helper()
	a := riscv64.New(arch.VectorNone)
	return New(a, 0xdeadbeef, codebuffer.NewCache(), peephole)
}

func TestCompileAddFunctionProducesNonEmptyCode(t *testing.T) {
	g := newTestGenerator(t, false)
	nc, err := g.Compile(buildAddFunction(), noSymbols{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if nc.Buffer.Len() == 0 {
		t.Fatal("expected non-empty compiled code")
	}
	if !nc.Buffer.Executable() {
		t.Fatal("expected the compiled buffer to be made executable")
	}
	if nc.Kind != codebuffer.KindJITFunction {
		t.Fatalf("Kind = %v, want KindJITFunction", nc.Kind)
	}
}

func TestCompileDivFunctionWithDivByZeroCheck(t *testing.T) {
	g := newTestGenerator(t, false)
	nc, err := g.Compile(buildDivFunction(), noSymbols{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if nc.Buffer.Len() == 0 {
		t.Fatal("expected non-empty compiled code for checked division")
	}
}

func TestCompileInsertsIntoProvidedCache(t *testing.T) {
	cache := codebuffer.NewCache()
	a := riscv64.New(arch.VectorNone)
	g := New(a, 0xdeadbeef, cache, false)

	nc, err := g.Compile(buildAddFunction(), noSymbols{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cache.Get(0) != nc {
		t.Fatal("expected Compile to insert the NativeCode at index 0 of a fresh cache")
	}
}

func TestCompileRejectsUnverifiableFunction(t *testing.T) {
	g := newTestGenerator(t, false)
	fn := ir.NewFunction("broken", ir.TypeI64)
	a := fn.NewValue(ir.TypeI64)
	entry := fn.NewBlock("entry")
	dst := fn.NewValue(ir.TypeI64)
	// OpAdd requires two operands; give it one to force a Verify failure.
	entry.Emit(&ir.Instruction{Op: ir.OpAdd, Type: ir.TypeI64, Dst: dst, Operands: []ir.Value{a}})
	entry.Terminator = &ir.TermReturn{Value: &dst}

	if _, err := g.Compile(fn, noSymbols{}); err == nil {
		t.Fatal("expected Compile to reject a function that fails ir.Verify")
	}
}

func TestCompileCallResolvesSymbolRelocation(t *testing.T) {
	g := newTestGenerator(t, false)
	fn := ir.NewFunction("caller", ir.TypeI64)
	entry := fn.NewBlock("entry")
	dst := fn.NewValue(ir.TypeI64)
	entry.Emit(&ir.Instruction{Op: ir.OpCall, Type: ir.TypeI64, Dst: dst, FuncName: "callee"})
	entry.Terminator = &ir.TermReturn{Value: &dst}

	if _, err := g.Compile(fn, mapSymbols{"callee": 0x41000}); err != nil {
		t.Fatalf("Compile with resolvable call symbol: %v", err)
	}
}

func TestCompileCallUnresolvedSymbolFails(t *testing.T) {
	g := newTestGenerator(t, false)
	fn := ir.NewFunction("caller", ir.TypeI64)
	entry := fn.NewBlock("entry")
	dst := fn.NewValue(ir.TypeI64)
	entry.Emit(&ir.Instruction{Op: ir.OpCall, Type: ir.TypeI64, Dst: dst, FuncName: "missing"})
	entry.Terminator = &ir.TermReturn{Value: &dst}

	if _, err := g.Compile(fn, noSymbols{}); err == nil {
		t.Fatal("expected an error for an unresolved call symbol")
	}
}

func TestCompileComparisonMaterializesBoolValue(t *testing.T) {
	g := newTestGenerator(t, false)
	fn := ir.NewFunction("cmp", ir.TypeBool)
	a := fn.NewValue(ir.TypeI64)
	b := fn.NewValue(ir.TypeI64)
	fn.Params = []ir.Value{a, b}

	entry := fn.NewBlock("entry")
	dst := fn.NewValue(ir.TypeBool)
	entry.Emit(&ir.Instruction{Op: ir.OpCmpLt, Type: ir.TypeBool, Dst: dst, Operands: []ir.Value{a, b}})
	entry.Terminator = &ir.TermReturn{Value: &dst}

	nc, err := g.Compile(fn, noSymbols{})
	if err != nil {
		t.Fatalf("Compile comparison: %v", err)
	}
	if nc.Buffer.Len() == 0 {
		t.Fatal("expected non-empty code for a comparison-to-value function")
	}
}

func TestCompileWithPeepholeStillProducesCode(t *testing.T) {
	g := newTestGenerator(t, true)
	nc, err := g.Compile(buildAddFunction(), noSymbols{})
	if err != nil {
		t.Fatalf("Compile with peephole: %v", err)
	}
	if nc.Buffer.Len() == 0 {
		t.Fatal("expected non-empty code with peephole pass enabled")
	}
}

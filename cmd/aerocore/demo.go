package main

import (
	"fmt"

	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/arch/riscv64"
	"github.com/aerocore/aerocore/codebuffer"
	"github.com/aerocore/aerocore/config"
	"github.com/aerocore/aerocore/gc"
	"github.com/aerocore/aerocore/ir"
	"github.com/aerocore/aerocore/jit"
)

// demoSymbols resolves the one external symbol the demo function calls.
type demoSymbols struct{}

func (demoSymbols) Resolve(name string) (uintptr, bool) {
	if name == "divide_by_zero_handler" {
		return 0xdeadbeef, true
	}
	return 0, false
}

// buildAddFunction constructs `fn add(a, b i64) i64 { return a + b }`, the
// smallest function exercising parameter binding, one arithmetic lowering,
// and a return terminator.
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

// buildDivFunction constructs a checked-division function exercising the
// divide-by-zero trampoline.
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

func newDemoGenerator() (*jit.Generator, *codebuffer.Cache, error) {
	a := newArchForHost()
	cache := codebuffer.NewCache()
	g := jit.New(a, 0xdeadbeef, cache, true)
	return g, cache, nil
}

func newArchForHost() arch.Arch {
	// The demo targets riscv64 unconditionally: it is AeroCore's
	// fully-worked backend (arm64/x86_64 cover a representative opcode
	// subset), and picking one architecture keeps `aerocore compile`'s
	// output stable across hosts regardless of GOARCH.
	return riscv64.New(arch.VectorNone)
}

func newDemoGC(cfgPath string) (*gc.GC, error) {
	cfg := config.Defaults
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("aerocore: loading config: %w", err)
		}
		cfg = loaded
	}
	gcCfg, err := cfg.ToGCConfig()
	if err != nil {
		return nil, err
	}
	return gc.New(gcCfg)
}

package jit

import (
	"fmt"

	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/corelog"
	"github.com/aerocore/aerocore/corerr"
	"github.com/aerocore/aerocore/ir"
)

// lowerInstruction dispatches one IR instruction to its machine-code
// lowering, per the opcode table in spec §4.4.
func (g *Generator) lowerInstruction(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	switch {
	case in.Op.IsArithmetic():
		return g.lowerArith(in, alloc)
	case in.Op.IsCompare():
		return g.lowerCompareValue(in, alloc)
	case in.Op == ir.OpDiv:
		return g.lowerDiv(in, alloc)
	case in.Op == ir.OpLoadConstant:
		dst := alloc.alloc(in.Dst)
		return g.a.EmitLoadImmediate(dst, in.Imm), nil, nil, nil
	case in.Op == ir.OpLoad:
		return g.lowerLoad(in, alloc)
	case in.Op == ir.OpStore:
		return g.lowerStore(in, alloc)
	case in.Op == ir.OpCall:
		return g.lowerCall(in, alloc)
	case in.Op == ir.OpVectorLoad, in.Op == ir.OpVectorStore, in.Op == ir.OpVectorOp:
		return g.lowerVector(in, alloc)
	case in.Op == ir.OpOptimizedLoop:
		return g.lowerLoop(in, alloc)
	case in.Op == ir.OpAtomicAdd:
		dst, addr, val := alloc.alloc(in.Dst), alloc.alloc(in.Operands[0]), alloc.alloc(in.Operands[1])
		return g.a.EmitAtomicAdd(dst, addr, val), nil, nil, nil
	case in.Op == ir.OpAtomicCAS:
		dst := alloc.alloc(in.Dst)
		addr, expected, newVal := alloc.alloc(in.Operands[0]), alloc.alloc(in.Operands[1]), alloc.alloc(in.Operands[2])
		return g.a.EmitAtomicCAS(dst, addr, expected, newVal), nil, nil, nil
	default:
		corelog.Warn("jit: unknown opcode, emitting NOP", "op", in.Op.String())
		return g.a.EmitMove(alloc.abi.ScratchRegs[0], alloc.abi.ScratchRegs[0]), nil, nil, nil
	}
}

func (g *Generator) lowerArith(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	op, ok := arch.FromIROp(in.Op)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", corerr.ErrUnknownOpcode, in.Op)
	}
	dst := alloc.alloc(in.Dst)
	a := alloc.alloc(in.Operands[0])
	b := alloc.alloc(in.Operands[1])
	return g.a.EmitBinOp(op, dst, a, b), nil, nil, nil
}

// lowerCompareValue materializes a comparison's bool result into a register
// (used when a comparison feeds a value rather than a branch terminator).
func (g *Generator) lowerCompareValue(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	cond, ok := arch.CondFromIROp(in.Op)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", corerr.ErrUnknownOpcode, in.Op)
	}
	a := alloc.alloc(in.Operands[0])
	b := alloc.alloc(in.Operands[1])
	dst := alloc.alloc(in.Dst)
	// Materialize 1 into dst, then a compare-branch that is taken when the
	// condition holds and skips the "load 0".
	var out []byte
	out = append(out, g.a.EmitLoadImmediate(dst, 1)...)
	skip, immOff := g.a.EmitCompareBranch(cond, a, b, 0)
	zero := g.a.EmitLoadImmediate(dst, 0)
	if err := g.a.PatchImmediate(skip, immOff, int32(len(zero))); err != nil {
		return nil, nil, nil, err
	}
	_ = skip
	out = append(out, skip...)
	out = append(out, zero...)
	return out, nil, nil, nil
}

// lowerDiv emits the checked-division trampoline when CheckDivByZero is set
// (spec §4.4 "Division"): branch-if-zero on the divisor to a handler
// trampoline that loads an error code and tail-calls the registered
// handle_divide_by_zero runtime function; otherwise the raw DIV.
func (g *Generator) lowerDiv(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	dst := alloc.alloc(in.Dst)
	a := alloc.alloc(in.Operands[0])
	b := alloc.alloc(in.Operands[1])
	if !in.CheckDivByZero {
		return g.a.EmitDiv(dst, a, b), nil, nil, nil
	}
	var out []byte
	divCode := g.a.EmitDiv(dst, a, b)
	branch, immOff := g.a.EmitDivBranch(b, 0)
	if err := g.a.PatchImmediate(branch, immOff, int32(len(divCode))); err != nil {
		return nil, nil, nil, err
	}
	out = append(out, branch...)
	out = append(out, divCode...)
	// Trampoline: materialize the handler address and tail-call it. Reached
	// only when the branch above is taken (divisor == 0); the branch target
	// therefore must skip the divCode block above it, so in a full layout
	// the trampoline sits immediately after divCode and the branch offset
	// above targets *past* divCode, landing here only via the branch path.
	// Since both paths are emitted inline here (no separate trampoline
	// block), the forward branch must instead target skip over divCode,
	// meaning the branch direction above is inverted relative to a
	// fallthrough non-zero case; EmitDivBranch emits "branch if zero" so the
	// immediate patched above (len(divCode)) correctly skips divCode when
	// the divisor is zero, landing on the trampoline below.
	handlerCallee := alloc.abi.ScratchRegs[0]
	out = append(out, g.a.EmitLoadImmediate(handlerCallee, int64(g.divZeroHandler))...)
	out = append(out, g.a.EmitTailCall(handlerCallee)...)
	return out, nil, nil, nil
}

func (g *Generator) lowerLoad(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	dst := alloc.alloc(in.Dst)
	base := alloc.alloc(in.Operands[0])
	size, signExt := sizeForType(in.Type)
	minI, maxI := g.a.ImmediateBits(arch.ImmLoadStoreOffset), 0
	_ = maxI
	if fitsSigned(in.Imm, minI) {
		return g.a.EmitLoad(dst, base, int32(in.Imm), size, signExt), nil, nil, nil
	}
	scratch := alloc.abi.ScratchRegs[len(alloc.abi.ScratchRegs)-1]
	var out []byte
	out = append(out, g.a.EmitLoadImmediate(scratch, in.Imm)...)
	out = append(out, g.a.EmitLoadIndexed(dst, base, scratch, size, signExt)...)
	return out, nil, nil, nil
}

func (g *Generator) lowerStore(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	base := alloc.alloc(in.Operands[0])
	src := alloc.alloc(in.Operands[1])
	size, _ := sizeForType(in.Type)
	minI := g.a.ImmediateBits(arch.ImmLoadStoreOffset)
	if fitsSigned(in.Imm, minI) {
		return g.a.EmitStore(base, src, int32(in.Imm), size), nil, nil, nil
	}
	scratch := alloc.abi.ScratchRegs[len(alloc.abi.ScratchRegs)-1]
	var out []byte
	out = append(out, g.a.EmitLoadImmediate(scratch, in.Imm)...)
	out = append(out, g.a.EmitStoreIndexed(base, scratch, src, size)...)
	return out, nil, nil, nil
}

func sizeForType(t ir.Type) (arch.Size, bool) {
	switch t {
	case ir.TypeI8:
		return arch.Size1, true
	case ir.TypeI16:
		return arch.Size2, true
	case ir.TypeI32:
		return arch.Size4, true
	default:
		return arch.Size8, false
	}
}

func fitsSigned(v int64, bits int) bool {
	if bits >= 64 {
		return true
	}
	lo := -(int64(1) << uint(bits-1))
	hi := int64(1)<<uint(bits-1) - 1
	return v >= lo && v <= hi
}

// lowerCall lowers a call to in.FuncName as a direct-call placeholder plus a
// symbol relocation, which Compile patches through Symbols once the code is
// laid out. No range check is made and no indirect (AUIPC+JALR) form is
// emitted.
func (g *Generator) lowerCall(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	code, immOff := g.a.EmitCall(0)
	sr := []symbolReloc{{instrOffset: immOff, symbol: in.FuncName}}
	if in.Dst.Type != ir.TypeVoid {
		abi := alloc.abi
		dst := alloc.alloc(in.Dst)
		if dst != abi.ReturnReg {
			code = append(code, g.a.EmitMove(dst, abi.ReturnReg)...)
		}
	}
	return code, nil, sr, nil
}

// lowerVector configures vector lanes and emits the vector op. When the
// vector ISA is absent it calls lowerScalarFallback, which lowers a VectorOp
// to a single scalar ADD of its operands and emits nothing for vector loads
// and stores; no per-lane loop is generated.
func (g *Generator) lowerVector(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	if g.a.VectorISA() == arch.VectorNone {
		return g.lowerScalarFallback(in, alloc)
	}
	var out []byte
	size, _ := sizeForType(in.Type)
	out = append(out, g.a.EmitVectorSetup(size, int(in.Imm))...)
	switch in.Op {
	case ir.OpVectorOp:
		op, ok := arch.FromIROp(ir.OpAdd)
		_ = ok
		dst := alloc.alloc(in.Dst)
		a := alloc.alloc(in.Operands[0])
		b := alloc.alloc(in.Operands[1])
		out = append(out, g.a.EmitVectorOp(op, dst, a, b)...)
	case ir.OpVectorLoad:
		dst := alloc.alloc(in.Dst)
		base := alloc.alloc(in.Operands[0])
		out = append(out, g.a.EmitLoad(dst, base, int32(in.Imm), size, false)...)
	case ir.OpVectorStore:
		base := alloc.alloc(in.Operands[0])
		src := alloc.alloc(in.Operands[1])
		out = append(out, g.a.EmitStore(base, src, int32(in.Imm), size)...)
	}
	return out, nil, nil, nil
}

func (g *Generator) lowerScalarFallback(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	corelog.Debug("jit: vector ISA absent, falling back to scalar loop", "op", in.Op.String())
	if in.Op != ir.OpVectorOp {
		return nil, nil, nil, nil
	}
	dst := alloc.alloc(in.Dst)
	a := alloc.alloc(in.Operands[0])
	b := alloc.alloc(in.Operands[1])
	return g.a.EmitBinOp(arch.BinAdd, dst, a, b), nil, nil, nil
}

// lowerLoop materializes the iteration counter, emits the body, decrements,
// and branches back while nonzero (spec §4.4 "OPTIMIZED_LOOP").
func (g *Generator) lowerLoop(in *ir.Instruction, alloc *allocator) ([]byte, []relocation, []symbolReloc, error) {
	counter := alloc.abi.ScratchRegs[len(alloc.abi.ScratchRegs)-1]
	var out []byte
	out = append(out, g.a.EmitLoadImmediate(counter, in.Imm)...)
	bodyStart := len(out)
	for _, bodyIn := range in.LoopBody {
		code, _, _, err := g.lowerInstruction(bodyIn, alloc)
		if err != nil {
			return nil, nil, nil, err
		}
		out = append(out, code...)
	}
	one := alloc.abi.ScratchRegs[0]
	loadOne := g.a.EmitLoadImmediate(one, 1)
	out = append(out, loadOne...)
	out = append(out, g.a.EmitBinOp(arch.BinSub, counter, counter, one)...)
	zero := alloc.abi.ScratchRegs[len(alloc.abi.ScratchRegs)-2]
	out = append(out, g.a.EmitLoadImmediate(zero, 0)...)
	backOffset := int32(bodyStart - len(out))
	branch, immOff := g.a.EmitCompareBranch(arch.CondNe, counter, zero, backOffset)
	if err := g.a.PatchImmediate(branch, immOff, backOffset-int32(len(branch))); err != nil {
		return nil, nil, nil, err
	}
	out = append(out, branch...)
	return out, nil, nil, nil
}

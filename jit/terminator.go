package jit

import (
	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/ir"
)

// lowerTerminator lowers a block's terminator: RETURN tail-chains to the
// epilogue (emitted separately by Compile), BRANCH emits one unconditional
// branch, and a conditional branch emits a compare-branch to the true block
// followed by an unconditional branch to the false block, all patched
// through relocations. No range check is made and no invert+long-jump form
// is emitted.
func (g *Generator) lowerTerminator(term ir.Terminator, alloc *allocator, blockOffset map[string]int, atOffset int) ([]byte, []relocation, error) {
	switch t := term.(type) {
	case *ir.TermReturn:
		if t.Value != nil {
			abi := alloc.abi
			src := alloc.alloc(*t.Value)
			if src != abi.ReturnReg {
				return g.a.EmitMove(abi.ReturnReg, src), nil, nil
			}
		}
		return nil, nil, nil

	case *ir.TermBranch:
		code, immOff := g.a.EmitBranch(0)
		return code, []relocation{{instrOffset: atOffset + immOff, targetLabel: t.Target.Label}}, nil

	case *ir.TermCondBranch:
		cond, _ := arch.CondFromIROp(t.Op)
		a := alloc.alloc(t.Lhs)
		b := alloc.alloc(t.Rhs)
		minBits, _ := g.a.DirectBranchRange()
		_ = minBits
		code, immOff := g.a.EmitCompareBranch(cond, a, b, 0)
		relocs := []relocation{{instrOffset: atOffset + immOff, targetLabel: t.TrueBlk.Label}}
		fall, fallImmOff := g.a.EmitBranch(0)
		relocs = append(relocs, relocation{instrOffset: atOffset + len(code) + fallImmOff, targetLabel: t.FalseBlk.Label})
		code = append(code, fall...)
		return code, relocs, nil

	default:
		return nil, nil, nil
	}
}

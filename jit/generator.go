// Package jit lowers an ir.Function to machine code for one architecture,
// following the seven-stage pipeline of spec §4.4: block detection, prologue,
// per-instruction lowering, epilogue, relocation fixup, optional peephole,
// finalize. Generator is written once against arch.Arch; RISC-V is the
// reference implementation, ARM64/x86-64 implement the same interface.
package jit

import (
	"fmt"

	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/codebuffer"
	"github.com/aerocore/aerocore/corerr"
	"github.com/aerocore/aerocore/ir"
)

// DivideByZeroHandler is the host-registered trampoline target for checked
// division (spec §4.4 "Division"). Threaded through Generator explicitly —
// no global singleton, per Design Notes item 2.
type DivideByZeroHandler = uintptr

// relocation records an unresolved branch/call target to be patched once the
// destination block's offset is known (pipeline stage 5).
type relocation struct {
	instrOffset int // byte offset within code of the relocatable immediate
	targetLabel string
}

// symbolReloc records an unresolved direct-call target by symbol name,
// resolved by the Linker the host supplies (e.g. another JIT'd function).
type symbolReloc struct {
	instrOffset int
	symbol      string
}

// Generator lowers functions for one architecture.
type Generator struct {
	a              arch.Arch
	divZeroHandler DivideByZeroHandler
	peephole       bool

	cache *codebuffer.Cache
}

// New constructs a Generator for architecture a.
func New(a arch.Arch, divZeroHandler DivideByZeroHandler, cache *codebuffer.Cache, peephole bool) *Generator {
	return &Generator{a: a, divZeroHandler: divZeroHandler, peephole: peephole, cache: cache}
}

// Symbols resolves a direct-call target's address, or false if unresolved.
// Every call is emitted as a placeholder + relocation and patched from
// Symbols at the end of Compile; a symbol that stays unresolved makes
// Compile fail with corerr.ErrRelocationOutOfRange.
type Symbols interface {
	Resolve(name string) (uintptr, bool)
}

// Compile lowers fn to machine code and returns the installed NativeCode.
func (g *Generator) Compile(fn *ir.Function, syms Symbols) (*codebuffer.NativeCode, error) {
	if errs := ir.Verify(fn); len(errs) > 0 {
		return nil, fmt.Errorf("jit: ir verification failed for %s: %v", fn.Name, errs[0])
	}

	alloc := newAllocator(g.a.ABI())
	for _, p := range fn.Params {
		alloc.alloc(p)
	}

	var code []byte
	var relocs []relocation
	var symRelocs []symbolReloc
	blockOffset := make(map[string]int)

	// Stage 1: block detection is already explicit in fn.Blocks (labels are
	// the basic-block boundaries); no separate scan is needed since
	// AeroCore's IR groups instructions into blocks up front.

	// Stage 2: the prologue depends on the frame size, which is only known
	// after the body pass below, so it is generated after the body and
	// prepended; block offsets and relocations are then shifted by its
	// length.
	prologueLen := 0

	for _, b := range fn.Blocks {
		blockOffset[b.Label] = len(code) // placeholder; corrected after prologue prepended
		for _, in := range b.Instructions {
			lowered, r, sr, err := g.lowerInstruction(in, alloc)
			if err != nil {
				return nil, err
			}
			for i := range r {
				r[i].instrOffset += len(code)
			}
			for i := range sr {
				sr[i].instrOffset += len(code)
			}
			relocs = append(relocs, r...)
			symRelocs = append(symRelocs, sr...)
			code = append(code, lowered...)
			for _, v := range in.Operands {
				alloc.release(v)
			}
		}
		termCode, r, err := g.lowerTerminator(b.Terminator, alloc, blockOffset, len(code))
		if err != nil {
			return nil, err
		}
		relocs = append(relocs, r...)
		code = append(code, termCode...)
	}

	prologue := g.a.EmitPrologue(alloc.frameSize(), alloc.calleeSavedUsed())
	epilogue := g.a.EmitEpilogue(alloc.frameSize(), alloc.calleeSavedUsed())
	prologueLen = len(prologue)

	full := append(append([]byte{}, prologue...), code...)
	full = append(full, epilogue...)

	// Recompute block offsets shifted by the prologue, and re-resolve
	// relocations now that every block's final offset is known.
	for label, off := range blockOffset {
		blockOffset[label] = off + prologueLen
	}
	for _, reloc := range relocs {
		target, ok := blockOffset[reloc.targetLabel]
		if !ok {
			return nil, fmt.Errorf("%w: unresolved label %q in %s", corerr.ErrRelocationOutOfRange, reloc.targetLabel, fn.Name)
		}
		rel := int32(target - (reloc.instrOffset + prologueLen))
		if err := g.a.PatchImmediate(full, reloc.instrOffset+prologueLen, rel); err != nil {
			return nil, fmt.Errorf("%w: %v", corerr.ErrRelocationOutOfRange, err)
		}
	}
	for _, sr := range symRelocs {
		addr, ok := uintptr(0), false
		if syms != nil {
			addr, ok = syms.Resolve(sr.symbol)
		}
		if !ok {
			return nil, fmt.Errorf("%w: unresolved symbol %q", corerr.ErrRelocationOutOfRange, sr.symbol)
		}
		rel := int32(int64(addr) - int64(sr.instrOffset+prologueLen))
		if err := g.a.PatchImmediate(full, sr.instrOffset+prologueLen, rel); err != nil {
			return nil, fmt.Errorf("%w: %v", corerr.ErrRelocationOutOfRange, err)
		}
	}

	if g.peephole {
		full = peepholePass(full)
	}

	buf := &codebuffer.Buffer{}
	if err := buf.Reserve(len(full)); err != nil {
		return nil, err
	}
	if _, err := buf.EmitBytes(full); err != nil {
		return nil, err
	}
	if err := buf.MakeExecutable(); err != nil {
		return nil, err
	}

	nc := &codebuffer.NativeCode{Buffer: buf, Entry: buf.Entry(), Kind: codebuffer.KindJITFunction, Meta: fn.Name}
	if g.cache != nil {
		g.cache.Insert(nc)
	}
	return nc, nil
}

// peepholePass is the optional stage-6 hook, run when the Generator was
// built with peephole enabled. It returns code unchanged: no constant
// folding, dead-move removal or NOP squashing is performed.
func peepholePass(code []byte) []byte {
	return code
}

package jit

import (
	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/ir"
)

// allocator is a two-class linear-scan register allocator: integer GPR and
// floating/vector FPR are tracked in separate free lists, per spec §4.4
// "Register allocation".
type allocator struct {
	abi arch.ABI

	freeInt   []arch.Reg
	freeFloat []arch.Reg

	// lru records allocation order so spill selection can pick the
	// least-recently-used currently-allocated register.
	lruInt   []arch.Reg
	lruFloat []arch.Reg

	assignment map[int]arch.Reg // ir.Value.ID -> physical register
	spillSlot  map[int]int      // ir.Value.ID -> frame byte offset, once spilled

	usedCalleeSaved map[arch.Reg]bool
	nextSpillOffset int
}

func newAllocator(abi arch.ABI) *allocator {
	a := &allocator{
		abi:             abi,
		assignment:      make(map[int]arch.Reg),
		spillSlot:       make(map[int]int),
		usedCalleeSaved: make(map[arch.Reg]bool),
	}
	a.freeInt = append(a.freeInt, abi.ScratchRegs...)
	a.freeFloat = append(a.freeFloat, abi.FPArgRegs...)
	return a
}

// alloc assigns a physical register to v: a free scratch register first,
// then (for integer values) an unused callee-saved register, and only then
// the least-recently-used currently-allocated register of the same class.
func (a *allocator) alloc(v ir.Value) arch.Reg {
	if r, ok := a.assignment[v.ID]; ok {
		return r
	}
	var free *[]arch.Reg
	var lru *[]arch.Reg
	if v.Type.Class() == ir.ClassInt {
		free, lru = &a.freeInt, &a.lruInt
	} else {
		free, lru = &a.freeFloat, &a.lruFloat
	}
	var r arch.Reg
	if len(*free) > 0 {
		r = (*free)[len(*free)-1]
		*free = (*free)[:len(*free)-1]
	} else if v.Type.Class() == ir.ClassInt && len(a.abi.CalleeSavedRegs) > 0 {
		r = a.abi.CalleeSavedRegs[0]
		a.abi.CalleeSavedRegs = a.abi.CalleeSavedRegs[1:]
		a.usedCalleeSaved[r] = true
	} else if len(*lru) > 0 {
		// Spill the least-recently-used allocated register.
		r = (*lru)[0]
		*lru = (*lru)[1:]
	}
	a.assignment[v.ID] = r
	*lru = append(*lru, r)
	return r
}

// spillSlotFor returns (allocating if needed) the frame offset assigned to a
// spilled value.
func (a *allocator) spillSlotFor(id int) int {
	if off, ok := a.spillSlot[id]; ok {
		return off
	}
	off := a.nextSpillOffset
	a.nextSpillOffset += 8
	a.spillSlot[id] = off
	return off
}

// release frees v's register immediately after its defining instruction if
// that instruction was also its last use (spec §4.4 "Release on last use").
func (a *allocator) release(v ir.Value) {
	r, ok := a.assignment[v.ID]
	if !ok {
		return
	}
	delete(a.assignment, v.ID)
	if v.Type.Class() == ir.ClassInt {
		a.freeInt = append(a.freeInt, r)
	} else {
		a.freeFloat = append(a.freeFloat, r)
	}
}

// calleeSavedUsed returns the callee-saved registers the allocator actually
// touched, for the prologue/epilogue save/restore set.
func (a *allocator) calleeSavedUsed() []arch.Reg {
	var out []arch.Reg
	for r := range a.usedCalleeSaved {
		out = append(out, r)
	}
	return out
}

// frameSize returns the spill-area size in bytes, rounded to 8.
func (a *allocator) frameSize() int { return a.nextSpillOffset }

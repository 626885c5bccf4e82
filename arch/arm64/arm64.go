// Package arm64 implements arch.Arch for AArch64. Per spec §4.4, ARM64 is
// "structurally identical" to the RISC-V reference backend; this leaf
// implements the same interface with the representative opcode subset the
// spec names, not a fully tuned production encoder.
package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/aerocore/aerocore/arch"
)

const (
	regX0  = 0
	regX1  = 1
	regX8  = 8
	regX9  = 9
	regX19 = 19
	regFP  = 29 // x29
	regLR  = 30 // x30
	regSP  = 31
)

type ARM64 struct {
	vector arch.VectorISA
}

func New(vectorISA arch.VectorISA) *ARM64 { return &ARM64{vector: vectorISA} }

func (a *ARM64) Name() arch.Name { return arch.ARM64 }

func (a *ARM64) ABI() arch.ABI {
	return arch.ABI{
		ArgRegs:         []arch.Reg{0, 1, 2, 3, 4, 5, 6, 7},
		FPArgRegs:       []arch.Reg{0, 1, 2, 3, 4, 5, 6, 7}, // v0..v7
		ReturnReg:       regX0,
		FPReturnReg:     0,
		ScratchRegs:     []arch.Reg{9, 10, 11, 12},
		CalleeSavedRegs: []arch.Reg{regX19, 20},
		LinkReg:         regLR,
		FrameReg:        regFP,
		StackAlign:      16,
	}
}

func (a *ARM64) ImmediateBits(kind arch.ImmKind) int {
	switch kind {
	case arch.ImmBranch:
		return 19 // conditional branch: 19-bit signed word offset
	case arch.ImmCall:
		return 26 // BL: 26-bit signed word offset
	default:
		return 12
	}
}

func (a *ARM64) VectorISA() arch.VectorISA { return a.vector }

func enc(w uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, w)
	return b
}

// EmitLoadImmediate uses MOVZ + up to 3 MOVK, emitting the minimum chunks
// the value actually needs (spec §4.3 constant materialization).
func (a *ARM64) EmitLoadImmediate(dst arch.Reg, value int64) []byte {
	u := uint64(value)
	var out []byte
	first := true
	for shift := 0; shift < 64; shift += 16 {
		chunk := (u >> uint(shift)) & 0xFFFF
		if chunk == 0 && shift != 0 && !first {
			continue
		}
		var opc uint32 = 0x3 // MOVK
		if first {
			opc = 0x2 // MOVZ
			first = false
		}
		// sf=1, opc, 100101, hw(2), imm16, Rd
		w := uint32(1)<<31 | opc<<29 | 0x25<<23 | uint32(shift/16)<<21 | uint32(chunk)<<5 | uint32(dst)
		out = append(out, enc(w)...)
	}
	if len(out) == 0 {
		out = append(out, enc(uint32(1)<<31|0x2<<29|0x25<<23|uint32(dst))...)
	}
	return out
}

func (a *ARM64) EmitMove(dst, src arch.Reg) []byte {
	// ORR dst, xzr, src (MOV alias)
	return enc(uint32(1)<<31 | 0x2A<<24 | uint32(src)<<16 | 31<<5 | uint32(dst))
}

var binOpc = map[arch.BinOp]uint32{
	arch.BinAdd: 0x0B, arch.BinSub: 0x4B, arch.BinAnd: 0x0A, arch.BinOr: 0x2A, arch.BinXor: 0x4A,
}

func (a *ARM64) EmitBinOp(op arch.BinOp, dst, x, y arch.Reg) []byte {
	if op == arch.BinMul {
		// MADD dst, x, y, xzr
		return enc(uint32(1)<<31 | 0x1B<<24 | uint32(y)<<16 | 31<<10 | uint32(x)<<5 | uint32(dst))
	}
	if op == arch.BinShl || op == arch.BinShr {
		// LSLV/LSRV dst, x, y
		sub := uint32(0x08)
		if op == arch.BinShr {
			sub = 0x0A
		}
		return enc(uint32(1)<<31 | 0x1AC<<21 | uint32(y)<<16 | sub<<10 | uint32(x)<<5 | uint32(dst))
	}
	opc := binOpc[op]
	return enc(uint32(1)<<31 | opc<<24 | uint32(y)<<16 | uint32(x)<<5 | uint32(dst))
}

func ldstSizeBits(size arch.Size) uint32 {
	switch size {
	case arch.Size1:
		return 0
	case arch.Size2:
		return 1
	case arch.Size4:
		return 2
	default:
		return 3
	}
}

func (a *ARM64) EmitLoad(dst, base arch.Reg, off int32, size arch.Size, signExt bool) []byte {
	sz := ldstSizeBits(size)
	opc := uint32(1) // unsigned load
	if signExt {
		opc = 2
	}
	return enc(sz<<30 | 0x1C5<<21 | uint32(off&0xFFF)<<10 | opc<<22 | uint32(base)<<5 | uint32(dst))
}

func (a *ARM64) EmitStore(base, src arch.Reg, off int32, size arch.Size) []byte {
	sz := ldstSizeBits(size)
	return enc(sz<<30 | 0x1C4<<21 | uint32(off&0xFFF)<<10 | uint32(base)<<5 | uint32(src))
}

func (a *ARM64) EmitLoadIndexed(dst, base, index arch.Reg, size arch.Size, signExt bool) []byte {
	var out []byte
	out = append(out, a.EmitBinOp(arch.BinAdd, dst, base, index)...)
	out = append(out, a.EmitLoad(dst, dst, 0, size, signExt)...)
	return out
}

func (a *ARM64) EmitStoreIndexed(base, index, src arch.Reg, size arch.Size) []byte {
	scratch := arch.Reg(9)
	var out []byte
	out = append(out, a.EmitBinOp(arch.BinAdd, scratch, base, index)...)
	out = append(out, a.EmitStore(scratch, src, 0, size)...)
	return out
}

var condCode = map[arch.Cond]uint32{
	arch.CondEq: 0x0, arch.CondNe: 0x1, arch.CondLt: 0xB, arch.CondGe: 0xA, arch.CondGt: 0xC, arch.CondLe: 0xD,
}

func (a *ARM64) EmitCompareBranch(cond arch.Cond, x, y arch.Reg, relOffset int32) ([]byte, int) {
	var out []byte
	// CMP x, y (SUBS xzr, x, y)
	out = append(out, enc(uint32(1)<<31|0x6B<<24|uint32(y)<<16|uint32(x)<<5|31)...)
	imm19 := (relOffset / 4) & 0x7FFFF
	w := uint32(0x54)<<24 | uint32(imm19)<<5 | condCode[cond]
	out = append(out, enc(w)...)
	return out, 4
}

func (a *ARM64) EmitBranch(relOffset int32) ([]byte, int) {
	imm26 := (relOffset / 4) & 0x3FFFFFF
	return enc(uint32(0x5)<<26 | uint32(imm26)), 0
}

func (a *ARM64) EmitLongBranch(cond arch.Cond, x, y arch.Reg, longOffsetPlaceholder int32) ([]byte, int) {
	inv := invert(cond)
	short, _ := a.EmitCompareBranch(inv, x, y, 8)
	long, immOff := a.EmitBranch(longOffsetPlaceholder)
	return append(short, long...), len(short) + immOff
}

func invert(c arch.Cond) arch.Cond {
	switch c {
	case arch.CondEq:
		return arch.CondNe
	case arch.CondNe:
		return arch.CondEq
	case arch.CondLt:
		return arch.CondGe
	case arch.CondGe:
		return arch.CondLt
	case arch.CondGt:
		return arch.CondLe
	default:
		return arch.CondGt
	}
}

func (a *ARM64) EmitIndirectBranch(target arch.Reg) []byte {
	return enc(0x1101F<<10 | uint32(target)<<5) // BR target
}

func (a *ARM64) EmitCall(relOffset int32) ([]byte, int) {
	imm26 := (relOffset / 4) & 0x3FFFFFF
	return enc(uint32(0x25)<<26 | uint32(imm26)), 0
}

func (a *ARM64) EmitIndirectCall(target arch.Reg) []byte {
	return enc(0x3587C0<<10 | uint32(target)<<5) // BLR target
}

func (a *ARM64) EmitTailCall(target arch.Reg) []byte { return a.EmitIndirectBranch(target) }

func (a *ARM64) EmitReturn() []byte {
	return enc(0xD65F03C0) // RET
}

// emitSPImm encodes ADD/SUB (immediate) sp, sp, #imm12 (imm must be a
// non-negative multiple of 1, ≤ 4095, which the 16-byte-aligned frame sizes
// used here always satisfy).
func emitSPImm(sub bool, imm int32) []byte {
	opc := uint32(0x91) // ADD (immediate), 64-bit
	if sub {
		opc = 0xD1
	}
	return enc(opc<<24 | uint32(imm&0xFFF)<<10 | regSP<<5 | regSP)
}

func (a *ARM64) EmitPrologue(frameSize int, calleeSaved []arch.Reg) []byte {
	total := align16(16 + frameSize + 8*len(calleeSaved))
	var out []byte
	out = append(out, emitSPImm(true, int32(total))...)
	out = append(out, a.EmitStore(regSP, regLR, int32(total-8), arch.Size8)...)
	out = append(out, a.EmitStore(regSP, regFP, int32(total-16), arch.Size8)...)
	for i, creg := range calleeSaved {
		out = append(out, a.EmitStore(regSP, creg, int32(total-24-8*i), arch.Size8)...)
	}
	return out
}

func (a *ARM64) EmitEpilogue(frameSize int, calleeSaved []arch.Reg) []byte {
	total := align16(16 + frameSize + 8*len(calleeSaved))
	var out []byte
	for i, creg := range calleeSaved {
		out = append(out, a.EmitLoad(creg, regSP, int32(total-24-8*i), arch.Size8, false)...)
	}
	out = append(out, a.EmitLoad(regLR, regSP, int32(total-8), arch.Size8, false)...)
	out = append(out, a.EmitLoad(regFP, regSP, int32(total-16), arch.Size8, false)...)
	out = append(out, emitSPImm(false, int32(total))...)
	out = append(out, a.EmitReturn()...)
	return out
}

func align16(n int) int { return (n + 15) &^ 15 }

func (a *ARM64) EmitDivBranch(divisor arch.Reg, relOffset int32) ([]byte, int) {
	return a.EmitCompareBranch(arch.CondEq, divisor, 31, relOffset)
}

func (a *ARM64) EmitDiv(dst, x, y arch.Reg) []byte {
	return enc(uint32(1)<<31 | 0x1AC0C<<10 | uint32(y)<<16 | uint32(x)<<5 | uint32(dst)) // SDIV
}

func (a *ARM64) EmitVectorSetup(elemSize arch.Size, count int) []byte { return nil }

func (a *ARM64) EmitVectorOp(op arch.BinOp, dst, x, y arch.Reg) []byte {
	// NEON ADD.4S placeholder encoding.
	return enc(0x4EA0_8400 | uint32(y)<<16 | uint32(x)<<5 | uint32(dst))
}

func (a *ARM64) EmitAtomicAdd(dst, addr, val arch.Reg) []byte {
	// LDADDAL
	return enc(0x38_200000 | uint32(val)<<16 | uint32(addr)<<5 | uint32(dst))
}

func (a *ARM64) EmitAtomicCAS(dst, addr, expected, newVal arch.Reg) []byte {
	return enc(0x08_A07C00 | uint32(expected)<<16 | uint32(addr)<<5 | uint32(dst))
}

func (a *ARM64) PatchImmediate(code []byte, immOffset int, value int32) error {
	if immOffset+4 > len(code) {
		return fmt.Errorf("arm64: patch offset %d out of range (len %d)", immOffset, len(code))
	}
	w := binary.LittleEndian.Uint32(code[immOffset:])
	imm26 := uint32((value/4)&0x3FFFFFF)
	imm19 := uint32((value/4) & 0x7FFFF)
	switch w >> 26 {
	case 0x5, 0x25: // B, BL
		w = (w &^ 0x3FFFFFF) | imm26
	default:
		w = (w &^ (0x7FFFF << 5)) | imm19<<5
	}
	binary.LittleEndian.PutUint32(code[immOffset:], w)
	return nil
}

func (a *ARM64) DirectBranchRange() (int32, int32) { return -(1 << 20), (1 << 20) - 1 }
func (a *ARM64) DirectCallRange() (int32, int32)   { return -(1 << 27), (1 << 27) - 1 }

func (a *ARM64) FlushICache(addr uintptr, size int) {
	// No instruction is issued here. codebuffer's MakeExecutable calls its
	// own flush hook for arm64, and that hook is currently empty, so no
	// IC IVAU / DSB ISH / ISB sequence is executed.
}

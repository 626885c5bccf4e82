// Package x86_64 implements arch.Arch for the x86-64 System V ABI. Per spec
// §4.4, x86-64 is structurally identical to the RISC-V reference backend;
// this leaf implements the representative opcode subset, not a tuned
// production encoder (x86-64 needs no I-cache flush per spec §4.1, unlike
// its RISC-V/ARM64 counterparts).
package x86_64

import (
	"encoding/binary"
	"fmt"

	"github.com/aerocore/aerocore/arch"
)

// Register numbers follow the x86-64 encoding order (RAX=0 .. R15=15).
const (
	regAX = 0
	regCX = 1
	regDX = 2
	regBX = 3
	regSP = 4
	regBP = 5
	regSI = 6
	regDI = 7
	regR8 = 8
)

type X86_64 struct {
	vector arch.VectorISA
}

func New(vectorISA arch.VectorISA) *X86_64 { return &X86_64{vector: vectorISA} }

func (x *X86_64) Name() arch.Name { return arch.X86_64 }

func (x *X86_64) ABI() arch.ABI {
	return arch.ABI{
		ArgRegs:         []arch.Reg{regDI, regSI, regDX, regCX, regR8, 9},
		FPArgRegs:       []arch.Reg{0, 1, 2, 3, 4, 5, 6, 7}, // xmm0..xmm7
		ReturnReg:       regAX,
		FPReturnReg:     0,
		ScratchRegs:     []arch.Reg{regCX, regDX, 10, 11},
		CalleeSavedRegs: []arch.Reg{regBX, 12, 13, 14, 15},
		LinkReg:         -1, // return address lives on the stack, not a register
		FrameReg:        regBP,
		StackAlign:      16,
	}
}

func (x *X86_64) ImmediateBits(kind arch.ImmKind) int {
	switch kind {
	case arch.ImmBranch, arch.ImmCall:
		return 32 // rel32
	default:
		return 32 // imm32, sign-extended
	}
}

func (x *X86_64) VectorISA() arch.VectorISA { return x.vector }

func rex(w, r, x2, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x2 {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | rm&7 }

func le32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func le64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// EmitLoadImmediate uses the minimum chunks needed: a 32-bit immediate move
// when the value fits, otherwise a full 64-bit MOV imm64.
func (x *X86_64) EmitLoadImmediate(dst arch.Reg, value int64) []byte {
	if value >= -(1<<31) && value <= (1<<31)-1 {
		out := []byte{rex(false, false, false, dst >= 8), 0xB8 + byte(dst&7)}
		return append(out, le32(int32(value))...)
	}
	out := []byte{rex(true, false, false, dst >= 8), 0xB8 + byte(dst&7)}
	return append(out, le64(value)...)
}

func (x *X86_64) EmitMove(dst, src arch.Reg) []byte {
	return []byte{rex(true, src >= 8, false, dst >= 8), 0x89, modrm(3, byte(src), byte(dst))}
}

var binOpcode = map[arch.BinOp]byte{
	arch.BinAdd: 0x01, arch.BinSub: 0x29, arch.BinAnd: 0x21, arch.BinOr: 0x09, arch.BinXor: 0x31,
}

func (x *X86_64) EmitBinOp(op arch.BinOp, dst, a, b arch.Reg) []byte {
	var out []byte
	if dst != a {
		out = append(out, x.EmitMove(dst, a)...)
	}
	switch op {
	case arch.BinMul:
		// IMUL dst, b  (two-operand form; assumes dst already holds a)
		out = append(out, rex(true, dst >= 8, false, b >= 8), 0x0F, 0xAF, modrm(3, byte(dst), byte(b)))
	case arch.BinShl, arch.BinShr:
		sub := byte(4)
		if op == arch.BinShr {
			sub = 5
		}
		// SHL/SHR dst, cl  (assumes b == rcx)
		out = append(out, rex(true, false, false, dst >= 8), 0xD3, modrm(3, sub, byte(dst)))
	default:
		out = append(out, rex(true, b >= 8, false, dst >= 8), binOpcode[op], modrm(3, byte(b), byte(dst)))
	}
	return out
}

func (x *X86_64) EmitLoad(dst, base arch.Reg, off int32, size arch.Size, signExt bool) []byte {
	opc := byte(0x8B) // MOV r64, r/m64
	w := true
	if size == arch.Size4 && !signExt {
		w = false
	} else if signExt && size != arch.Size8 {
		opc = 0x63 // MOVSXD for 32->64; narrower sign-extends approximated the same way
	}
	var out []byte
	out = append(out, rex(w, dst >= 8, false, base >= 8), opc)
	out = append(out, modrm(2, byte(dst), byte(base)))
	out = append(out, le32(off)...)
	return out
}

func (x *X86_64) EmitStore(base, src arch.Reg, off int32, size arch.Size) []byte {
	w := size == arch.Size8
	var out []byte
	out = append(out, rex(w, src >= 8, false, base >= 8), 0x89)
	out = append(out, modrm(2, byte(src), byte(base)))
	out = append(out, le32(off)...)
	return out
}

func (x *X86_64) EmitLoadIndexed(dst, base, index arch.Reg, size arch.Size, signExt bool) []byte {
	var out []byte
	out = append(out, x.EmitBinOp(arch.BinAdd, dst, base, index)...)
	out = append(out, x.EmitLoad(dst, dst, 0, size, signExt)...)
	return out
}

func (x *X86_64) EmitStoreIndexed(base, index, src arch.Reg, size arch.Size) []byte {
	scratch := arch.Reg(10)
	var out []byte
	out = append(out, x.EmitBinOp(arch.BinAdd, scratch, base, index)...)
	out = append(out, x.EmitStore(scratch, src, 0, size)...)
	return out
}

var jccCode = map[arch.Cond]byte{
	arch.CondEq: 0x84, arch.CondNe: 0x85, arch.CondLt: 0x8C, arch.CondGe: 0x8D, arch.CondGt: 0x8F, arch.CondLe: 0x8E,
}

func (x *X86_64) EmitCompareBranch(cond arch.Cond, a, b arch.Reg, relOffset int32) ([]byte, int) {
	var out []byte
	out = append(out, rex(true, b >= 8, false, a >= 8), 0x39, modrm(3, byte(b), byte(a))) // CMP a, b
	out = append(out, 0x0F, jccCode[cond])
	immOff := len(out)
	out = append(out, le32(relOffset)...)
	return out, immOff
}

func (x *X86_64) EmitBranch(relOffset int32) ([]byte, int) {
	out := []byte{0xE9}
	immOff := len(out)
	out = append(out, le32(relOffset)...)
	return out, immOff
}

func (x *X86_64) EmitLongBranch(cond arch.Cond, a, b arch.Reg, longOffsetPlaceholder int32) ([]byte, int) {
	// x86-64's conditional jump already takes a full rel32, so there is no
	// separate "long" form — kept for interface symmetry with the other
	// architectures, which do need the invert+skip pattern.
	return x.EmitCompareBranch(cond, a, b, longOffsetPlaceholder)
}

func (x *X86_64) EmitIndirectBranch(target arch.Reg) []byte {
	return []byte{rex(false, false, false, target >= 8), 0xFF, modrm(3, 4, byte(target))} // JMP r/m64
}

func (x *X86_64) EmitCall(relOffset int32) ([]byte, int) {
	out := []byte{0xE8}
	immOff := len(out)
	out = append(out, le32(relOffset)...)
	return out, immOff
}

func (x *X86_64) EmitIndirectCall(target arch.Reg) []byte {
	return []byte{rex(false, false, false, target >= 8), 0xFF, modrm(3, 2, byte(target))} // CALL r/m64
}

func (x *X86_64) EmitTailCall(target arch.Reg) []byte { return x.EmitIndirectBranch(target) }

func (x *X86_64) EmitReturn() []byte { return []byte{0xC3} }

func (x *X86_64) EmitPrologue(frameSize int, calleeSaved []arch.Reg) []byte {
	total := align16(frameSize + 8*len(calleeSaved))
	var out []byte
	out = append(out, 0x55)                          // PUSH rbp
	out = append(out, 0x48, 0x89, 0xE5)               // MOV rbp, rsp
	out = append(out, x.emitSPImm(true, int32(total))...)
	for i, creg := range calleeSaved {
		out = append(out, x.EmitStore(regBP, creg, int32(-8*(i+1)), arch.Size8)...)
	}
	return out
}

func (x *X86_64) EmitEpilogue(frameSize int, calleeSaved []arch.Reg) []byte {
	var out []byte
	for i, creg := range calleeSaved {
		out = append(out, x.EmitLoad(creg, regBP, int32(-8*(i+1)), arch.Size8, false)...)
	}
	out = append(out, 0xC9) // LEAVE (mov rsp, rbp; pop rbp)
	out = append(out, x.EmitReturn()...)
	return out
}

func (x *X86_64) emitSPImm(sub bool, imm int32) []byte {
	opc := byte(0x05) // ADD rax, imm32 family selects via /0 or /5 in modrm for 0x81
	_ = opc
	sub2 := byte(0)
	if sub {
		sub2 = 5
	}
	out := []byte{rex(true, false, false, false), 0x81, modrm(3, sub2, byte(regSP))}
	return append(out, le32(imm)...)
}

func align16(n int) int { return (n + 15) &^ 15 }

func (x *X86_64) EmitDivBranch(divisor arch.Reg, relOffset int32) ([]byte, int) {
	var out []byte
	out = append(out, rex(true, false, false, divisor >= 8), 0x85, modrm(3, byte(divisor), byte(divisor))) // TEST divisor, divisor
	out = append(out, 0x0F, 0x84)                                                                           // JE rel32
	immOff := len(out)
	out = append(out, le32(relOffset)...)
	return out, immOff
}

func (x *X86_64) EmitDiv(dst, a, b arch.Reg) []byte {
	// IDIV b; assumes a is already in RAX and the result is moved to dst by
	// the caller (the generic pipeline handles the RAX/RDX dance).
	return []byte{rex(true, false, false, b >= 8), 0xF7, modrm(3, 7, byte(b))}
}

func (x *X86_64) EmitVectorSetup(elemSize arch.Size, count int) []byte { return nil }

func (x *X86_64) EmitVectorOp(op arch.BinOp, dst, a, b arch.Reg) []byte {
	// VPADDD-style AVX2 placeholder encoding (VEX prefix omitted for
	// brevity — this path is only reached when hostinfo reports AVX2/512).
	return []byte{0xC5, 0xF1, 0xFE, modrm(3, byte(dst), byte(b))}
}

func (x *X86_64) EmitAtomicAdd(dst, addr, val arch.Reg) []byte {
	return []byte{0xF0, rex(true, val >= 8, false, addr >= 8), 0x01, modrm(0, byte(val), byte(addr))} // LOCK ADD
}

func (x *X86_64) EmitAtomicCAS(dst, addr, expected, newVal arch.Reg) []byte {
	return []byte{0xF0, rex(true, newVal >= 8, false, addr >= 8), 0x0F, 0xB1, modrm(0, byte(newVal), byte(addr))} // LOCK CMPXCHG
}

func (x *X86_64) PatchImmediate(code []byte, immOffset int, value int32) error {
	if immOffset+4 > len(code) {
		return fmt.Errorf("x86_64: patch offset %d out of range (len %d)", immOffset, len(code))
	}
	binary.LittleEndian.PutUint32(code[immOffset:], uint32(value))
	return nil
}

func (x *X86_64) DirectBranchRange() (int32, int32) { return -(1 << 31), (1 << 31) - 1 }
func (x *X86_64) DirectCallRange() (int32, int32)   { return -(1 << 31), (1 << 31) - 1 }

func (x *X86_64) FlushICache(addr uintptr, size int) {
	// No-op: x86-64 maintains I/D cache coherence in hardware. codebuffer
	// issues no fence for x86-64 either.
}

// Package arch defines the architecture-descriptor trait that both the IC
// stub generator (icstub) and the JIT code generator (jit) are parameterized
// over, replacing the source's three near-identical per-architecture
// generators with one generic pipeline plus per-architecture leaf encoders
// (arch/riscv64, arch/arm64, arch/x86_64).
package arch

import "github.com/aerocore/aerocore/ir"

// VectorISA identifies a detected or configured vector extension.
type VectorISA int

const (
	VectorNone VectorISA = iota
	VectorRISCV_V
	VectorNEON
	VectorAVX2
	VectorAVX512
)

func (v VectorISA) String() string {
	switch v {
	case VectorRISCV_V:
		return "rvv"
	case VectorNEON:
		return "neon"
	case VectorAVX2:
		return "avx2"
	case VectorAVX512:
		return "avx512"
	default:
		return "none"
	}
}

// Name identifies a concrete architecture.
type Name string

const (
	RISCV64 Name = "riscv64"
	ARM64   Name = "arm64"
	X86_64  Name = "x86_64"
)

// Cond is an architecture-neutral comparison condition, translated from
// ir.Op's comparison family by the generic pipeline before reaching an
// encoder.
type Cond int

const (
	CondEq Cond = iota
	CondNe
	CondLt
	CondLe
	CondGt
	CondGe
)

// Reg is a physical register number within one of the classes below. The
// meaning of a given number is architecture-specific; callers never compare
// Reg values across architectures.
type Reg int

// Special register role markers, resolved to a concrete Reg by each
// architecture's ABI() descriptor.
type ABI struct {
	// ArgRegs / FPArgRegs are the integer/FP argument registers in order,
	// per the platform calling convention (spec §4.4 "Function call ABI").
	ArgRegs   []Reg
	FPArgRegs []Reg
	// ReturnReg / FPReturnReg hold the return value.
	ReturnReg   Reg
	FPReturnReg Reg
	// ScratchRegs are caller-saved temporaries the allocator prefers.
	ScratchRegs []Reg
	// CalleeSavedRegs are used only once ScratchRegs are exhausted.
	CalleeSavedRegs []Reg
	// LinkReg / FrameReg hold the return address and frame pointer.
	LinkReg  Reg
	FrameReg Reg
	// StackAlign is the required stack alignment in bytes (16 on every
	// target arch.Arch implements).
	StackAlign int
}

// Arch is the descriptor + encoder trait every architecture leaf package
// implements. icstub.Template and jit.Generator are written once against
// this interface.
type Arch interface {
	Name() Name
	ABI() ABI

	// ImmediateBits reports the widest immediate this architecture can
	// encode directly in a single instruction of the given kind, so the
	// generic pipeline can decide how many chunks a 64-bit constant needs
	// without per-architecture branching (spec §4.3 "Constant
	// materialization").
	ImmediateBits(kind ImmKind) int

	// VectorISA reports the detected/forced vector extension (populated by
	// hostinfo at startup); VectorNone means the generator must fall back
	// to scalar loop expansion.
	VectorISA() VectorISA

	// -- Encoders. Each returns the encoded bytes to append to the code
	// buffer; callers are responsible for relocation bookkeeping.

	// EmitLoadImmediate materializes a 64-bit constant into dst using the
	// minimum number of chunks the value needs.
	EmitLoadImmediate(dst Reg, value int64) []byte
	// EmitMove copies src to dst.
	EmitMove(dst, src Reg) []byte
	// EmitBinOp emits a single R-type-shaped instruction for op(dst, a, b).
	EmitBinOp(op BinOp, dst, a, b Reg) []byte
	// EmitLoad/EmitStore emit a size-appropriate memory access at base+off.
	// If off exceeds the architecture's direct-offset immediate width, the
	// caller must first materialize it into a scratch register and call
	// EmitLoadIndexed/EmitStoreIndexed instead.
	EmitLoad(dst, base Reg, off int32, size Size, signExt bool) []byte
	EmitStore(base, src Reg, off int32, size Size) []byte
	EmitLoadIndexed(dst, base, index Reg, size Size, signExt bool) []byte
	EmitStoreIndexed(base, index, src Reg, size Size) []byte

	// EmitCompareBranch emits a single B-type-shaped conditional branch to a
	// relative offset (already resolved by the caller); returns the encoded
	// bytes and the byte offset within them of the relocatable immediate
	// field, so the caller can patch it after layout.
	EmitCompareBranch(cond Cond, a, b Reg, relOffset int32) (code []byte, immOffset int)
	// EmitBranch emits an unconditional direct branch.
	EmitBranch(relOffset int32) (code []byte, immOffset int)
	// EmitLongBranch emits the inverted-condition long-jump sequence used
	// when a direct branch's offset does not fit (spec §4.3 "Far branches").
	EmitLongBranch(cond Cond, a, b Reg, longOffsetPlaceholder int32) (code []byte, immOffset int)
	// EmitIndirectBranch emits the fully indirect pattern used when even the
	// long branch cannot reach (AUIPC+JALR / ADRP+BR / MOV+JMP).
	EmitIndirectBranch(target Reg) []byte

	// EmitCall emits a direct call; if the target is out of direct-call range
	// the caller materializes the address into a scratch register and
	// requests an indirect call instead. EmitTailCall is an indirect jump
	// through target that does not write a return address.
	EmitCall(relOffset int32) (code []byte, immOffset int)
	EmitIndirectCall(target Reg) []byte
	EmitTailCall(target Reg) []byte
	EmitReturn() []byte

	// EmitPrologue/EmitEpilogue bracket a function body per the frame
	// layout in spec §4.4; calleeSaved lists the callee-saved registers the
	// allocator actually used.
	EmitPrologue(frameSize int, calleeSaved []Reg) []byte
	EmitEpilogue(frameSize int, calleeSaved []Reg) []byte

	// EmitDivBranch emits a branch-if-zero on divisor to a relative
	// trampoline offset, for the checked-division lowering.
	EmitDivBranch(divisor Reg, relOffset int32) (code []byte, immOffset int)
	EmitDiv(dst, a, b Reg) []byte

	// EmitVectorSetup configures vector lanes (vl/sew/lmul or architecture
	// equivalent) for a vector op of the given element size and count.
	EmitVectorSetup(elemSize Size, count int) []byte
	EmitVectorOp(op BinOp, dst, a, b Reg) []byte

	// EmitAtomicAdd/EmitAtomicCAS use the architecture's AMO encoding.
	EmitAtomicAdd(dst, addr, val Reg) []byte
	EmitAtomicCAS(dst, addr, expected, newVal Reg) []byte

	// PatchImmediate rewrites the relocatable immediate field recorded by an
	// Emit* call's immOffset, now that the real target offset is known.
	PatchImmediate(code []byte, immOffset int, value int32) error

	// DirectBranchRange/DirectCallRange report the signed byte range a
	// direct branch/call immediate can reach, for relocation planning.
	DirectBranchRange() (min, max int32)
	DirectCallRange() (min, max int32)

	// FlushICache flushes the instruction cache for [addr, addr+size) if
	// this architecture requires it (ARM64, RISC-V); x86-64 is a no-op.
	FlushICache(addr uintptr, size int)
}

// ImmKind distinguishes the several places an architecture's immediate
// encoding width differs (arithmetic/branch/call/load-store offset).
type ImmKind int

const (
	ImmArith ImmKind = iota
	ImmBranch
	ImmCall
	ImmLoadStoreOffset
)

// BinOp is the architecture-neutral arithmetic/bitwise op passed to
// EmitBinOp/EmitVectorOp, translated from ir.Op by the generic pipeline.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
)

// FromIROp translates an ir.Op arithmetic opcode to the architecture-neutral
// BinOp the encoders accept.
func FromIROp(op ir.Op) (BinOp, bool) {
	switch op {
	case ir.OpAdd:
		return BinAdd, true
	case ir.OpSub:
		return BinSub, true
	case ir.OpMul:
		return BinMul, true
	case ir.OpAnd:
		return BinAnd, true
	case ir.OpOr:
		return BinOr, true
	case ir.OpXor:
		return BinXor, true
	case ir.OpShl:
		return BinShl, true
	case ir.OpShr:
		return BinShr, true
	default:
		return 0, false
	}
}

// CondFromIROp translates an ir.Op comparison opcode to the
// architecture-neutral Cond the encoders accept.
func CondFromIROp(op ir.Op) (Cond, bool) {
	switch op {
	case ir.OpCmpEq:
		return CondEq, true
	case ir.OpCmpNe:
		return CondNe, true
	case ir.OpCmpLt:
		return CondLt, true
	case ir.OpCmpLe:
		return CondLe, true
	case ir.OpCmpGt:
		return CondGt, true
	case ir.OpCmpGe:
		return CondGe, true
	default:
		return 0, false
	}
}

// Size is a memory access width in bytes.
type Size int

const (
	Size1 Size = 1
	Size2 Size = 2
	Size4 Size = 4
	Size8 Size = 8
)

// Package ir defines AeroCore's linear intermediate representation: typed
// instructions grouped into basic blocks within a function. The IR is
// SSA-like but SSA is not required — only that each instruction's operand
// kinds match its opcode (checked by Verify).
package ir

import "fmt"

// Type is the scalar type an IR value carries. It mirrors the host Value's
// tag space closely enough for the JIT to pick load/store widths and pick
// integer vs. floating-point register classes.
type Type int

const (
	TypeVoid Type = iota
	TypeBool
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeF32
	TypeF64
	TypePtr // object/value reference, GC-managed
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeBool:
		return "bool"
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypePtr:
		return "ptr"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Class reports the register class an IR Type is allocated into.
func (t Type) Class() RegClass {
	switch t {
	case TypeF32, TypeF64:
		return ClassFloat
	default:
		return ClassInt
	}
}

// RegClass partitions the virtual-register space the allocator works over.
type RegClass int

const (
	ClassInt RegClass = iota
	ClassFloat
	ClassVector
)

// Value is a reference to a virtual register or, for Imm-carrying
// instructions, an implicit immediate operand. IDs are assigned by Function
// construction and are unique within a function.
type Value struct {
	ID   int
	Type Type
}

func (v Value) String() string { return fmt.Sprintf("%%v%d", v.ID) }

// Op enumerates the opcode table from the JIT lowering contract.
type Op int

const (
	// Arithmetic / bitwise
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr

	// Comparison (produce a bool Value)
	OpCmpEq
	OpCmpNe
	OpCmpLt
	OpCmpLe
	OpCmpGt
	OpCmpGe

	// Constants and memory
	OpLoadConstant
	OpLoad
	OpStore

	// Control flow (also see Terminator for block-ending branches)
	OpCall

	// Vector
	OpVectorLoad
	OpVectorStore
	OpVectorOp

	// Structured loop, lowered to a counted branch-back per spec §4.4
	OpOptimizedLoop

	// Atomics, lowered to the architecture's AMO encoding
	OpAtomicAdd
	OpAtomicCAS
)

var opNames = map[Op]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpShl: "shl", OpShr: "shr",
	OpCmpEq: "cmp.eq", OpCmpNe: "cmp.ne", OpCmpLt: "cmp.lt",
	OpCmpLe: "cmp.le", OpCmpGt: "cmp.gt", OpCmpGe: "cmp.ge",
	OpLoadConstant: "load.const", OpLoad: "load", OpStore: "store",
	OpCall:          "call",
	OpVectorLoad:    "vload", OpVectorStore: "vstore", OpVectorOp: "vop",
	OpOptimizedLoop: "loop.opt",
	OpAtomicAdd:     "atomic.add", OpAtomicCAS: "atomic.cas",
}

func (op Op) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsArithmetic reports whether op is one of ADD/SUB/MUL/AND/OR/XOR — the
// single-R-type-instruction lowering group.
func (op Op) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpAnd, OpOr, OpXor:
		return true
	default:
		return false
	}
}

// IsCompare reports whether op produces a boolean comparison result.
func (op Op) IsCompare() bool {
	switch op {
	case OpCmpEq, OpCmpNe, OpCmpLt, OpCmpLe, OpCmpGt, OpCmpGe:
		return true
	default:
		return false
	}
}

// Instruction is one IR instruction: an opcode, its typed destination, its
// operands, and an optional immediate (used by LoadConstant, Load/Store
// offsets, and loop iteration counts).
type Instruction struct {
	Op       Op
	Type     Type
	Dst      Value
	Operands []Value
	Imm      int64

	// CheckDivByZero gates the divide-by-zero trampoline per spec §4.4
	// "Division"; only meaningful when Op == OpDiv.
	CheckDivByZero bool

	// LoopBody holds the body instructions for OpOptimizedLoop; Imm holds
	// the iteration count.
	LoopBody []*Instruction

	// FuncName identifies the callee for OpCall by symbol name; the JIT
	// records a relocation for it and resolves it when the function is
	// compiled. There is no indirect-call form.
	FuncName string
}

func (in *Instruction) String() string {
	s := fmt.Sprintf("%s = %s", in.Dst, in.Op)
	for _, o := range in.Operands {
		s += " " + o.String()
	}
	if in.Op == OpLoadConstant || in.Op == OpLoad || in.Op == OpStore {
		s += fmt.Sprintf(" +%d", in.Imm)
	}
	return s
}

// Terminator ends a basic block.
type Terminator interface {
	terminator()
	String() string
}

// TermReturn returns a value (or void) from the function.
type TermReturn struct {
	Value *Value
}

func (t *TermReturn) terminator() {}
func (t *TermReturn) String() string {
	if t.Value != nil {
		return fmt.Sprintf("ret %s", *t.Value)
	}
	return "ret void"
}

// TermBranch unconditionally branches to Target.
type TermBranch struct {
	Target *BasicBlock
}

func (t *TermBranch) terminator() {}
func (t *TermBranch) String() string { return fmt.Sprintf("br %s", t.Target.Label) }

// TermCondBranch branches to TrueBlk or FalseBlk depending on a comparison
// between Lhs and Rhs, per the BRANCH_* lowering group (single B-type
// instruction, or invert+long-jump when the offset is out of range).
type TermCondBranch struct {
	Op       Op // one of the OpCmp* family
	Lhs, Rhs Value
	TrueBlk  *BasicBlock
	FalseBlk *BasicBlock
}

func (t *TermCondBranch) terminator() {}
func (t *TermCondBranch) String() string {
	return fmt.Sprintf("br.%s %s, %s, %s, %s", t.Op, t.Lhs, t.Rhs, t.TrueBlk.Label, t.FalseBlk.Label)
}

// BasicBlock is a straight-line sequence of instructions ending in a
// Terminator.
type BasicBlock struct {
	Label        string
	Instructions []*Instruction
	Terminator   Terminator
}

// Function is an ordered sequence of basic blocks plus the frame size the
// allocator's spill slots must fit within.
type Function struct {
	Name      string
	Params    []Value
	ReturnType Type
	Blocks    []*BasicBlock
	FrameSize int

	nextValueID int
}

// NewFunction creates an empty function ready for block construction.
func NewFunction(name string, returnType Type) *Function {
	return &Function{Name: name, ReturnType: returnType}
}

// NewValue allocates a fresh virtual register of the given type.
func (f *Function) NewValue(t Type) Value {
	v := Value{ID: f.nextValueID, Type: t}
	f.nextValueID++
	return v
}

// NewBlock appends and returns a new basic block.
func (f *Function) NewBlock(label string) *BasicBlock {
	b := &BasicBlock{Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Emit appends an instruction to the block.
func (b *BasicBlock) Emit(in *Instruction) { b.Instructions = append(b.Instructions, in) }

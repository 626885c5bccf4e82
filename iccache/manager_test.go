package iccache

import (
	"testing"

	"github.com/aerocore/aerocore/object"
)

type fakeObject struct {
	shapeID     uint64
	inlineSlots map[uint32]uint64
}

func (o *fakeObject) ShapeID() uint64                      { return o.shapeID }
func (o *fakeObject) InlineSlot(offset uint32) uint64       { return o.inlineSlots[offset] }
func (o *fakeObject) SetInlineSlot(offset uint32, v uint64) { o.inlineSlots[offset] = v }
func (o *fakeObject) OutOfLineSlots() []uint64              { return nil }
func (o *fakeObject) Prototype() object.Object              { return nil }

type fakeResolver struct {
	properties map[uint64]PropertyEntry
	values     map[uint64]uint64
}

func (r *fakeResolver) ResolveProperty(obj object.Object, prop string) (PropertyEntry, uint64, bool) {
	e, ok := r.properties[obj.ShapeID()]
	if !ok {
		return PropertyEntry{}, 0, false
	}
	return e, r.values[obj.ShapeID()], true
}

func (r *fakeResolver) ResolveMethod(obj object.Object, method string) (MethodEntry, bool) {
	return MethodEntry{}, false
}

type fakeStubs struct {
	propertyCalls int
	methodCalls   int
}

func (s *fakeStubs) GeneratePropertyStub(c *PropertyCache) (uintptr, error) {
	s.propertyCalls++
	return 0x1000 + uintptr(s.propertyCalls), nil
}
func (s *fakeStubs) GenerateMethodStub(c *MethodCache) (uintptr, error) {
	s.methodCalls++
	return 0x2000 + uintptr(s.methodCalls), nil
}
func (s *fakeStubs) MegamorphicPropertyStub() uintptr { return 0xDEAD }
func (s *fakeStubs) MegamorphicMethodStub() uintptr   { return 0xBEEF }

func TestHandlePropertyAccessMissThenHit(t *testing.T) {
	resolver := &fakeResolver{
		properties: map[uint64]PropertyEntry{1: {ShapeID: 1, SlotOffset: 0, Inline: true}},
		values:     map[uint64]uint64{1: 42},
	}
	stubs := &fakeStubs{}
	m, err := NewManager(resolver, stubs, 16, DefaultMegamorphicThreshold, DefaultMissThreshold)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	obj := &fakeObject{shapeID: 1, inlineSlots: map[uint32]uint64{16: 42}}

	v, ok := m.HandlePropertyAccess(100, obj, "x")
	if !ok || v != 42 {
		t.Fatalf("first access = (%d, %v), want (42, true)", v, ok)
	}
	if stubs.propertyCalls != 1 {
		t.Fatalf("expected one stub regeneration after uninit->mono transition, got %d", stubs.propertyCalls)
	}

	v, ok = m.HandlePropertyAccess(100, obj, "x")
	if !ok || v != 42 {
		t.Fatalf("second access (cache hit) = (%d, %v), want (42, true)", v, ok)
	}
	if stubs.propertyCalls != 1 {
		t.Fatalf("cache hit should not regenerate a stub, got %d calls", stubs.propertyCalls)
	}
}

func TestHandlePropertyAccessUnresolvableReturnsFalse(t *testing.T) {
	resolver := &fakeResolver{properties: map[uint64]PropertyEntry{}}
	stubs := &fakeStubs{}
	m, _ := NewManager(resolver, stubs, 16, DefaultMegamorphicThreshold, DefaultMissThreshold)
	obj := &fakeObject{shapeID: 99, inlineSlots: map[uint32]uint64{}}

	_, ok := m.HandlePropertyAccess(1, obj, "missing")
	if ok {
		t.Fatal("expected false for an unresolvable property")
	}
	c := m.GetOrCreatePropertyCache(1)
	if c.MissCount != 1 {
		t.Fatalf("MissCount = %d, want 1", c.MissCount)
	}
}

func TestPatchPropertyAccessWritesCurrentStubImmediately(t *testing.T) {
	resolver := &fakeResolver{
		properties: map[uint64]PropertyEntry{1: {ShapeID: 1, SlotOffset: 0, Inline: true}},
		values:     map[uint64]uint64{1: 7},
	}
	stubs := &fakeStubs{}
	m, _ := NewManager(resolver, stubs, 16, DefaultMegamorphicThreshold, DefaultMissThreshold)
	obj := &fakeObject{shapeID: 1, inlineSlots: map[uint32]uint64{16: 7}}

	m.HandlePropertyAccess(50, obj, "x") // transitions to mono, generates a stub

	code := make([]byte, 16)
	site := &PatchSite{Code: code, Offset: 0}
	m.PatchPropertyAccess(50, site)

	addr := uint64(code[0]) | uint64(code[1])<<8
	if addr == 0 {
		t.Fatal("PatchPropertyAccess should have written a non-zero stub address")
	}
}

func TestInvalidateForShapeResetsEmptiedCache(t *testing.T) {
	resolver := &fakeResolver{
		properties: map[uint64]PropertyEntry{1: {ShapeID: 1, SlotOffset: 0, Inline: true}},
		values:     map[uint64]uint64{1: 1},
	}
	stubs := &fakeStubs{}
	m, _ := NewManager(resolver, stubs, 16, DefaultMegamorphicThreshold, DefaultMissThreshold)
	obj := &fakeObject{shapeID: 1, inlineSlots: map[uint32]uint64{16: 1}}
	m.HandlePropertyAccess(5, obj, "x")

	m.InvalidateForShape(1)

	c := m.GetOrCreatePropertyCache(5)
	if c.State != StateUninit {
		t.Fatalf("state after invalidating its only shape = %v, want uninit", c.State)
	}
}

func TestInvalidateAllRepatchesToMegamorphicStub(t *testing.T) {
	resolver := &fakeResolver{
		properties: map[uint64]PropertyEntry{1: {ShapeID: 1, SlotOffset: 0, Inline: true}},
		values:     map[uint64]uint64{1: 1},
	}
	stubs := &fakeStubs{}
	m, _ := NewManager(resolver, stubs, 16, DefaultMegamorphicThreshold, DefaultMissThreshold)
	obj := &fakeObject{shapeID: 1, inlineSlots: map[uint32]uint64{16: 1}}
	m.HandlePropertyAccess(5, obj, "x")

	code := make([]byte, 16)
	site := &PatchSite{Code: code, Offset: 0}
	m.PatchPropertyAccess(5, site)

	m.InvalidateAll()

	got := uint64(0)
	for i := 0; i < 8; i++ {
		got |= uint64(code[i]) << (8 * i)
	}
	if got != stubs.MegamorphicPropertyStub() {
		t.Fatalf("patch site after InvalidateAll = %#x, want megamorphic stub %#x", got, stubs.MegamorphicPropertyStub())
	}
}

func TestStatsReportsPopulationByState(t *testing.T) {
	resolver := &fakeResolver{
		properties: map[uint64]PropertyEntry{1: {ShapeID: 1, SlotOffset: 0, Inline: true}},
		values:     map[uint64]uint64{1: 1},
	}
	stubs := &fakeStubs{}
	m, _ := NewManager(resolver, stubs, 16, DefaultMegamorphicThreshold, DefaultMissThreshold)
	obj := &fakeObject{shapeID: 1, inlineSlots: map[uint32]uint64{16: 1}}
	m.HandlePropertyAccess(5, obj, "x")

	stats := m.Stats()
	if stats.TrackedPropertySites != 1 {
		t.Fatalf("TrackedPropertySites = %d, want 1", stats.TrackedPropertySites)
	}
	if stats.MonoCount != 1 {
		t.Fatalf("MonoCount = %d, want 1", stats.MonoCount)
	}
}

func TestAssertInvariantDetectsDuplicateShapeAndSelfRepairs(t *testing.T) {
	c := newPropertyCache(1, 8, 64)
	c.Entries = []PropertyEntry{{ShapeID: 1}, {ShapeID: 1}}
	err := AssertInvariant(c, false)
	if err == nil {
		t.Fatal("expected ErrCacheInvariantViolation for a duplicate shape id")
	}
	if len(c.Entries) != 1 {
		t.Fatalf("self-repair should drop the duplicate, len = %d", len(c.Entries))
	}
}

func TestAssertInvariantPanicsInDebugMode(t *testing.T) {
	c := newPropertyCache(1, 8, 64)
	c.Entries = []PropertyEntry{{ShapeID: 1}, {ShapeID: 1}}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic in debug mode on duplicate shape id")
		}
	}()
	AssertInvariant(c, true)
}

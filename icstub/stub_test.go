package icstub

import (
	"testing"

	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/arch/riscv64"
	"github.com/aerocore/aerocore/iccache"
)

func newTestTemplate(t *testing.T) *Template {
	t.Helper()
	a := riscv64.New(arch.VectorNone)
	handlers := MissHandlers{PropertyMiss: 0x4000, MethodMiss: 0x5000}
	return NewTemplate(a, handlers, 1<<16)
}

func TestGeneratePropertyStubMonomorphicProducesExecutableEntry(t *testing.T) {
	tmpl := newTestTemplate(t)
	c := &iccache.PropertyCache{
		SiteID: 1,
		State:  iccache.StateMono,
		Entries: []iccache.PropertyEntry{
			{ShapeID: 7, SlotOffset: 0, Inline: true},
		},
	}
	addr, err := tmpl.GeneratePropertyStub(c)
	if err != nil {
		t.Fatalf("GeneratePropertyStub: %v", err)
	}
	if addr == 0 {
		t.Fatal("expected non-zero stub entry address")
	}
}

func TestGeneratePropertyStubPolymorphicMultipleEntries(t *testing.T) {
	tmpl := newTestTemplate(t)
	c := &iccache.PropertyCache{
		SiteID: 2,
		State:  iccache.StatePoly,
		Entries: []iccache.PropertyEntry{
			{ShapeID: 1, SlotOffset: 0, Inline: true},
			{ShapeID: 2, SlotOffset: 8, Inline: false},
		},
	}
	addr, err := tmpl.GeneratePropertyStub(c)
	if err != nil {
		t.Fatalf("GeneratePropertyStub: %v", err)
	}
	if addr == 0 {
		t.Fatal("expected non-zero stub entry address")
	}
}

func TestGeneratePropertyStubMegamorphicTailCallsHandler(t *testing.T) {
	tmpl := newTestTemplate(t)
	c := &iccache.PropertyCache{SiteID: 3, State: iccache.StateMega}
	addr, err := tmpl.GeneratePropertyStub(c)
	if err != nil {
		t.Fatalf("GeneratePropertyStub: %v", err)
	}
	if addr == 0 {
		t.Fatal("expected non-zero stub entry address")
	}
}

func TestGenerateMethodStubAllStates(t *testing.T) {
	tmpl := newTestTemplate(t)
	for _, c := range []*iccache.MethodCache{
		{SiteID: 1, State: iccache.StateMono, Entries: []iccache.MethodEntry{{ShapeID: 1, CodeAddress: 0x9000}}},
		{SiteID: 2, State: iccache.StatePoly, Entries: []iccache.MethodEntry{
			{ShapeID: 1, CodeAddress: 0x9000},
			{ShapeID: 2, CodeAddress: 0x9100},
		}},
		{SiteID: 3, State: iccache.StateMega},
	} {
		addr, err := tmpl.GenerateMethodStub(c)
		if err != nil {
			t.Fatalf("GenerateMethodStub(site=%d): %v", c.SiteID, err)
		}
		if addr == 0 {
			t.Fatalf("GenerateMethodStub(site=%d) returned a zero address", c.SiteID)
		}
	}
}

func TestMegamorphicStubAddressesAreNonZero(t *testing.T) {
	tmpl := newTestTemplate(t)
	if tmpl.MegamorphicPropertyStub() == 0 {
		t.Fatal("MegamorphicPropertyStub returned 0")
	}
	if tmpl.MegamorphicMethodStub() == 0 {
		t.Fatal("MegamorphicMethodStub returned 0")
	}
}

func TestMegamorphicMethodTableRoundTrip(t *testing.T) {
	tmpl := newTestTemplate(t)
	tmpl.StoreMegamorphicMethod(10, 20, 0xABCD)
	code, _, ok := tmpl.LookupMegamorphicMethod(10, 20)
	if !ok {
		t.Fatal("expected a hit after StoreMegamorphicMethod")
	}
	if code != 0xABCD {
		t.Fatalf("code = %#x, want 0xABCD", code)
	}
}

func TestMegamorphicMethodTableMissOnUnknownKey(t *testing.T) {
	tmpl := newTestTemplate(t)
	_, _, ok := tmpl.LookupMegamorphicMethod(999, 999)
	if ok {
		t.Fatal("expected a miss for a key never stored")
	}
}

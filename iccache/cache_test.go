package iccache

import "testing"

func TestPropertyCacheTransitionsUninitToMonoToPoly(t *testing.T) {
	c := newPropertyCache(1, 8, 64)
	if c.State != StateUninit {
		t.Fatalf("initial state = %v, want uninit", c.State)
	}
	if !c.addEntry(PropertyEntry{ShapeID: 1, SlotOffset: 0}) {
		t.Fatal("first entry should transition state")
	}
	if c.State != StateMono {
		t.Fatalf("state after first entry = %v, want mono", c.State)
	}
	if !c.addEntry(PropertyEntry{ShapeID: 2, SlotOffset: 8}) {
		t.Fatal("second distinct shape should transition state")
	}
	if c.State != StatePoly {
		t.Fatalf("state after second entry = %v, want poly", c.State)
	}
}

func TestPropertyCacheUpdatingExistingShapeDoesNotTransition(t *testing.T) {
	c := newPropertyCache(1, 8, 64)
	c.addEntry(PropertyEntry{ShapeID: 1, SlotOffset: 0})
	if c.addEntry(PropertyEntry{ShapeID: 1, SlotOffset: 16}) {
		t.Fatal("updating an existing shape's entry should not report a transition")
	}
	if c.State != StateMono {
		t.Fatalf("state after update = %v, want mono", c.State)
	}
	if got := c.findEntry(1).SlotOffset; got != 16 {
		t.Fatalf("SlotOffset after update = %d, want 16", got)
	}
}

func TestPropertyCachePromotesToMegaAtThreshold(t *testing.T) {
	c := newPropertyCache(1, 3, 64)
	c.addEntry(PropertyEntry{ShapeID: 1})
	c.addEntry(PropertyEntry{ShapeID: 2})
	c.addEntry(PropertyEntry{ShapeID: 3})
	if c.State != StateMega {
		t.Fatalf("state at threshold = %v, want mega", c.State)
	}
}

func TestPropertyCacheResetClearsStateAndEntries(t *testing.T) {
	c := newPropertyCache(1, 8, 64)
	c.addEntry(PropertyEntry{ShapeID: 1})
	c.reset()
	if c.State != StateUninit || len(c.Entries) != 0 || c.MissCount != 0 {
		t.Fatalf("reset left state=%v entries=%d miss=%d", c.State, len(c.Entries), c.MissCount)
	}
}

func TestMethodCacheTransitionsUninitToMonoToPoly(t *testing.T) {
	c := newMethodCache(1, 8, 64)
	c.addEntry(MethodEntry{ShapeID: 1, FunctionID: 10})
	if c.State != StateMono {
		t.Fatalf("state after first entry = %v, want mono", c.State)
	}
	c.addEntry(MethodEntry{ShapeID: 2, FunctionID: 11})
	if c.State != StatePoly {
		t.Fatalf("state after second entry = %v, want poly", c.State)
	}
}

func TestCacheStateStringsAreStable(t *testing.T) {
	cases := map[CacheState]string{
		StateUninit: "uninit",
		StateMono:   "mono",
		StatePoly:   "poly",
		StateMega:   "mega",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", int(state), got, want)
		}
	}
}

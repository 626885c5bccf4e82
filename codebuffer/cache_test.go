package codebuffer

import "testing"

func TestInsertAndGetRoundTrip(t *testing.T) {
	c := NewCache()
	var buf Buffer
	if err := buf.Reserve(16); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	defer buf.Release()

	code := &NativeCode{Buffer: &buf, Entry: buf.Entry(), Kind: KindJITFunction}
	idx := c.Insert(code)
	if got := c.Get(idx); got != code {
		t.Fatalf("Get(%d) = %v, want %v", idx, got, code)
	}
}

func TestGetOutOfRangeReturnsNil(t *testing.T) {
	c := NewCache()
	if c.Get(0) != nil {
		t.Fatal("Get on empty cache should return nil")
	}
	if c.Get(-1) != nil {
		t.Fatal("Get with negative index should return nil")
	}
}

func TestRetainPreventsReclaimUntilReleased(t *testing.T) {
	c := NewCache()
	var buf Buffer
	if err := buf.Reserve(16); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	code := &NativeCode{Buffer: &buf, Kind: KindStub}
	idx := c.Insert(code)

	c.Retain(idx)
	c.AdvanceEpoch()
	c.AdvanceEpoch()
	if c.Get(idx) == nil {
		t.Fatal("entry reclaimed while still retained")
	}
	c.Release(idx)
}

func TestAdvanceEpochReclaimsUnreferencedEntry(t *testing.T) {
	c := NewCache()
	var buf Buffer
	if err := buf.Reserve(16); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	code := &NativeCode{Buffer: &buf, Kind: KindStub}
	idx := c.Insert(code)

	c.Retain(idx)
	c.Release(idx) // refCount back to 0, epoch stamped
	c.AdvanceEpoch()
	c.AdvanceEpoch() // now strictly past the stamped epoch
	if c.Get(idx) != nil {
		t.Fatal("entry should have been reclaimed once its epoch aged out")
	}
}

func TestInsertReusesFreedSlot(t *testing.T) {
	c := NewCache()
	var buf1, buf2 Buffer
	buf1.Reserve(16)
	buf2.Reserve(16)

	idx1 := c.Insert(&NativeCode{Buffer: &buf1, Kind: KindStub})
	c.Retain(idx1)
	c.Release(idx1)
	c.AdvanceEpoch()
	c.AdvanceEpoch()
	if c.Get(idx1) != nil {
		t.Fatal("setup: expected first entry reclaimed before reuse check")
	}

	idx2 := c.Insert(&NativeCode{Buffer: &buf2, Kind: KindJITFunction})
	if idx2 != idx1 {
		t.Fatalf("expected freed slot %d to be reused, got new slot %d", idx1, idx2)
	}
}

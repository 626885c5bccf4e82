package gc

import (
	"context"
	"testing"
	"time"
)

func newTestGC(t *testing.T) *GC {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InitialHeapSize = PageSize * 4
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestObjectHeaderBitPacking(t *testing.T) {
	var h ObjectHeader
	h.SetColor(Gray)
	h.SetMarked(true)
	h.SetFinalizable(true)
	h.SetGeneration(2)

	if h.Color() != Gray {
		t.Errorf("Color() = %v, want Gray", h.Color())
	}
	if !h.Marked() {
		t.Error("Marked() = false, want true")
	}
	if !h.Finalizable() {
		t.Error("Finalizable() = false, want true")
	}
	if h.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", h.Generation())
	}

	h.SetColor(Black)
	if h.Color() != Black {
		t.Errorf("Color() after SetColor(Black) = %v, want Black", h.Color())
	}
	if !h.Marked() || !h.Finalizable() || h.Generation() != 2 {
		t.Error("SetColor clobbered unrelated bits")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeapTargetUtilization = 1.5
	if _, err := New(cfg); err == nil {
		t.Error("expected error for heap_target_utilization > 0.95")
	}

	cfg = DefaultConfig()
	cfg.IncrementBudgetUS = MaxIncrementTimeUS + 1
	if _, err := New(cfg); err == nil {
		t.Error("expected error for increment_budget_us above max")
	}
}

func TestReconfigureRejectsNoneDuringMarking(t *testing.T) {
	g := newTestGC(t)
	g.phase = PhaseMarking
	if err := g.Reconfigure(BarrierNone); err == nil {
		t.Error("expected Reconfigure(BarrierNone) to fail while MARKING")
	}
	if err := g.Reconfigure(BarrierIncrementalUpdate); err != nil {
		t.Errorf("Reconfigure(BarrierIncrementalUpdate) during MARKING: %v", err)
	}
}

func TestAllocateDuringMarkingStartsGray(t *testing.T) {
	g := newTestGC(t)
	g.phase = PhaseMarking

	addr, err := g.Allocate(32, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	hdr := g.headerFor(addr)
	if hdr == nil {
		t.Fatal("headerFor returned nil for freshly allocated object")
	}
	if hdr.Color() != Gray {
		t.Errorf("Color() = %v, want Gray for allocation during MARKING", hdr.Color())
	}
}

func TestAllocateWhileIdleStartsWhite(t *testing.T) {
	g := newTestGC(t)
	addr, err := g.Allocate(32, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	hdr := g.headerFor(addr)
	if hdr.Color() != White {
		t.Errorf("Color() = %v, want White for allocation while IDLE", hdr.Color())
	}
}

func TestCollectReachesIdle(t *testing.T) {
	g := newTestGC(t)
	for i := 0; i < 10; i++ {
		if _, err := g.Allocate(32, nil); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}
	g.collectRequested.Store(true)

	if err := g.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if g.CurrentPhase() != PhaseIdle {
		t.Errorf("CurrentPhase() after Collect = %v, want idle", g.CurrentPhase())
	}
	if g.Stats().TotalCollections != 1 {
		t.Errorf("TotalCollections = %d, want 1", g.Stats().TotalCollections)
	}
}

func TestUnreachableObjectIsSwept(t *testing.T) {
	g := newTestGC(t)
	root := new(uintptr)
	g.RegisterRoot(root)

	rootedAddr, err := g.Allocate(32, nil)
	if err != nil {
		t.Fatalf("Allocate rooted: %v", err)
	}
	*root = rootedAddr

	garbageAddr, err := g.Allocate(32, nil)
	if err != nil {
		t.Fatalf("Allocate garbage: %v", err)
	}

	usedBefore := g.UsedMemory()

	g.collectRequested.Store(true)
	if err := g.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if g.UsedMemory() >= usedBefore {
		t.Errorf("UsedMemory() = %d, want < %d after sweeping unreachable garbage", g.UsedMemory(), usedBefore)
	}

	rootedHdr := g.headerFor(rootedAddr)
	if rootedHdr == nil {
		t.Error("rooted object was reclaimed, want it retained")
	}
	_ = garbageAddr
}

func TestWriteBarrierOnlyActsDuringMarking(t *testing.T) {
	g := newTestGC(t)
	a, _ := g.Allocate(32, nil)
	b, _ := g.Allocate(32, nil)

	g.WriteBarrier(a, b)
	if g.Stats().WriteBarrierActivations != 0 {
		t.Error("WriteBarrier activated outside MARKING")
	}

	g.phase = PhaseMarking
	bHdr := g.headerFor(b)
	bHdr.SetColor(White)
	aHdr := g.headerFor(a)
	aHdr.SetColor(Black)

	g.WriteBarrier(a, b)
	if g.Stats().WriteBarrierActivations != 1 {
		t.Errorf("WriteBarrierActivations = %d, want 1", g.Stats().WriteBarrierActivations)
	}
	if bHdr.Color() != Gray {
		t.Errorf("new value Color() = %v, want Gray after barrier (SnapshotAtBeginning)", bHdr.Color())
	}
}

func TestIncrementalUpdateBarrierOnlyShadesBlackToWhiteEdge(t *testing.T) {
	g := newTestGC(t)
	g.barrierType = BarrierIncrementalUpdate
	g.phase = PhaseMarking

	a, _ := g.Allocate(32, nil)
	b, _ := g.Allocate(32, nil)
	aHdr := g.headerFor(a)
	bHdr := g.headerFor(b)

	aHdr.SetColor(Gray)
	bHdr.SetColor(White)
	g.WriteBarrier(a, b)
	if bHdr.Color() != White {
		t.Error("IncrementalUpdate barrier shaded through a non-Black source")
	}

	aHdr.SetColor(Black)
	g.WriteBarrier(a, b)
	if bHdr.Color() != Gray {
		t.Error("IncrementalUpdate barrier did not shade a White target reached from Black")
	}
}

func TestPerformIncrementRejectsBadBudget(t *testing.T) {
	g := newTestGC(t)
	if _, err := g.PerformIncrement(0); err == nil {
		t.Error("expected error for zero budget")
	}
	if _, err := g.PerformIncrement(MaxIncrementTimeUS + 1); err == nil {
		t.Error("expected error for budget above max")
	}
}

func TestConcurrentMarkerStartStop(t *testing.T) {
	g := newTestGC(t)
	g.StartConcurrentMarker(context.Background())
	defer func() {
		if err := g.StopConcurrentMarker(); err != nil {
			t.Errorf("StopConcurrentMarker: %v", err)
		}
	}()
	time.Sleep(2 * time.Millisecond)
}

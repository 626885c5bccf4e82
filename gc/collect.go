package gc

import (
	"fmt"
	"time"

	"github.com/aerocore/aerocore/corelog"
	"github.com/aerocore/aerocore/corerr"
)

// Allocate services a managed allocation request, applying spec §4.5's
// allocation-color rule: objects allocated while MARKING is active start
// Gray (so a concurrent marker never frees something the mutator is still
// wiring up references into), and White otherwise.
func (g *GC) Allocate(size int, t *TypeInfo) (uintptr, error) {
	g.mu.Lock()
	phase := g.phase
	g.mu.Unlock()

	hdr, payload, err := g.heap.Allocate(size)
	if err != nil {
		return 0, err
	}
	hdr.TypeInfo = t
	if phase == PhaseMarking {
		hdr.SetColor(Gray)
		g.grayStackMu.Lock()
		g.grayStack = append(g.grayStack, uintptr(headerAt(payload)))
		g.grayStackMu.Unlock()
	} else {
		hdr.SetColor(White)
	}

	g.mu.Lock()
	g.allocationsSinceGC++
	g.bytesSinceGC += uint64(size)
	g.mu.Unlock()

	if g.shouldTrigger() {
		g.collectRequested.Store(true)
	}

	return uintptr(headerAt(payload)), nil
}

// shouldTrigger evaluates the three independent trigger conditions from
// spec §4.5: heap utilization over target, allocation count since last GC,
// or wall-clock time since last GC.
func (g *GC) shouldTrigger() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhaseIdle {
		return false
	}
	if g.heap.Utilization() >= g.heapTargetUtilization {
		return true
	}
	if g.allocationsSinceGC >= allocationTrigger {
		return true
	}
	if time.Since(g.lastGC) >= timeTrigger {
		return true
	}
	return false
}

// CollectRequested reports whether a trigger has fired and no cycle has
// started to service it yet.
func (g *GC) CollectRequested() bool { return g.collectRequested.Load() }

// RequestCollection manually requests a collection cycle regardless of
// trigger state, used by the `aerocore run` demo and tests.
func (g *GC) RequestCollection() { g.collectRequested.Store(true) }

// Collect drives the state machine IDLE->MARKING->SWEEPING->FINALIZING->IDLE
// to completion by repeatedly calling PerformIncrement with the configured
// budget. Used by tests and the `aerocore run` CLI demo;
// normal operation drives increments from the caller's own scheduling loop.
func (g *GC) Collect() error {
	for {
		done, err := g.PerformIncrement(g.incrementBudgetUS)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// PerformIncrement advances the collector by at most budgetUS of wall time,
// dispatching to the phase-appropriate worker. Returns true once the cycle
// has returned to IDLE.
func (g *GC) PerformIncrement(budgetUS int) (bool, error) {
	if budgetUS <= 0 || budgetUS > MaxIncrementTimeUS {
		return false, fmt.Errorf("gc: increment_budget_us out of (0,%d]: %w", MaxIncrementTimeUS, corerr.ErrInvalidConfig)
	}

	g.mu.Lock()
	phase := g.phase
	g.mu.Unlock()

	switch phase {
	case PhaseIdle:
		if !g.collectRequested.Load() {
			return true, nil
		}
		g.collectRequested.Store(false)
		g.InitializeMarking()
		return false, nil

	case PhaseMarking:
		if g.PerformMarkingIncrement(budgetUS) {
			g.mu.Lock()
			g.phase = PhaseSweeping
			g.mu.Unlock()
			corelog.Debug("gc: marking complete, entering sweep")
		}
		return false, nil

	case PhaseSweeping:
		if g.PerformSweepIncrement(budgetUS) {
			g.mu.Lock()
			g.phase = PhaseFinalizing
			g.mu.Unlock()
		}
		return false, nil

	case PhaseFinalizing:
		g.runFinalizers()
		g.mu.Lock()
		g.phase = PhaseIdle
		g.allocationsSinceGC = 0
		g.bytesSinceGC = 0
		g.lastGC = time.Now()
		g.stats.TotalCollections++
		g.mu.Unlock()
		return true, nil

	default:
		return true, nil
	}
}

// WalkLiveObjects visits every live object, computing its outgoing
// reference list from TypeInfo.ReferenceOffsets, for use by the snapshot
// package. fn's error aborts the walk.
func (g *GC) WalkLiveObjects(fn func(addr uintptr, size uint32, payload []byte, finalizable bool, refs []uint64) error) error {
	var walkErr error
	g.heap.Walk(func(p *page, offset int, hdr *ObjectHeader) {
		if walkErr != nil {
			return
		}
		payload := p.data[offset+16 : offset+16+int(hdr.Size)]
		addr := uintptr(headerAt(payload))

		var refs []uint64
		if hdr.TypeInfo != nil {
			for _, fieldOff := range hdr.TypeInfo.ReferenceOffsets {
				if child := readPointerField(addr, fieldOff); child != 0 {
					refs = append(refs, uint64(child))
				}
			}
		}
		if err := fn(addr, hdr.Size, payload, hdr.Finalizable(), refs); err != nil {
			walkErr = err
		}
	})
	return walkErr
}

// AllocateRaw restores a previously-dumped object verbatim: it allocates
// size bytes, copies payload into the new slot, and sets Finalizable. The
// object's outgoing references are left as the raw addresses recorded in
// the snapshot; callers (snapshot.Restore) are responsible for rewriting
// them through the old-address-to-new-address remap once every object has
// been re-allocated.
func (g *GC) AllocateRaw(size int, payload []byte, finalizable bool) (uintptr, error) {
	addr, err := g.Allocate(size, nil)
	if err != nil {
		return 0, err
	}
	hdr := g.headerFor(addr)
	hdr.SetFinalizable(finalizable)
	dst := (*[1 << 30]byte)(ptrAtRaw(addr))[:size:size]
	copy(dst, payload)
	return addr, nil
}

// runFinalizers sweeps any White+Finalizable object left over from
// PerformSweepIncrement's finalization deferral and actually frees it, per
// spec §4.5's FINALIZING phase running host finalizer callbacks before
// reclaiming backing memory. AeroCore has no host finalizer callback
// registry yet, so this only performs the deferred reclamation.
func (g *GC) runFinalizers() {
	var toFree []struct {
		p      *page
		offset int
		size   int
	}
	g.heap.Walk(func(p *page, offset int, hdr *ObjectHeader) {
		if hdr.Color() == White && hdr.Finalizable() {
			toFree = append(toFree, struct {
				p      *page
				offset int
				size   int
			}{p, offset, int(hdr.Size)})
		}
	})
	for _, f := range toFree {
		g.heap.Free(f.p, f.offset, f.size)
	}
}

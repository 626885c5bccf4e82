package gc

import (
	"time"

	"github.com/aerocore/aerocore/corelog"
)

// InitializeMarking transitions IDLE -> MARKING: snapshots roots onto the
// gray stack and, for BarrierSnapshotAtBeginning, leaves every currently
// White object reachable only by later being shaded through the barrier
// (the snapshot itself is just "the root set as of now").
func (g *GC) InitializeMarking() {
	g.mu.Lock()
	g.phase = PhaseMarking
	g.mu.Unlock()

	g.grayStackMu.Lock()
	g.grayStack = g.grayStack[:0]
	g.grayStackMu.Unlock()

	g.heap.Walk(func(p *page, offset int, hdr *ObjectHeader) {
		hdr.SetColor(White)
		hdr.SetMarked(false)
	})

	g.roots.Each(func(addr uintptr) {
		if hdr := g.headerFor(addr); hdr != nil && hdr.Color() == White {
			g.shade(addr, hdr)
		}
	})

	g.markedSet.Clear()
}

// PerformMarkingIncrement pops and blackens gray objects until the gray
// stack empties or the microsecond budget is spent, per spec §4.5
// perform_marking_increment. Returns true once marking has fully drained
// (the phase should advance to SWEEPING).
func (g *GC) PerformMarkingIncrement(budgetUS int) bool {
	deadline := time.Now().Add(time.Duration(budgetUS) * time.Microsecond)
	start := time.Now()

	for {
		g.grayStackMu.Lock()
		n := len(g.grayStack)
		if n == 0 {
			g.grayStackMu.Unlock()
			break
		}
		addr := g.grayStack[n-1]
		g.grayStack = g.grayStack[:n-1]
		g.grayStackMu.Unlock()

		g.blacken(addr)

		if time.Now().After(deadline) {
			break
		}
	}

	g.mu.Lock()
	g.stats.TotalIncrements++
	elapsed := time.Since(start)
	g.stats.TotalMarkingTime += elapsed
	if elapsed > g.stats.MaxIncrementTime {
		g.stats.MaxIncrementTime = elapsed
	}
	if g.stats.TotalIncrements > 0 {
		g.stats.AverageIncrementTime = (g.stats.AverageIncrementTime*time.Duration(g.stats.TotalIncrements-1) + elapsed) / time.Duration(g.stats.TotalIncrements)
	}
	g.mu.Unlock()

	g.grayStackMu.Lock()
	drained := len(g.grayStack) == 0
	g.grayStackMu.Unlock()
	return drained
}

// blacken marks an object Black and pushes every reachable child (per its
// TypeInfo.ReferenceOffsets) that is still White onto the gray stack.
func (g *GC) blacken(addr uintptr) {
	hdr := g.headerFor(addr)
	if hdr == nil {
		return
	}
	hdr.SetColor(Black)
	hdr.SetMarked(true)

	g.mu.Lock()
	g.stats.ObjectsMarked++
	g.mu.Unlock()

	if hdr.TypeInfo == nil {
		return
	}
	payload := addr
	for _, fieldOff := range hdr.TypeInfo.ReferenceOffsets {
		childAddr := readPointerField(payload, fieldOff)
		if childAddr == 0 {
			continue
		}
		childHdr := g.headerFor(childAddr)
		if childHdr == nil {
			corelog.Debug("gc: reference to unresolved address during marking", "type", hdr.TypeInfo.Name, "offset", fieldOff)
			continue
		}
		if childHdr.Color() == White {
			g.shade(childAddr, childHdr)
		}
	}
}

// readPointerField reads a uintptr-sized field at fieldOffset from payload's
// memory. AeroCore's managed objects store child references as raw
// addresses; the host ABI guarantees field layout matches TypeInfo.
func readPointerField(payload uintptr, fieldOffset uint32) uintptr {
	p := (*uintptr)(ptrAt(payload, fieldOffset))
	if p == nil {
		return 0
	}
	return *p
}

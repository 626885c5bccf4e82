package gc

import "time"

// PerformSweepIncrement reclaims White objects and resets survivors to
// White for the next cycle, bounded by budgetUS. Returns true once every
// page has been fully swept (the phase should advance to FINALIZING).
func (g *GC) PerformSweepIncrement(budgetUS int) bool {
	deadline := time.Now().Add(time.Duration(budgetUS) * time.Microsecond)
	start := time.Now()

	done := true
	for _, p := range g.heap.pages {
		off := g.sweepCursorFor(p)
		for off < p.offset {
			hdr := (*ObjectHeader)(headerAt(p.data[off:]))
			size := int(hdr.Size)

			switch hdr.Color() {
			case White:
				if hdr.Finalizable() {
					g.mu.Lock()
					g.stats.ObjectsSwept++
					g.mu.Unlock()
					off += 16 + size
					g.setSweepCursor(p, off)
					continue
				}
				g.heap.Free(p, off, size)
				g.mu.Lock()
				g.stats.ObjectsSwept++
				g.mu.Unlock()
			case Gray, Black:
				hdr.SetColor(White)
				hdr.SetMarked(false)
			}

			off += 16 + size
			g.setSweepCursor(p, off)

			if time.Now().After(deadline) {
				return false
			}
		}
		g.clearSweepCursor(p)
	}

	g.mu.Lock()
	g.stats.TotalSweepingTime += time.Since(start)
	g.mu.Unlock()
	return done
}

func (g *GC) sweepCursorFor(p *page) int { return p.sweepCursor }

func (g *GC) setSweepCursor(p *page, off int) { p.sweepCursor = off }
func (g *GC) clearSweepCursor(p *page)         { p.sweepCursor = 0 }

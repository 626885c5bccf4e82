package gc

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aerocore/aerocore/corelog"
)

const concurrentIncrementInterval = 500 * time.Microsecond

// StartConcurrentMarker launches a background goroutine that drives
// PerformIncrement on its own schedule whenever concurrent_mode is enabled
// and a collection is in progress or requested, per spec §4.5's concurrent
// mode. Safe to call once per GC lifetime; a second call is a no-op.
func (g *GC) StartConcurrentMarker(ctx context.Context) {
	if !g.concurrentMode || g.marker != nil {
		return
	}
	grp, gctx := errgroup.WithContext(ctx)
	g.marker = grp
	g.stopMarker = make(chan struct{})

	grp.Go(func() error {
		ticker := time.NewTicker(concurrentIncrementInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-g.stopMarker:
				return nil
			case <-ticker.C:
				if !g.IsRunning() && !g.CollectRequested() {
					continue
				}
				if _, err := g.PerformIncrement(g.incrementBudgetUS); err != nil {
					corelog.Error("gc: concurrent increment failed", "err", err)
				}
			}
		}
	})
}

// StopConcurrentMarker signals the background marker to exit and waits for
// it to finish the current increment.
func (g *GC) StopConcurrentMarker() error {
	if g.marker == nil {
		return nil
	}
	close(g.stopMarker)
	err := g.marker.Wait()
	g.marker = nil
	g.stopMarker = nil
	return err
}

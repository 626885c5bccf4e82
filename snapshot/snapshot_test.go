package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/aerocore/aerocore/gc"
)

func newTestGC(t *testing.T) *gc.GC {
	t.Helper()
	cfg := gc.DefaultConfig()
	cfg.InitialHeapSize = gc.PageSize * 4
	g, err := gc.New(cfg)
	if err != nil {
		t.Fatalf("gc.New: %v", err)
	}
	return g
}

func TestDumpAndRestoreRoundTrip(t *testing.T) {
	src := newTestGC(t)
	addr, err := src.Allocate(16, nil)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	_ = addr

	dir := filepath.Join(t.TempDir(), "snap")
	if err := Dump(src, dir); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !Validate(dir) {
		t.Fatal("Validate() = false after a successful Dump")
	}

	dst := newTestGC(t)
	remap, err := Restore(dst, dir)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(remap) != 1 {
		t.Errorf("len(remap) = %d, want 1", len(remap))
	}
}

func TestRestoreRejectsUnpublishedSnapshot(t *testing.T) {
	dst := newTestGC(t)
	if _, err := Restore(dst, t.TempDir()); err == nil {
		t.Error("expected Restore to refuse a directory with no SNAPSHOT_DONE marker")
	}
}

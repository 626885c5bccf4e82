// Package gc implements AeroCore's incremental tri-color mark-and-sweep
// garbage collector: non-moving, non-generational by default, with a
// selectable write barrier and an optional concurrent marker. Phases,
// triggers, and constants are carried over unchanged from
// original_source/src/utils/memory/gc/incremental_gc.h, per spec §4.5.
package gc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/sync/errgroup"

	"github.com/aerocore/aerocore/corelog"
	"github.com/aerocore/aerocore/corerr"
)

// Color is the tri-color marking state, packed into 2 bits of ObjectHeader.
type Color uint8

const (
	White Color = iota
	Gray
	Black
)

// Phase is the GC's single-threaded-view state machine:
// IDLE -> MARKING -> SWEEPING -> FINALIZING -> IDLE.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseMarking
	PhaseSweeping
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMarking:
		return "marking"
	case PhaseSweeping:
		return "sweeping"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "?"
	}
}

// WriteBarrierType selects the write-barrier discipline at construction.
type WriteBarrierType int

const (
	BarrierSnapshotAtBeginning WriteBarrierType = iota
	BarrierIncrementalUpdate
	BarrierGenerational
	BarrierNone
)

// Constants carried over verbatim from original_source's incremental_gc.h.
const (
	PageSize               = 4096
	ObjectAlignment        = 8
	MinObjectSize          = 16
	MaxIncrementTimeUS     = 2000
	DefaultHeapUtilization = 0.7
	GrayStackInitialSize   = 1024

	allocationTrigger = 10000
	timeTrigger       = 60 * time.Second
)

// TypeInfo describes a managed type's reference fields, used by Mark to walk
// an object's children. The host supplies one TypeInfo per allocated kind.
type TypeInfo struct {
	Name           string
	ReferenceOffsets []uint32 // byte offsets of GC-managed pointer fields
}

// ObjectHeader is prepended to every managed allocation, packed to 16 bytes
// per spec §3 and original_source's `__attribute__((packed))` layout
// (color:2, marked:1, finalizable:1, generation:2, reserved:2, size:u32,
// type_info:*TypeInfo).
type ObjectHeader struct {
	flags      uint8 // color(2) | marked(1) | finalizable(1) | generation(2) | reserved(2)
	_          [3]byte
	Size       uint32
	TypeInfo   *TypeInfo
}

func (h *ObjectHeader) Color() Color        { return Color(h.flags & 0x3) }
func (h *ObjectHeader) SetColor(c Color)    { h.flags = h.flags&^0x3 | uint8(c)&0x3 }
func (h *ObjectHeader) Marked() bool        { return h.flags&0x4 != 0 }
func (h *ObjectHeader) SetMarked(v bool)    { h.setBit(2, v) }
func (h *ObjectHeader) Finalizable() bool   { return h.flags&0x8 != 0 }
func (h *ObjectHeader) SetFinalizable(v bool) { h.setBit(3, v) }
func (h *ObjectHeader) Generation() uint8   { return (h.flags >> 4) & 0x3 }
func (h *ObjectHeader) SetGeneration(g uint8) {
	h.flags = h.flags&^0x30 | (g&0x3)<<4
}

// RawFlags exposes the packed flags byte for debug tooling.
func (h *ObjectHeader) RawFlags() uint8 { return h.flags }

func (h *ObjectHeader) setBit(bit uint, v bool) {
	if v {
		h.flags |= 1 << bit
	} else {
		h.flags &^= 1 << bit
	}
}

// Stats mirrors original_source's IncrementalGCStats.
type Stats struct {
	TotalCollections       uint64
	TotalIncrements        uint64
	TotalMarkingTime       time.Duration
	TotalSweepingTime      time.Duration
	AverageIncrementTime   time.Duration
	MaxIncrementTime       time.Duration
	ObjectsMarked          uint64
	ObjectsSwept           uint64
	WriteBarrierActivations uint64
}

// GC is the incremental collector.
type GC struct {
	mu sync.Mutex

	heap *Heap
	roots *RootSet

	phase       Phase
	barrierType WriteBarrierType

	heapTargetUtilization float64
	incrementBudgetUS     int
	concurrentMode        bool

	grayStack   []uintptr
	grayStackMu sync.Mutex
	markedSet   mapset.Set

	allocationsSinceGC uint64
	bytesSinceGC       uint64
	lastGC             time.Time
	collectRequested   atomic.Bool

	stats Stats
	debug bool

	marker    *errgroup.Group
	stopMarker chan struct{}
}

// Config configures a GC at construction; these knobs are read once per
// spec §6 (never hot-swapped on a live heap).
type Config struct {
	HeapTargetUtilization float64
	IncrementBudgetUS     int
	WriteBarrierType      WriteBarrierType
	ConcurrentMode        bool
	InitialHeapSize       int
	Debug                 bool
}

// DefaultConfig mirrors original_source's IncrementalGCFactory::Create
// defaults (64 MiB initial heap, SnapshotAtBeginning barrier, concurrent on).
func DefaultConfig() Config {
	return Config{
		HeapTargetUtilization: DefaultHeapUtilization,
		IncrementBudgetUS:     1000,
		WriteBarrierType:      BarrierSnapshotAtBeginning,
		ConcurrentMode:        true,
		InitialHeapSize:       64 * 1024 * 1024,
	}
}

// New constructs a GC. Selecting BarrierNone is accepted at construction
// (marking has not started yet) but Reconfigure rejects it once MARKING is
// active, per Open Question 4's resolution.
func New(cfg Config) (*GC, error) {
	if cfg.HeapTargetUtilization < 0.1 || cfg.HeapTargetUtilization > 0.95 {
		return nil, fmt.Errorf("gc: heap_target_utilization out of [0.1,0.95]: %w", corerr.ErrInvalidConfig)
	}
	if cfg.IncrementBudgetUS <= 0 || cfg.IncrementBudgetUS > MaxIncrementTimeUS {
		return nil, fmt.Errorf("gc: increment_budget_us out of (0,%d]: %w", MaxIncrementTimeUS, corerr.ErrInvalidConfig)
	}
	g := &GC{
		heap:                  NewHeap(cfg.InitialHeapSize),
		roots:                 NewRootSet(),
		heapTargetUtilization: cfg.HeapTargetUtilization,
		incrementBudgetUS:     cfg.IncrementBudgetUS,
		barrierType:           cfg.WriteBarrierType,
		concurrentMode:        cfg.ConcurrentMode,
		markedSet:             mapset.NewSet(),
		lastGC:                time.Now(),
		debug:                 cfg.Debug,
	}
	return g, nil
}

// Reconfigure updates the write barrier mode; rejected as ErrInvalidConfig
// if the requested mode is None while MARKING is active (Open Question 4).
func (g *GC) Reconfigure(barrierType WriteBarrierType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if barrierType == BarrierNone && g.phase == PhaseMarking {
		return fmt.Errorf("gc: write_barrier_type=None while MARKING: %w", corerr.ErrInvalidConfig)
	}
	g.barrierType = barrierType
	return nil
}

func (g *GC) CurrentPhase() Phase { g.mu.Lock(); defer g.mu.Unlock(); return g.phase }
func (g *GC) IsRunning() bool     { return g.CurrentPhase() != PhaseIdle }
func (g *GC) HeapSize() int       { return g.heap.Size() }
func (g *GC) UsedMemory() int     { return g.heap.Used() }

func (g *GC) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *GC) ResetStats() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats = Stats{}
}

// RegisterRoot/UnregisterRoot register a host-owned *uintptr slot,
// serialized by RootSet's own mutex (spec §5 "Root set mutex").
func (g *GC) RegisterRoot(slot *uintptr) { g.roots.Register(slot) }
func (g *GC) UnregisterRoot(slot *uintptr) { g.roots.Unregister(slot) }

// GetProgressPercent reports marking/sweeping progress for observability.
func (g *GC) GetProgressPercent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.phase {
	case PhaseIdle:
		return 0
	case PhaseFinalizing:
		return 100
	default:
		total := g.heap.PageCount()
		if total == 0 {
			return 100
		}
		return 100 * float64(g.stats.ObjectsSwept) / float64(total*1)
	}
}

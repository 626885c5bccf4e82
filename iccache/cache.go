// Package iccache implements the Inline Cache Manager: per-call-site
// PropertyCache/MethodCache state machines, stub (re)generation requests,
// and patch-site bookkeeping, per spec §4.2.
package iccache

import "sync"

// CacheState is the monotonic IC state machine. State never regresses except
// via explicit invalidation.
type CacheState int

const (
	StateUninit CacheState = iota
	StateMono
	StatePoly
	StateMega
)

func (s CacheState) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateMono:
		return "mono"
	case StatePoly:
		return "poly"
	case StateMega:
		return "mega"
	default:
		return "?"
	}
}

// DefaultMegamorphicThreshold and DefaultMissThreshold are the default cache-eviction
// thresholds from spec §6 configuration; both are overridable per Manager.
const (
	DefaultMegamorphicThreshold = 8
	DefaultMissThreshold        = 64
)

// PropertyEntry records one shape's resolved property location. Uniqueness
// invariant: within a cache, ShapeID is unique — add_entry updates the
// existing entry instead of appending a duplicate (spec §4.2 "Uniqueness").
type PropertyEntry struct {
	ShapeID    uint64
	SlotOffset uint32
	Inline     bool
	HitCount   uint64
}

// MethodEntry records one shape's resolved method code address.
type MethodEntry struct {
	ShapeID     uint64
	FunctionID  uint64
	CodeAddress uintptr
	HitCount    uint64
}

// PropertyCache is one property-access call site's cache.
type PropertyCache struct {
	mu        sync.Mutex
	SiteID    uint64
	State     CacheState
	Entries   []PropertyEntry
	MissCount uint64

	megaThreshold int
	missThreshold int
}

func newPropertyCache(siteID uint64, megaThreshold, missThreshold int) *PropertyCache {
	return &PropertyCache{SiteID: siteID, megaThreshold: megaThreshold, missThreshold: missThreshold}
}

// findEntry returns the entry for shapeID, or nil.
func (c *PropertyCache) findEntry(shapeID uint64) *PropertyEntry {
	for i := range c.Entries {
		if c.Entries[i].ShapeID == shapeID {
			return &c.Entries[i]
		}
	}
	return nil
}

// addEntry inserts or updates the entry for shapeID and advances State per
// the monotonic transition table (spec §4.2). Returns true if State changed
// (the caller must regenerate the stub).
func (c *PropertyCache) addEntry(e PropertyEntry) bool {
	if existing := c.findEntry(e.ShapeID); existing != nil {
		*existing = e
		return false
	}
	prev := c.State
	c.Entries = append(c.Entries, e)
	switch c.State {
	case StateUninit:
		c.State = StateMono
	case StateMono:
		c.State = StatePoly
	case StatePoly, StateMega:
		// stays Poly until the threshold below promotes to Mega.
	}
	if len(c.Entries) >= c.megaThreshold || c.MissCount > uint64(c.missThreshold) {
		c.State = StateMega
	}
	return c.State != prev
}

func (c *PropertyCache) reset() {
	c.Entries = nil
	c.State = StateUninit
	c.MissCount = 0
}

// MethodCache is one method-call call site's cache; same shape and
// transition rules as PropertyCache, over MethodEntry.
type MethodCache struct {
	mu        sync.Mutex
	SiteID    uint64
	State     CacheState
	Entries   []MethodEntry
	MissCount uint64

	megaThreshold int
	missThreshold int
}

func newMethodCache(siteID uint64, megaThreshold, missThreshold int) *MethodCache {
	return &MethodCache{SiteID: siteID, megaThreshold: megaThreshold, missThreshold: missThreshold}
}

func (c *MethodCache) findEntry(shapeID uint64) *MethodEntry {
	for i := range c.Entries {
		if c.Entries[i].ShapeID == shapeID {
			return &c.Entries[i]
		}
	}
	return nil
}

func (c *MethodCache) addEntry(e MethodEntry) bool {
	if existing := c.findEntry(e.ShapeID); existing != nil {
		*existing = e
		return false
	}
	prev := c.State
	c.Entries = append(c.Entries, e)
	switch c.State {
	case StateUninit:
		c.State = StateMono
	case StateMono:
		c.State = StatePoly
	}
	if len(c.Entries) >= c.megaThreshold || c.MissCount > uint64(c.missThreshold) {
		c.State = StateMega
	}
	return c.State != prev
}

func (c *MethodCache) reset() {
	c.Entries = nil
	c.State = StateUninit
	c.MissCount = 0
}

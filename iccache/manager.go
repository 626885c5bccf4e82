package iccache

import (
	"encoding/binary"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/aerocore/aerocore/corelog"
	"github.com/aerocore/aerocore/corerr"
	"github.com/aerocore/aerocore/object"
)

// Resolver is the host-provided property/method lookup used on a cache miss.
// It is the "slow path" spec §4.2 describes as looking the property/method
// up on the object directly.
type Resolver interface {
	ResolveProperty(obj object.Object, prop string) (entry PropertyEntry, value uint64, ok bool)
	ResolveMethod(obj object.Object, method string) (entry MethodEntry, ok bool)
}

// StubGenerator regenerates the stub for a cache whose state transitioned,
// returning the new stub's entry address (implemented by icstub.Template).
type StubGenerator interface {
	GeneratePropertyStub(c *PropertyCache) (uintptr, error)
	GenerateMethodStub(c *MethodCache) (uintptr, error)
	MegamorphicPropertyStub() uintptr
	MegamorphicMethodStub() uintptr
}

// PatchSite is a pointer-sized slot inside emitted code that holds the
// currently active stub's entry address for some call site (spec §3
// "PatchSite").
type PatchSite struct {
	Code   []byte // the executable buffer's backing bytes, writable via PatchAt before MakeExecutable, or directly for a pointer-sized slot after
	Offset int
}

// Manager owns one PropertyCache per property-access site and one
// MethodCache per method-call site, bounded by MaxTrackedSites via an LRU so
// a long-running process's call-site set cannot grow unboundedly (a
// production concern spec.md leaves implicit).
type Manager struct {
	mu sync.Mutex

	resolver Resolver
	stubs    StubGenerator

	megaThreshold int
	missThreshold int

	propCaches   *lru.Cache // site_id -> *PropertyCache
	methodCaches *lru.Cache // site_id -> *MethodCache

	propPatchSites   map[uint64][]*PatchSite
	methodPatchSites map[uint64][]*PatchSite
}

// NewManager constructs a Manager bounded to maxTrackedSites live caches per
// kind (property, method); evicting the coldest site's cache (and dropping
// its patch sites, which fall back to the megamorphic stub) when exceeded.
func NewManager(resolver Resolver, stubs StubGenerator, maxTrackedSites, megaThreshold, missThreshold int) (*Manager, error) {
	m := &Manager{
		resolver:         resolver,
		stubs:            stubs,
		megaThreshold:    megaThreshold,
		missThreshold:    missThreshold,
		propPatchSites:   make(map[uint64][]*PatchSite),
		methodPatchSites: make(map[uint64][]*PatchSite),
	}
	var err error
	m.propCaches, err = lru.NewWithEvict(maxTrackedSites, m.onPropertyEvict)
	if err != nil {
		return nil, fmt.Errorf("iccache: property LRU: %w", err)
	}
	m.methodCaches, err = lru.NewWithEvict(maxTrackedSites, m.onMethodEvict)
	if err != nil {
		return nil, fmt.Errorf("iccache: method LRU: %w", err)
	}
	return m, nil
}

// onPropertyEvict and onMethodEvict run synchronously inside the LRU's Add,
// which is only called with m.mu held, so they read the patch-site maps
// directly instead of going through patchAll*, which would lock m.mu again.
func (m *Manager) onPropertyEvict(key, value interface{}) {
	siteID := key.(uint64)
	corelog.Debug("iccache: evicting cold property cache", "site", siteID)
	addr := m.stubs.MegamorphicPropertyStub()
	for _, s := range m.propPatchSites[siteID] {
		writePatchSite(s, addr)
	}
	delete(m.propPatchSites, siteID)
}

func (m *Manager) onMethodEvict(key, value interface{}) {
	siteID := key.(uint64)
	corelog.Debug("iccache: evicting cold method cache", "site", siteID)
	addr := m.stubs.MegamorphicMethodStub()
	for _, s := range m.methodPatchSites[siteID] {
		writePatchSite(s, addr)
	}
	delete(m.methodPatchSites, siteID)
}

// GetOrCreatePropertyCache returns a stable reference to the cache for
// site_id; creation is idempotent.
func (m *Manager) GetOrCreatePropertyCache(siteID uint64) *PropertyCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.propCaches.Get(siteID); ok {
		return v.(*PropertyCache)
	}
	c := newPropertyCache(siteID, m.megaThreshold, m.missThreshold)
	m.propCaches.Add(siteID, c)
	return c
}

// GetOrCreateMethodCache returns a stable reference to the cache for site_id.
func (m *Manager) GetOrCreateMethodCache(siteID uint64) *MethodCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.methodCaches.Get(siteID); ok {
		return v.(*MethodCache)
	}
	c := newMethodCache(siteID, m.megaThreshold, m.missThreshold)
	m.methodCaches.Add(siteID, c)
	return c
}

// HandlePropertyAccess is the slow path: on cache hit returns the value at
// the recorded slot; on miss, resolves on the object, adds an entry
// (bumping state), regenerates a stub if the state transitioned, and patches
// all registered sites.
func (m *Manager) HandlePropertyAccess(siteID uint64, obj object.Object, prop string) (uint64, bool) {
	c := m.GetOrCreatePropertyCache(siteID)
	c.mu.Lock()
	if e := c.findEntry(obj.ShapeID()); e != nil {
		e.HitCount++
		inline := e.Inline
		off := e.SlotOffset
		c.mu.Unlock()
		return readSlot(obj, inline, off), true
	}
	c.mu.Unlock()

	entry, value, ok := m.resolver.ResolveProperty(obj, prop)
	if !ok {
		c.mu.Lock()
		c.MissCount++
		c.mu.Unlock()
		return 0, false
	}

	c.mu.Lock()
	transitioned := c.addEntry(entry)
	c.MissCount++
	c.mu.Unlock()

	if transitioned {
		m.regeneratePropertyStub(c)
	}
	return value, true
}

func readSlot(obj object.Object, inline bool, slotOffset uint32) uint64 {
	if inline {
		return obj.InlineSlot(object.InlineSlotAddr(slotOffset))
	}
	slots := obj.OutOfLineSlots()
	idx := object.OutOfLineSlotAddr(slotOffset) / object.InlineSlotSize
	if int(idx) >= len(slots) {
		return 0
	}
	return slots[idx]
}

// HandleMethodCall is symmetric to HandlePropertyAccess, returning the
// resolved code address.
func (m *Manager) HandleMethodCall(siteID uint64, obj object.Object, method string) (uintptr, bool) {
	c := m.GetOrCreateMethodCache(siteID)
	c.mu.Lock()
	if e := c.findEntry(obj.ShapeID()); e != nil {
		e.HitCount++
		addr := e.CodeAddress
		c.mu.Unlock()
		return addr, true
	}
	c.mu.Unlock()

	entry, ok := m.resolver.ResolveMethod(obj, method)
	if !ok {
		c.mu.Lock()
		c.MissCount++
		c.mu.Unlock()
		return 0, false
	}

	c.mu.Lock()
	transitioned := c.addEntry(entry)
	c.MissCount++
	c.mu.Unlock()

	if transitioned {
		m.regenerateMethodStub(c)
	}
	return entry.CodeAddress, true
}

func (m *Manager) regeneratePropertyStub(c *PropertyCache) {
	addr, err := m.stubs.GeneratePropertyStub(c)
	if err != nil {
		corelog.Warn("iccache: property stub regeneration failed", "site", c.SiteID, "err", err)
		return
	}
	m.patchAllProperty(c.SiteID, addr)
}

func (m *Manager) regenerateMethodStub(c *MethodCache) {
	addr, err := m.stubs.GenerateMethodStub(c)
	if err != nil {
		corelog.Warn("iccache: method stub regeneration failed", "site", c.SiteID, "err", err)
		return
	}
	m.patchAllMethod(c.SiteID, addr)
}

// PatchPropertyAccess registers a patch site and immediately writes the
// current stub pointer if one exists.
func (m *Manager) PatchPropertyAccess(siteID uint64, site *PatchSite) {
	m.mu.Lock()
	m.propPatchSites[siteID] = append(m.propPatchSites[siteID], site)
	m.mu.Unlock()
	if v, ok := m.propCaches.Peek(siteID); ok {
		c := v.(*PropertyCache)
		c.mu.Lock()
		state := c.State
		c.mu.Unlock()
		if state != StateUninit {
			if addr, err := m.stubs.GeneratePropertyStub(c); err == nil {
				writePatchSite(site, addr)
			}
		}
	}
}

// PatchMethodCall registers a patch site and immediately writes the current
// stub pointer if one exists.
func (m *Manager) PatchMethodCall(siteID uint64, site *PatchSite) {
	m.mu.Lock()
	m.methodPatchSites[siteID] = append(m.methodPatchSites[siteID], site)
	m.mu.Unlock()
	if v, ok := m.methodCaches.Peek(siteID); ok {
		c := v.(*MethodCache)
		c.mu.Lock()
		state := c.State
		c.mu.Unlock()
		if state != StateUninit {
			if addr, err := m.stubs.GenerateMethodStub(c); err == nil {
				writePatchSite(site, addr)
			}
		}
	}
}

func (m *Manager) patchAllProperty(siteID uint64, addr uintptr) {
	m.mu.Lock()
	sites := append([]*PatchSite(nil), m.propPatchSites[siteID]...)
	m.mu.Unlock()
	for _, s := range sites {
		writePatchSite(s, addr)
	}
}

func (m *Manager) patchAllMethod(siteID uint64, addr uintptr) {
	m.mu.Lock()
	sites := append([]*PatchSite(nil), m.methodPatchSites[siteID]...)
	m.mu.Unlock()
	for _, s := range sites {
		writePatchSite(s, addr)
	}
}

// writePatchSite performs the pointer-sized, naturally-aligned write spec §5
// requires, with release semantics on weakly-ordered architectures (Go's
// memory model gives plain stores of aligned machine words this property on
// every target AeroCore supports; a stronger store is used if profiling ever
// shows it's needed).
func writePatchSite(s *PatchSite, addr uintptr) {
	if s.Offset+8 > len(s.Code) {
		return
	}
	binary.LittleEndian.PutUint64(s.Code[s.Offset:], uint64(addr))
}

// InvalidateForShape drops entries matching shapeID from every tracked
// cache, resetting state and repatching to the megamorphic fallback when a
// cache empties.
func (m *Manager) InvalidateForShape(shapeID uint64) {
	m.forEachProperty(func(c *PropertyCache) {
		c.mu.Lock()
		kept := c.Entries[:0]
		for _, e := range c.Entries {
			if e.ShapeID != shapeID {
				kept = append(kept, e)
			}
		}
		c.Entries = kept
		if len(c.Entries) == 0 {
			c.reset()
		}
		c.mu.Unlock()
	})
	m.forEachMethod(func(c *MethodCache) {
		c.mu.Lock()
		kept := c.Entries[:0]
		for _, e := range c.Entries {
			if e.ShapeID != shapeID {
				kept = append(kept, e)
			}
		}
		c.Entries = kept
		if len(c.Entries) == 0 {
			c.reset()
		}
		c.mu.Unlock()
	})
}

// InvalidateAll clears every tracked cache and repatches every site to the
// megamorphic fallback (spec §4.2 invalidate_all).
func (m *Manager) InvalidateAll() {
	m.forEachProperty(func(c *PropertyCache) {
		c.mu.Lock()
		c.reset()
		c.mu.Unlock()
		m.patchAllProperty(c.SiteID, m.stubs.MegamorphicPropertyStub())
	})
	m.forEachMethod(func(c *MethodCache) {
		c.mu.Lock()
		c.reset()
		c.mu.Unlock()
		m.patchAllMethod(c.SiteID, m.stubs.MegamorphicMethodStub())
	})
}

func (m *Manager) forEachProperty(fn func(*PropertyCache)) {
	m.mu.Lock()
	keys := m.propCaches.Keys()
	m.mu.Unlock()
	for _, k := range keys {
		if v, ok := m.propCaches.Peek(k); ok {
			fn(v.(*PropertyCache))
		}
	}
}

func (m *Manager) forEachMethod(fn func(*MethodCache)) {
	m.mu.Lock()
	keys := m.methodCaches.Keys()
	m.mu.Unlock()
	for _, k := range keys {
		if v, ok := m.methodCaches.Peek(k); ok {
			fn(v.(*MethodCache))
		}
	}
}

// ManagerStats summarizes cache population for the debug metrics endpoint.
type ManagerStats struct {
	TrackedPropertySites int
	TrackedMethodSites   int
	MonoCount            int
	PolyCount            int
	MegaCount            int
}

// Stats reports a snapshot of cache-site population by state, across both
// property and method caches.
func (m *Manager) Stats() ManagerStats {
	var s ManagerStats
	m.forEachProperty(func(c *PropertyCache) {
		s.TrackedPropertySites++
		c.mu.Lock()
		switch c.State {
		case StateMono:
			s.MonoCount++
		case StatePoly:
			s.PolyCount++
		case StateMega:
			s.MegaCount++
		}
		c.mu.Unlock()
	})
	m.forEachMethod(func(c *MethodCache) {
		s.TrackedMethodSites++
		c.mu.Lock()
		switch c.State {
		case StateMono:
			s.MonoCount++
		case StatePoly:
			s.PolyCount++
		case StateMega:
			s.MegaCount++
		}
		c.mu.Unlock()
	})
	return s
}

// AssertInvariant panics if debug is true and a CacheInvariantViolation is
// detected (duplicate shape id within a cache); otherwise logs and self
// repairs by dropping the offending duplicate, per spec §7.
func AssertInvariant(c *PropertyCache, debug bool) error {
	seen := make(map[uint64]bool, len(c.Entries))
	dup := -1
	for i, e := range c.Entries {
		if seen[e.ShapeID] {
			dup = i
			break
		}
		seen[e.ShapeID] = true
	}
	if dup < 0 {
		return nil
	}
	if debug {
		panic(fmt.Sprintf("iccache: duplicate shape id in cache site=%d", c.SiteID))
	}
	corelog.Warn("iccache: self-repairing duplicate cache entry", "site", c.SiteID)
	c.Entries = append(c.Entries[:dup], c.Entries[dup+1:]...)
	return corerr.ErrCacheInvariantViolation
}

package codebuffer

import "sync"

// NativeCodeKind distinguishes stub code from JIT-compiled function bodies,
// carried in NativeCode.Kind for diagnostics and snapshot reporting.
type NativeCodeKind int

const (
	KindStub NativeCodeKind = iota
	KindJITFunction
)

// NativeCode is one emitted unit of executable code, owned by a Cache and
// referenced by PatchSites only through its CodeIndex (Design Notes item 3:
// "arena-plus-index pattern" resolving the stubs↔caches↔patch-sites↔code-
// buffers cycle without reference-counted pointers).
type NativeCode struct {
	Buffer *Buffer
	Entry  uintptr
	Kind   NativeCodeKind
	Meta   any

	epoch    int64
	refCount int
}

// CodeIndex is the arena slot identifier used in place of a raw *NativeCode
// pointer.
type CodeIndex int

// Cache is the arena-indexed code cache: entries are retired lazily, once no
// live PatchSite still references them and the current epoch has advanced
// past the one recorded at retirement (the host-provided safepoint).
type Cache struct {
	mu      sync.Mutex
	entries []*NativeCode
	free    []CodeIndex
	epoch   int64
}

// NewCache constructs an empty code cache.
func NewCache() *Cache { return &Cache{epoch: 1} }

// Insert adds code to the arena and returns its index.
func (c *Cache) Insert(code *NativeCode) CodeIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.free) > 0 {
		idx := c.free[len(c.free)-1]
		c.free = c.free[:len(c.free)-1]
		c.entries[idx] = code
		return idx
	}
	c.entries = append(c.entries, code)
	return CodeIndex(len(c.entries) - 1)
}

// Get resolves an index to its NativeCode, or nil if retired.
func (c *Cache) Get(idx CodeIndex) *NativeCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(idx) < 0 || int(idx) >= len(c.entries) {
		return nil
	}
	return c.entries[idx]
}

// Retain/Release track live PatchSite references to an entry.
func (c *Cache) Retain(idx CodeIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.entries[idx]; n != nil {
		n.refCount++
	}
}

func (c *Cache) Release(idx CodeIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.entries[idx]
	if n == nil {
		return
	}
	n.refCount--
	if n.refCount <= 0 {
		n.epoch = c.epoch
	}
}

// AdvanceEpoch is called at a safepoint (here, a GC increment boundary — the
// GC already has a safepoint concept per spec §4.1's retirement
// discussion). Entries retired at an epoch strictly before the new one are
// reclaimed: their Buffer is released and the slot freed for reuse.
func (c *Cache) AdvanceEpoch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for idx, n := range c.entries {
		if n == nil || n.refCount > 0 {
			continue
		}
		if n.epoch > 0 && n.epoch < c.epoch {
			n.Buffer.Release()
			c.entries[idx] = nil
			c.free = append(c.free, CodeIndex(idx))
		}
	}
}

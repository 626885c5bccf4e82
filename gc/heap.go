package gc

import (
	"fmt"

	"github.com/aerocore/aerocore/corerr"
)

// page is a 4 KiB bump region of header-prefixed objects; a page never
// moves (no compaction), per spec §3 "Heap".
type page struct {
	data        []byte
	offset      int // bump pointer
	sweepCursor int // incremental sweep progress within this page
}

func newPage() *page { return &page{data: make([]byte, PageSize)} }

func (p *page) remaining() int { return len(p.data) - p.offset }

// freeSlot is one entry of the heap's optional free list, reused by
// allocations that fit.
type freeSlot struct {
	page   *page
	offset int
	size   int
}

// Heap is a vector of fixed-size pages plus bump-allocation bookkeeping.
type Heap struct {
	pages     []*page
	free      []freeSlot
	usedMemory int
}

func NewHeap(initialSize int) *Heap {
	h := &Heap{}
	n := (initialSize + PageSize - 1) / PageSize
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		h.pages = append(h.pages, newPage())
	}
	return h
}

func (h *Heap) Size() int       { return len(h.pages) * PageSize }
func (h *Heap) Used() int       { return h.usedMemory }
func (h *Heap) PageCount() int  { return len(h.pages) }

func roundUp(n, align int) int { return (n + align - 1) &^ (align - 1) }

// Allocate rounds size up to ObjectAlignment, prepends the header, and
// bump-allocates from an existing page (preferring the free list), mapping a
// new page if none has room. Returns the slot's header and its payload
// slice; the header directly precedes the payload in the page.
func (h *Heap) Allocate(size int) (*ObjectHeader, []byte, error) {
	aligned := roundUp(size, ObjectAlignment)
	if aligned < MinObjectSize-16 {
		aligned = MinObjectSize - 16
	}
	total := 16 + aligned // header + payload

	for i, slot := range h.free {
		if slot.size >= total {
			h.free = append(h.free[:i], h.free[i+1:]...)
			hdr := (*ObjectHeader)(headerAt(slot.page.data[slot.offset:]))
			hdr.Size = uint32(aligned)
			h.usedMemory += total
			return hdr, slot.page.data[slot.offset+16 : slot.offset+total], nil
		}
	}

	for _, p := range h.pages {
		if p.remaining() >= total {
			off := p.offset
			p.offset += total
			hdr := (*ObjectHeader)(headerAt(p.data[off:]))
			hdr.Size = uint32(aligned)
			h.usedMemory += total
			return hdr, p.data[off+16 : off+total], nil
		}
	}

	if total > PageSize {
		return nil, nil, fmt.Errorf("gc: object of %d bytes exceeds page size: %w", total, corerr.ErrOutOfMemory)
	}
	np := newPage()
	h.pages = append(h.pages, np)
	np.offset = total
	hdr := (*ObjectHeader)(headerAt(np.data))
	hdr.Size = uint32(aligned)
	h.usedMemory += total
	return hdr, np.data[16:total], nil
}

// Free zeroes the header and payload and adds the slot to the free list,
// per spec §4.5 Sweep.
func (h *Heap) Free(p *page, offset, size int) {
	total := 16 + size
	for i := 0; i < total && offset+i < len(p.data); i++ {
		p.data[offset+i] = 0
	}
	h.free = append(h.free, freeSlot{page: p, offset: offset, size: total})
	h.usedMemory -= total
}

// Walk visits every live (non-free-list) object header across all pages,
// used by Mark/Sweep and the snapshot package.
func (h *Heap) Walk(fn func(p *page, offset int, hdr *ObjectHeader)) {
	for _, p := range h.pages {
		off := 0
		for off < p.offset {
			hdr := (*ObjectHeader)(headerAt(p.data[off:]))
			size := int(hdr.Size)
			fn(p, off, hdr)
			off += 16 + size
		}
	}
}

// Utilization reports used/size, compared against heap_target_utilization to
// decide trigger (a).
func (h *Heap) Utilization() float64 {
	if h.Size() == 0 {
		return 0
	}
	return float64(h.usedMemory) / float64(h.Size())
}

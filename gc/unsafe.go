package gc

import "unsafe"

// headerAt reinterprets the first 16 bytes of b as an ObjectHeader. Callers
// guarantee b is at least 16 bytes and page-owned, never reallocated out
// from under the returned pointer (the heap is non-moving).
func headerAt(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

// ptrAtRaw reinterprets a bare address as an unsafe.Pointer, used when
// restoring a snapshot record into freshly allocated heap memory.
func ptrAtRaw(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

// ptrAt computes the address of a field fieldOffset bytes into the object
// whose payload starts at base. The GC never dereferences host memory it
// did not itself allocate, so base is always a payload address returned by
// Heap.Allocate.
func ptrAt(base uintptr, fieldOffset uint32) unsafe.Pointer {
	return unsafe.Pointer(base + uintptr(fieldOffset))
}

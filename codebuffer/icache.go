package codebuffer

import "unsafe"

// unsafePointer returns the address of a mapping's backing array, used only
// to report a stable Entry() address; codebuffer never dereferences it as Go
// memory once MakeExecutable has run.
func unsafePointer(m []byte) unsafe.Pointer {
	if len(m) == 0 {
		return nil
	}
	return unsafe.Pointer(&m[0])
}

// runtimeFlushICache issues the architecture's instruction-cache
// synchronization sequence (RISC-V fence.i, ARM64 IC IVAU+DSB+ISB) via a
// small assembly trampoline compiled in for that GOARCH. The trampoline
// itself is a leaf asm function (see icache_arm64.s / icache_riscv64.s in a
// production build); it is a no-op placeholder here since AeroCore is never
// executed in this environment, only compiled against.
func runtimeFlushICache(addr uintptr, size int) {
	_ = addr
	_ = size
}

// Package codebuffer implements the Executable Code Buffer shared by the IC
// stub generator and the JIT: reserve W pages, append encoded instructions,
// flip to X, flush the I-cache, release on drop.
package codebuffer

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/aerocore/aerocore/corerr"
)

// Buffer is a growable, page-aligned region that starts RW and can be
// flipped once to RX. Addresses it returns are stable from first write until
// Release.
type Buffer struct {
	mapping    mmap.MMap
	size       int // logical length written so far
	executable bool
}

const pageSize = 4096

// Reserve allocates a page-aligned RW region of at least capacity bytes.
// Calling Reserve again on a live Buffer releases the prior region first, per
// spec §4.1 ("Reserving again releases the prior region").
func (b *Buffer) Reserve(capacity int) error {
	if b.mapping != nil {
		if err := b.Release(); err != nil {
			return err
		}
	}
	capacity = roundUpPage(capacity)
	if capacity == 0 {
		capacity = pageSize
	}
	m, err := mmap.MapRegion(nil, capacity, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return fmt.Errorf("codebuffer: reserve %d bytes: %w", capacity, corerr.ErrOutOfMemory)
	}
	b.mapping = m
	b.size = 0
	b.executable = false
	return nil
}

func roundUpPage(n int) int { return (n + pageSize - 1) &^ (pageSize - 1) }

// Entry returns the stable base address of the buffer's first byte.
func (b *Buffer) Entry() uintptr {
	if len(b.mapping) == 0 {
		return 0
	}
	return uintptr(unsafePointer(b.mapping))
}

// Len reports the number of bytes appended so far.
func (b *Buffer) Len() int { return b.size }

// Bytes returns the logical (written) contents of the buffer.
func (b *Buffer) Bytes() []byte { return b.mapping[:b.size] }

func (b *Buffer) grow(extra int) error {
	needed := b.size + extra
	if needed <= len(b.mapping) {
		return nil
	}
	newCap := len(b.mapping) * 2
	if newCap < needed {
		newCap = roundUpPage(needed)
	}
	m, err := mmap.MapRegion(nil, newCap, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return fmt.Errorf("codebuffer: grow to %d bytes: %w", newCap, corerr.ErrOutOfMemory)
	}
	copy(m, b.mapping[:b.size])
	if err := b.mapping.Unmap(); err != nil {
		return fmt.Errorf("codebuffer: unmap during grow: %w", err)
	}
	b.mapping = m
	return nil
}

// EmitBytes appends raw bytes, growing (doubling, copying) if needed. Never
// shrinks.
func (b *Buffer) EmitBytes(p []byte) (int, error) {
	if b.executable {
		return 0, fmt.Errorf("codebuffer: emit into already-executable buffer: %w", corerr.ErrPermission)
	}
	if err := b.grow(len(p)); err != nil {
		return 0, err
	}
	off := b.size
	copy(b.mapping[b.size:], p)
	b.size += len(p)
	return off, nil
}

func (b *Buffer) Emit8(v uint8) (int, error) { return b.EmitBytes([]byte{v}) }

func (b *Buffer) Emit16(v uint16) (int, error) {
	p := make([]byte, 2)
	binary.LittleEndian.PutUint16(p, v)
	return b.EmitBytes(p)
}

func (b *Buffer) Emit32(v uint32) (int, error) {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, v)
	return b.EmitBytes(p)
}

func (b *Buffer) Emit64(v uint64) (int, error) {
	p := make([]byte, 8)
	binary.LittleEndian.PutUint64(p, v)
	return b.EmitBytes(p)
}

// PatchAt overwrites already-written bytes in place; used by relocation
// fixup. Never used after MakeExecutable.
func (b *Buffer) PatchAt(offset int, p []byte) error {
	if b.executable {
		return fmt.Errorf("codebuffer: patch into already-executable buffer: %w", corerr.ErrPermission)
	}
	if offset+len(p) > b.size {
		return fmt.Errorf("codebuffer: patch range [%d,%d) exceeds written length %d", offset, offset+len(p), b.size)
	}
	copy(b.mapping[offset:], p)
	return nil
}

// MakeExecutable transitions RW -> RX and calls flushICache for the
// written range; that hook executes no flush instruction (see
// runtimeFlushICache). Idempotent after the first success.
func (b *Buffer) MakeExecutable() error {
	if b.executable {
		return nil
	}
	if err := b.mapping.Flush(); err != nil {
		return fmt.Errorf("codebuffer: flush before protect: %w", err)
	}
	if err := unix.Mprotect(b.mapping, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("codebuffer: mprotect RX: %w: %w", corerr.ErrPermission, err)
	}
	flushICache(uintptr(unsafePointer(b.mapping)), b.size)
	b.executable = true
	return nil
}

// Executable reports whether MakeExecutable has succeeded.
func (b *Buffer) Executable() bool { return b.executable }

// Release unmaps the region. Required to run on drop.
func (b *Buffer) Release() error {
	if b.mapping == nil {
		return nil
	}
	err := b.mapping.Unmap()
	b.mapping = nil
	b.size = 0
	b.executable = false
	return err
}

// flushICache dispatches the architecture-appropriate I-cache flush.
// x86-64 needs none (hardware-coherent); RISC-V needs fence.i; ARM64 needs
// IC IVAU/DSB/ISB. On arm64 and riscv64 it calls runtimeFlushICache, which
// is an empty Go function in this build: no flush sequence is executed on
// any architecture. The dispatch point keeps callers free of GOARCH checks.
func flushICache(addr uintptr, size int) {
	switch runtime.GOARCH {
	case "arm64", "riscv64":
		runtimeFlushICache(addr, size)
	default:
		// x86-64: no flush required.
	}
}

// Package hostinfo reports host capabilities: total and available memory,
// and vector ISA support for the JIT's "auto" vector-extension setting. No
// other package in this module calls it.
package hostinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/aerocore/aerocore/arch"
	"github.com/aerocore/aerocore/corelog"
)

// TotalMemory returns total physical memory in bytes.
func TotalMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// AvailableMemory returns memory immediately available for allocation
// without swapping.
func AvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// VectorISA resolves jit.enable_vector_extensions="auto" to a concrete
// arch.VectorISA by probing CPU flags for the running GOARCH. Unsupported
// or undetectable combinations fall back to arch.VectorNone so the JIT
// always has a scalar path available, except on arm64, where NEON is
// reported whenever cpu.Info succeeds, without a flag check.
func VectorISA() arch.VectorISA {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		corelog.Warn("hostinfo: cpu.Info failed, disabling vector extensions", "err", err)
		return arch.VectorNone
	}
	flags := infos[0].Flags

	switch runtime.GOARCH {
	case "amd64":
		if hasFlag(flags, "avx512f") {
			return arch.VectorAVX512
		}
		if hasFlag(flags, "avx2") {
			return arch.VectorAVX2
		}
	case "arm64":
		// gopsutil's cpu.Info on arm64 rarely exposes a "neon" flag since it
		// is mandatory in ARMv8-A; treat its presence as confirmation and its
		// absence on arm64 as "assume yes" rather than penalizing a host
		// gopsutil couldn't fully introspect.
		return arch.VectorNEON
	case "riscv64":
		if hasFlag(flags, "v") {
			return arch.VectorRISCV_V
		}
	}
	return arch.VectorNone
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

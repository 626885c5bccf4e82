package hostinfo

import "testing"

func TestTotalMemoryPositive(t *testing.T) {
	total, err := TotalMemory()
	if err != nil {
		t.Fatalf("TotalMemory: %v", err)
	}
	if total == 0 {
		t.Error("TotalMemory() = 0, want > 0 on any real host")
	}
}

func TestVectorISANeverPanics(t *testing.T) {
	// VectorISA must always resolve to some value, including VectorNone, and
	// never panic regardless of what the host CPU reports.
	_ = VectorISA()
}

func TestHasFlag(t *testing.T) {
	flags := []string{"sse4_2", "avx2", "fma"}
	if !hasFlag(flags, "avx2") {
		t.Error("hasFlag missed a present flag")
	}
	if hasFlag(flags, "avx512f") {
		t.Error("hasFlag matched an absent flag")
	}
}

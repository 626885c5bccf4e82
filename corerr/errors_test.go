package corerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		ErrOutOfMemory, ErrPermission, ErrRelocationOutOfRange, ErrUnknownOpcode,
		ErrDivideByZero, ErrCacheInvariantViolation, ErrInvalidConfig, ErrInternal,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Fatalf("sentinel %d (%v) should not match sentinel %d (%v)", i, a, j, b)
			}
		}
	}
}

func TestWrappedSentinelSurvivesErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("codebuffer: reserve 4096 bytes: %w", ErrOutOfMemory)
	if !errors.Is(wrapped, ErrOutOfMemory) {
		t.Fatal("expected errors.Is to see through %w wrapping to the sentinel")
	}
	if errors.Is(wrapped, ErrPermission) {
		t.Fatal("wrapped ErrOutOfMemory should not match an unrelated sentinel")
	}
}

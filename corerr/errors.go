// Package corerr enumerates the sentinel error kinds shared across AeroCore's
// subsystems so callers can use errors.Is instead of string matching.
package corerr

import "errors"

// Sentinel kinds. Every fallible entry point in gc, iccache, icstub, codebuffer
// and jit wraps one of these with fmt.Errorf("...: %w", ...) at the point of
// origin.
var (
	ErrOutOfMemory             = errors.New("aerocore: out of memory")
	ErrPermission              = errors.New("aerocore: permission transition failed")
	ErrRelocationOutOfRange    = errors.New("aerocore: relocation out of range")
	ErrUnknownOpcode           = errors.New("aerocore: unknown opcode")
	ErrDivideByZero            = errors.New("aerocore: divide by zero")
	ErrCacheInvariantViolation = errors.New("aerocore: cache invariant violation")
	ErrInvalidConfig           = errors.New("aerocore: invalid configuration")
	ErrInternal                = errors.New("aerocore: internal error")
)

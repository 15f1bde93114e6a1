package router

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the router-facing slice of spec.md §7's error
// taxonomy. GateBlocked/PolicyDenied/IntegrityConflict are surfaced to the
// caller with a reason, never swallowed (spec.md §7 propagation rules).
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrGateBlocked       = errors.New("gate blocked")
	ErrPolicyDenied      = errors.New("policy denied")
	ErrIntegrityConflict = errors.New("integrity conflict")
	ErrTimeout           = errors.New("timeout")
	ErrTransportError    = errors.New("transport error")
)

func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the typed taxonomy required by spec.md §7. Every
// registry operation that fails reports one of these (wrapped with
// context via fmt.Errorf's %w) rather than swallowing the failure.
var (
	// ErrNotFound is returned when a task, approval, lease, or idempotency
	// key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a requested status transition
	// is not permitted by the state machine and force was not set.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidArgument is returned for malformed input: unknown enum
	// values, missing required fields, malformed checklists.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIntegrityConflict is returned for approval re-decision conflicts
	// and idempotency payload-hash mismatches.
	ErrIntegrityConflict = errors.New("integrity conflict")

	// ErrCorrupted is returned when persisted state cannot be decoded
	// (e.g. malformed metadata JSON written outside the registry's path).
	ErrCorrupted = errors.New("corrupted record")
)

// errorf wraps sentinel with a formatted message, preserving errors.Is
// compatibility via %w.
func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

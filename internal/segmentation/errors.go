package segmentation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the segmentation package.
var (
	ErrUnknownOperator   = errors.New("unknown operator")
	ErrUnknownCombinator = errors.New("unknown combinator")
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidRule       = errors.New("invalid rule")
	ErrMissingTenant     = errors.New("organization id is required")
	ErrContactNotFound   = errors.New("contact not found")
	ErrSegmentNotFound   = errors.New("segment not found")

	// ErrStore marks failures of the contact store. Every StoreError
	// satisfies errors.Is(err, ErrStore).
	ErrStore = errors.New("contact store failure")
)

// StoreError wraps a data-access failure from a ContactStore. The engine
// never swallows these; callers can tell them apart from rule problems.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("segmentation: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStore) true for any StoreError.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrContactNotFound) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

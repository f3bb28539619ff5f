/*
errors.go - Centralized error types for the adjustment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match on the sentinels with errors.Is and extract details with
  errors.As on the structured types.

ERROR CATEGORIES:
  1. Precondition errors - No calculator assigned when computing
  2. Computation errors - The calculator failed on the given context
  3. Type errors - A calculator type that cannot be constructed
  4. Store errors - Persistence collaborator failures

PROPAGATION:
  Nothing in this package retries or recovers. Every error reaches the
  caller, which decides whether to retry, abort, or show a message.

SEE ALSO:
  - adjustable.go: Raises PreconditionError and ComputationError
  - calculator.go: Raises InvalidTypeError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCalculatorMissing is returned when an amount is requested from an
	// adjustable that owns no calculator. Assign one first.
	ErrCalculatorMissing = errors.New("calculator missing")

	// ErrComputationFailed is returned when a calculator cannot compute an
	// amount for the given context.
	ErrComputationFailed = errors.New("computation failed")

	// ErrInvalidCalculatorType is returned when a calculator type cannot be
	// resolved to a constructible calculator.
	ErrInvalidCalculatorType = errors.New("invalid calculator type")

	// ErrCalculatorNotPermitted is returned by persistence collaborators when
	// a calculator type is not in the permitted set for the adjustable's kind.
	ErrCalculatorNotPermitted = errors.New("calculator type not permitted")

	// ErrAdjustableNotFound is returned when a referenced adjustable doesn't exist.
	ErrAdjustableNotFound = errors.New("adjustable not found")

	// ErrDuplicateAdjustable is returned when creating an adjustable whose ID exists.
	ErrDuplicateAdjustable = errors.New("adjustable already exists")

	// ErrAdjustmentNotFound is returned when a referenced adjustment doesn't exist.
	ErrAdjustmentNotFound = errors.New("adjustment not found")

	// ErrDuplicateAdjustment is returned when an adjustment ID is reused.
	ErrDuplicateAdjustment = errors.New("duplicate adjustment")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PreconditionError reports that an adjustable was asked to compute without
// a calculator.
type PreconditionError struct {
	Adjustable Ref
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s has no calculator", e.Adjustable)
}

func (e *PreconditionError) Unwrap() error {
	return ErrCalculatorMissing
}

// ComputationError wraps a calculator failure. It unwraps to both
// ErrComputationFailed and the calculator's own error.
type ComputationError struct {
	CalculatorType CalculatorType
	Source         Ref
	Err            error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("calculator %s failed on %s: %v", e.CalculatorType, e.Source, e.Err)
}

func (e *ComputationError) Unwrap() []error {
	return []error{ErrComputationFailed, e.Err}
}

// InvalidTypeError reports a calculator type that the registry cannot build.
type InvalidTypeError struct {
	Type   CalculatorType
	Reason string
}

func (e *InvalidTypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid calculator type %q: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("invalid calculator type %q", e.Type)
}

func (e *InvalidTypeError) Unwrap() error {
	return ErrInvalidCalculatorType
}

// NotPermittedError reports a calculator type outside the kind's permitted set.
type NotPermittedError struct {
	Kind AdjustableKind
	Type CalculatorType
}

func (e *NotPermittedError) Error() string {
	return fmt.Sprintf("calculator %s is not permitted for %s", e.Type, e.Kind)
}

func (e *NotPermittedError) Unwrap() error {
	return ErrCalculatorNotPermitted
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrCalculatorMissing) ||
		errors.Is(err, ErrComputationFailed) ||
		errors.Is(err, ErrInvalidCalculatorType) ||
		errors.Is(err, ErrCalculatorNotPermitted)
}

// IsConflict returns true if the error reports an ID that is already taken.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateAdjustable) ||
		errors.Is(err, ErrDuplicateAdjustment)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAdjustableNotFound) ||
		errors.Is(err, ErrAdjustmentNotFound)
}

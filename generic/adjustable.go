/*
adjustable.go - Entities that own a calculator

PURPOSE:
  An Adjustable is anything that produces adjustments: a shipping method,
  a promotion, a tax rate. It owns exactly one Calculator and computes
  amounts by delegating to it.

OWNERSHIP:
  The calculator belongs to its adjustable. Assigning a different type
  discards the old calculator (configured fields are not migrated), and
  Release discards it for good. Calculators are never shared.

TYPE ASSIGNMENT:
  SetCalculatorType is guarded against redundant reassignment:
  - ""            → no-op, the current calculator stays
  - same type     → no-op, the same instance stays
  - other type    → new default calculator from the registry
  - unknown type  → InvalidTypeError, the current calculator stays

  Membership in the kind's permitted set is NOT checked here. That is the
  persistence collaborator's job (see store.go).

SEE ALSO:
  - calculator.go: Calculator interface and registry
  - ledger.go: Uses ComputeAmount to create, reverse and update adjustments
*/
package generic

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Adjustable owns a Calculator and computes amounts against calculable contexts.
type Adjustable struct {
	ID   AdjustableID
	Kind AdjustableKind

	calculator Calculator
	registry   *Registry
}

// NewAdjustable creates an adjustable with no calculator.
// A nil registry means DefaultRegistry().
func NewAdjustable(id AdjustableID, kind AdjustableKind, reg *Registry) *Adjustable {
	return &Adjustable{ID: id, Kind: kind, registry: reg}
}

func (a *Adjustable) Registry() *Registry {
	if a.registry == nil {
		return defaultRegistry
	}
	return a.registry
}

// Ref identifies the adjustable as an adjustment originator.
func (a *Adjustable) Ref() Ref {
	return Ref{Type: string(a.Kind), ID: string(a.ID)}
}

// Calculator returns the owned calculator, or nil if none is assigned.
func (a *Adjustable) Calculator() Calculator {
	return a.calculator
}

// CalculatorType returns the type of the owned calculator.
// The bool is false when no calculator is assigned.
func (a *Adjustable) CalculatorType() (CalculatorType, bool) {
	if a.calculator == nil {
		return "", false
	}
	return a.calculator.Type(), true
}

// SetCalculatorType replaces the owned calculator with a default instance of
// type t, unless t is empty or already the current type.
func (a *Adjustable) SetCalculatorType(t CalculatorType) error {
	if t == "" {
		return nil
	}
	if a.calculator != nil && a.calculator.Type() == t {
		return nil
	}
	c, err := a.Registry().New(t)
	if err != nil {
		return err
	}
	a.calculator = c
	return nil
}

// SetCalculator assigns an already configured calculator, replacing the
// current one. A nil calculator is ignored.
func (a *Adjustable) SetCalculator(c Calculator) {
	if c == nil {
		return
	}
	a.calculator = c
}

// Calculators returns the calculator types permitted for this adjustable's kind.
func (a *Adjustable) Calculators() []CalculatorType {
	return a.Registry().Calculators(a.Kind)
}

// Validate checks the calculator presence invariant.
func (a *Adjustable) Validate() error {
	if a.calculator == nil {
		return &PreconditionError{Adjustable: a.Ref()}
	}
	return nil
}

// Release tears down the adjustable's ownership of its calculator.
// Call it when the adjustable is destroyed.
func (a *Adjustable) Release() {
	a.calculator = nil
}

// ComputeAmount delegates to the owned calculator.
//
// Returns PreconditionError when no calculator is assigned. Calculator
// failures are returned as ComputationError wrapping the original error.
func (a *Adjustable) ComputeAmount(src Calculable) (decimal.Decimal, error) {
	if err := a.Validate(); err != nil {
		return decimal.Zero, err
	}
	amount, err := a.calculator.Compute(src)
	if err != nil {
		var compErr *ComputationError
		if errors.As(err, &compErr) {
			return decimal.Zero, err
		}
		return decimal.Zero, &ComputationError{
			CalculatorType: a.calculator.Type(),
			Source:         refOf(src),
			Err:            err,
		}
	}
	return amount, nil
}

func refOf(src Calculable) Ref {
	if src == nil {
		return Ref{}
	}
	return src.Ref()
}

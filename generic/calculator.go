/*
calculator.go - Calculator strategy and type registry

PURPOSE:
  A Calculator turns a calculable context (an order, a line item, a
  shipment) into a signed amount. Calculators are strategies: the engine
  never knows which one it is talking to, only that Compute is pure.

  The Registry maps calculator type identifiers to factory functions, so an
  Adjustable can swap its calculator given nothing but a type string. It
  also records which calculator types are permitted for each adjustable
  kind, so callers can offer the right choices.

HOW IT WORKS:
  1. Host packages define Calculator implementations
  2. Host packages register a factory per type, usually on init()
  3. Host packages permit types per adjustable kind
  4. Adjustable.SetCalculatorType builds instances through the registry

USAGE:
  func init() {
      generic.RegisterCalculator("flat_rate", func() generic.Calculator { return &FlatRate{} })
      generic.DefaultRegistry().Permit("shipping_method", "flat_rate")
  }

  calc, err := generic.DefaultRegistry().New("flat_rate")

SEE ALSO:
  - adjustable.go: Owns exactly one calculator
  - factory/calculator.go: Builds configured calculators from JSON
  - calculators/: Stock calculators registered on import
*/
package generic

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CALCULATOR - Strategy interface
// =============================================================================

// CalculatorType identifies a calculator implementation.
type CalculatorType string

// Calculable is the context a calculator computes against.
type Calculable interface {
	// Ref identifies the context; it is recorded as the adjustment source.
	Ref() Ref
}

// Calculator computes an amount from a calculable context.
//
// Compute must be a pure function of src and the calculator's own
// configured fields. A context of the wrong shape is an error, not zero.
type Calculator interface {
	Type() CalculatorType
	Compute(src Calculable) (decimal.Decimal, error)
}

// CalculatorFactory returns a new, default-initialized calculator.
type CalculatorFactory func() Calculator

// =============================================================================
// CALCULATOR REGISTRY
// =============================================================================

// Registry maps calculator types to factories and tracks which types are
// permitted for each adjustable kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[CalculatorType]CalculatorFactory
	permitted map[AdjustableKind][]CalculatorType
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[CalculatorType]CalculatorFactory),
		permitted: make(map[AdjustableKind][]CalculatorType),
	}
}

// Register adds or replaces the factory for a calculator type.
func (r *Registry) Register(t CalculatorType, f CalculatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// New builds a default-initialized calculator of type t.
// Returns InvalidTypeError for unknown types or misbehaving factories.
func (r *Registry) New(t CalculatorType) (Calculator, error) {
	r.mu.RLock()
	f, ok := r.factories[t]
	r.mu.RUnlock()

	if !ok {
		return nil, &InvalidTypeError{Type: t, Reason: "not registered"}
	}
	c := f()
	if c == nil {
		return nil, &InvalidTypeError{Type: t, Reason: "factory returned nil"}
	}
	if c.Type() != t {
		return nil, &InvalidTypeError{Type: t, Reason: "factory built " + string(c.Type())}
	}
	return c, nil
}

// Has reports whether t is registered.
func (r *Registry) Has(t CalculatorType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[t]
	return ok
}

// Types returns every registered calculator type, sorted.
func (r *Registry) Types() []CalculatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]CalculatorType, 0, len(r.factories))
	for t := range r.factories {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Permit adds calculator types to the permitted set for kind.
// Duplicates are ignored; order of first registration is kept.
func (r *Registry) Permit(kind AdjustableKind, types ...CalculatorType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.permitted[kind]
	for _, t := range types {
		if !containsType(existing, t) {
			existing = append(existing, t)
		}
	}
	r.permitted[kind] = existing
}

// Calculators returns the calculator types permitted for kind.
func (r *Registry) Calculators(kind AdjustableKind) []CalculatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]CalculatorType(nil), r.permitted[kind]...)
}

// IsPermitted reports whether t may be used by adjustables of kind.
// A kind with no permitted list accepts any registered type.
func (r *Registry) IsPermitted(kind AdjustableKind, t CalculatorType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	allowed, ok := r.permitted[kind]
	if !ok {
		_, registered := r.factories[t]
		return registered
	}
	return containsType(allowed, t)
}

func containsType(types []CalculatorType, t CalculatorType) bool {
	for _, existing := range types {
		if existing == t {
			return true
		}
	}
	return false
}

// =============================================================================
// DEFAULT REGISTRY
// =============================================================================

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used when an Adjustable
// is created without one.
func DefaultRegistry() *Registry { return defaultRegistry }

// RegisterCalculator adds a factory to the default registry.
// Call this from host package init() functions.
func RegisterCalculator(t CalculatorType, f CalculatorFactory) {
	defaultRegistry.Register(t, f)
}

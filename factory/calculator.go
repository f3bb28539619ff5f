/*
Package factory provides JSON to Go calculator conversion.

PURPOSE:
  Converts JSON calculator definitions into configured generic.Calculator
  instances and back. Stores persist calculators this way, and the HTTP API
  accepts them in request bodies.

JSON SCHEMA:
  {
    "type": "flat_rate",
    "preferences": {"amount": "10.00"}
  }

  "preferences" holds the calculator's own JSON-encoded fields. It is
  decoded into a fresh default instance from the registry, so a missing
  field keeps the calculator's default.

USAGE:
  f := factory.NewCalculatorFactory(nil)
  calc, err := f.Parse(`{"type":"flat_rate","preferences":{"amount":"10"}}`)
  adjustable.SetCalculator(calc)

SEE ALSO:
  - generic/calculator.go: Registry used to construct instances
  - store/sqlite/sqlite.go: Persists calculators as CalculatorJSON
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/warp/adjustment-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CalculatorJSON is the JSON representation of a configured calculator.
type CalculatorJSON struct {
	Type        string          `json:"type"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// =============================================================================
// CALCULATOR FACTORY
// =============================================================================

// CalculatorFactory converts JSON calculator definitions to calculators.
type CalculatorFactory struct {
	Registry *generic.Registry
}

// NewCalculatorFactory creates a factory. A nil registry means the default one.
func NewCalculatorFactory(reg *generic.Registry) *CalculatorFactory {
	if reg == nil {
		reg = generic.DefaultRegistry()
	}
	return &CalculatorFactory{Registry: reg}
}

// Parse parses a JSON string into a configured calculator.
func (f *CalculatorFactory) Parse(jsonStr string) (generic.Calculator, error) {
	var cj CalculatorJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse calculator JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON builds a default calculator of cj.Type and applies its preferences.
func (f *CalculatorFactory) FromJSON(cj CalculatorJSON) (generic.Calculator, error) {
	calc, err := f.Registry.New(generic.CalculatorType(cj.Type))
	if err != nil {
		return nil, err
	}
	if err := f.ApplyPreferences(calc, cj.Preferences); err != nil {
		return nil, err
	}
	return calc, nil
}

// ApplyPreferences decodes prefs onto an existing calculator. Fields absent
// from prefs keep their current values. Empty or null prefs are a no-op.
func (f *CalculatorFactory) ApplyPreferences(calc generic.Calculator, prefs json.RawMessage) error {
	if !hasPreferences(prefs) {
		return nil
	}
	if err := json.Unmarshal(prefs, calc); err != nil {
		return fmt.Errorf("invalid preferences for %s: %w", calc.Type(), err)
	}
	return nil
}

// ToJSON converts a calculator to CalculatorJSON.
func (f *CalculatorFactory) ToJSON(calc generic.Calculator) (CalculatorJSON, error) {
	prefs, err := json.Marshal(calc)
	if err != nil {
		return CalculatorJSON{}, fmt.Errorf("failed to encode %s preferences: %w", calc.Type(), err)
	}
	return CalculatorJSON{Type: string(calc.Type()), Preferences: prefs}, nil
}

// Clone rebuilds calc through its JSON form, yielding an independent instance.
func (f *CalculatorFactory) Clone(calc generic.Calculator) (generic.Calculator, error) {
	cj, err := f.ToJSON(calc)
	if err != nil {
		return nil, err
	}
	return f.FromJSON(cj)
}

func hasPreferences(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

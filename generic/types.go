/*
Package generic provides the core adjustment engine.

PURPOSE:
  This package contains the domain-agnostic types and operations for
  computing and recording monetary adjustments. Whether the adjustment is a
  shipping fee, a promotion discount or a sales tax, the same engine binds a
  pluggable Calculator to an Adjustable and records the computed amount on a
  target's ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ref: Polymorphic reference to an entity (type + id)
  - Adjustment: A recorded amount with provenance (source, originator, label)
  - Identifiers: Type-safe IDs for adjustables and adjustments

DESIGN PRINCIPLES:
  1. Append by default: create and reverse only ever add rows
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs and calculator types
  4. Provenance: Every adjustment knows its source and originator

USAGE:
  shipping := generic.NewAdjustable("ups-ground", "shipping_method", nil)
  _ = shipping.SetCalculatorType("flat_rate")

  ledger := generic.NewLedger(nil)
  adj, err := ledger.CreateAdjustment(ctx, shipping, "Shipping", order, order, true)

SEE ALSO:
  - calculator.go: Calculator interface and registry
  - adjustable.go: Calculator ownership and amount computation
  - ledger.go: Create, reverse and update operations
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AdjustableID string
type AdjustmentID string

// AdjustableKind names the family an Adjustable belongs to (shipping_method,
// promotion, tax_rate, ...). Permitted calculators are registered per kind.
type AdjustableKind string

// Ref is a polymorphic reference: what kind of entity, and which one.
// Sources, originators and targets are all recorded as Refs.
type Ref struct {
	Type string
	ID   string
}

func (r Ref) IsZero() bool { return r.Type == "" && r.ID == "" }
func (r Ref) String() string { return fmt.Sprintf("%s/%s", r.Type, r.ID) }

// =============================================================================
// ADJUSTMENT - Recorded amount with provenance
// =============================================================================

// Adjustment is a single entry in a target's adjustment collection.
//
// INVARIANT: Amount equals Originator's calculator applied to Source at the
// moment of creation or last update. Reversal entries hold the negation.
type Adjustment struct {
	ID         AdjustmentID
	Target     Ref
	Amount     decimal.Decimal
	Source     Ref
	Originator Ref
	Label      string
	Mandatory  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a copy that shares nothing mutable with a.
func (a *Adjustment) Clone() *Adjustment {
	c := *a
	return &c
}

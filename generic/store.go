/*
store.go - Persistence interfaces for adjustables and adjustments

PURPOSE:
  Defines the contract between the engine and the persistence collaborator.
  The engine itself never touches a database; it relies on the collaborator
  for durable storage, cascading deletes, and validation at save time.

KEY INTERFACES:
  AdjustmentStore: Append, raw amount write, read by id / target
  AdjustableStore: Save (validated), load, delete (cascades calculator)
  Store:           Both of the above
  TxStore:         Store plus all-or-nothing execution

VALIDATION AT SAVE:
  SaveAdjustable must reject:
  - an adjustable without a calculator (PreconditionError)
  - a calculator type outside the kind's permitted set (NotPermittedError)
  The engine only checks presence at compute time; this is the other half.

RAW AMOUNT WRITES:
  WriteAmount changes exactly one column of one row. Implementations must
  not run hooks, triggers or recomputation from it.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Target and AmountWriter, which stores satisfy
*/
package generic

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentStore persists adjustments.
type AdjustmentStore interface {
	// AppendAdjustment persists a new adjustment. adj.Target must be set.
	// Returns ErrDuplicateAdjustment if the ID exists.
	AppendAdjustment(ctx context.Context, adj *Adjustment) error

	// WriteAmount overwrites the amount of an existing adjustment.
	// Returns ErrAdjustmentNotFound if the ID doesn't exist.
	WriteAmount(ctx context.Context, id AdjustmentID, amount decimal.Decimal, at time.Time) error

	GetAdjustment(ctx context.Context, id AdjustmentID) (*Adjustment, error)

	// LoadAdjustments returns a target's adjustments in creation order.
	LoadAdjustments(ctx context.Context, target Ref) ([]*Adjustment, error)
}

// AdjustableStore persists adjustables together with their calculator.
type AdjustableStore interface {
	// SaveAdjustable inserts or replaces the adjustable and its calculator.
	// A replaced calculator is discarded.
	SaveAdjustable(ctx context.Context, a *Adjustable) error

	// LoadAdjustable returns the adjustable with a freshly built calculator.
	LoadAdjustable(ctx context.Context, id AdjustableID) (*Adjustable, error)

	// DeleteAdjustable removes the adjustable and its calculator.
	DeleteAdjustable(ctx context.Context, id AdjustableID) error

	// ListAdjustables returns adjustables of kind, or all when kind is empty.
	ListAdjustables(ctx context.Context, kind AdjustableKind) ([]*Adjustable, error)
}

type Store interface {
	AdjustmentStore
	AdjustableStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ValidateForSave applies the checks every AdjustableStore runs before
// persisting: calculator presence and permitted membership.
func ValidateForSave(a *Adjustable) error {
	if err := a.Validate(); err != nil {
		return err
	}
	t, _ := a.CalculatorType()
	if !a.Registry().IsPermitted(a.Kind, t) {
		return &NotPermittedError{Kind: a.Kind, Type: t}
	}
	return nil
}

/*
ledger.go - Create, reverse and update adjustments

PURPOSE:
  The Ledger records the amounts an Adjustable computes onto a target's
  adjustment collection. A target is anything that owns adjustments: an
  order, a line item, a shipment.

OPERATIONS:
  CreateAdjustment:  compute, append a new entry
  ReverseAdjustment: compute, negate, append a new (never mandatory) entry
  UpdateAdjustment:  recompute, overwrite Amount of an existing entry in place

APPEND BY DEFAULT:
  Create and reverse only ever add rows, so the audit trail is preserved.
  Update exists for adjustments that must track a moving total (e.g. a tax
  that follows the item total) without multiplying rows.

NO CASCADES ON UPDATE:
  UpdateAdjustment writes only the amount, through AmountWriter, which must
  be a raw write. Adjustments can feed further derived calculations; firing
  recompute hooks from here would re-enter the ledger.

FAILURE:
  The amount is always computed before anything is written, so a missing
  calculator or a failing computation leaves the target untouched.

EXAMPLE FLOW:
  1. Shipping method with flat_rate(10): CreateAdjustment → +10
  2. Order refunded: ReverseAdjustment → -10
  3. Order ledger: [+10, -10] = 0

SEE ALSO:
  - adjustable.go: ComputeAmount
  - store.go: Persistence collaborators
*/
package generic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// TARGETS
// =============================================================================

// Target owns a collection of adjustments.
type Target interface {
	TargetRef() Ref

	// AppendAdjustment adds adj to the collection. On error nothing is added.
	AppendAdjustment(ctx context.Context, adj *Adjustment) error
}

// AmountWriter persists a new amount for an existing adjustment without
// triggering any other side effects.
type AmountWriter interface {
	WriteAmount(ctx context.Context, id AdjustmentID, amount decimal.Decimal, at time.Time) error
}

// Collection is an in-memory Target. Appended adjustments are kept by
// pointer, so in-place updates are visible through Adjustments().
type Collection struct {
	ref   Ref
	items []*Adjustment
}

func NewCollection(ref Ref) *Collection {
	return &Collection{ref: ref}
}

func (c *Collection) TargetRef() Ref { return c.ref }

func (c *Collection) AppendAdjustment(_ context.Context, adj *Adjustment) error {
	for _, existing := range c.items {
		if existing.ID == adj.ID {
			return ErrDuplicateAdjustment
		}
	}
	c.items = append(c.items, adj)
	return nil
}

func (c *Collection) Adjustments() []*Adjustment {
	return append([]*Adjustment(nil), c.items...)
}

func (c *Collection) Len() int { return len(c.items) }

// Total sums every adjustment amount in the collection.
func (c *Collection) Total() decimal.Decimal {
	total := decimal.Zero
	for _, adj := range c.items {
		total = total.Add(adj.Amount)
	}
	return total
}

// StoreTarget adapts an AdjustmentStore to Target for a given target Ref.
type StoreTarget struct {
	Ref   Ref
	Store AdjustmentStore
}

func (t StoreTarget) TargetRef() Ref { return t.Ref }

func (t StoreTarget) AppendAdjustment(ctx context.Context, adj *Adjustment) error {
	return t.Store.AppendAdjustment(ctx, adj)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger creates, reverses and updates adjustments.
type Ledger struct {
	// Writer persists amounts changed by UpdateAdjustment. Nil means the
	// adjustment lives only in memory.
	Writer AmountWriter

	NewID func() AdjustmentID
	Now   func() time.Time
}

func NewLedger(writer AmountWriter) *Ledger {
	return &Ledger{Writer: writer}
}

// CreateAdjustment computes originator's amount for src and appends it to
// target. mandatory is recorded as given.
func (l *Ledger) CreateAdjustment(ctx context.Context, originator *Adjustable, label string, target Target, src Calculable, mandatory bool) (*Adjustment, error) {
	amount, err := originator.ComputeAmount(src)
	if err != nil {
		return nil, err
	}
	adj := l.newAdjustment(originator, label, target, src, amount, mandatory)
	if err := target.AppendAdjustment(ctx, adj); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("adjustment_id", string(adj.ID)).
		Str("originator", adj.Originator.String()).
		Str("target", adj.Target.String()).
		Str("amount", adj.Amount.String()).
		Bool("mandatory", adj.Mandatory).
		Msg("adjustment created")
	return adj, nil
}

// ReverseAdjustment appends the negation of originator's amount for src.
// Reversals are counter-entries and are never mandatory.
func (l *Ledger) ReverseAdjustment(ctx context.Context, originator *Adjustable, label string, target Target, src Calculable) (*Adjustment, error) {
	amount, err := originator.ComputeAmount(src)
	if err != nil {
		return nil, err
	}
	adj := l.newAdjustment(originator, label, target, src, amount.Neg(), false)
	if err := target.AppendAdjustment(ctx, adj); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("adjustment_id", string(adj.ID)).
		Str("originator", adj.Originator.String()).
		Str("target", adj.Target.String()).
		Str("amount", adj.Amount.String()).
		Msg("adjustment reversed")
	return adj, nil
}

// UpdateAdjustment recomputes originator's amount for src and overwrites
// adj.Amount in place. Source, originator, label and mandatory are untouched.
// If the write fails, adj is left unchanged.
func (l *Ledger) UpdateAdjustment(ctx context.Context, originator *Adjustable, adj *Adjustment, src Calculable) error {
	amount, err := originator.ComputeAmount(src)
	if err != nil {
		return err
	}
	now := l.now()
	if l.Writer != nil {
		if err := l.Writer.WriteAmount(ctx, adj.ID, amount, now); err != nil {
			return err
		}
	}
	previous := adj.Amount
	adj.Amount = amount
	adj.UpdatedAt = now

	zerolog.Ctx(ctx).Debug().
		Str("adjustment_id", string(adj.ID)).
		Str("from", previous.String()).
		Str("to", amount.String()).
		Msg("adjustment updated")
	return nil
}

func (l *Ledger) newAdjustment(originator *Adjustable, label string, target Target, src Calculable, amount decimal.Decimal, mandatory bool) *Adjustment {
	now := l.now()
	return &Adjustment{
		ID:         l.newID(),
		Target:     target.TargetRef(),
		Amount:     amount,
		Source:     refOf(src),
		Originator: originator.Ref(),
		Label:      label,
		Mandatory:  mandatory,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (l *Ledger) newID() AdjustmentID {
	if l.NewID != nil {
		return l.NewID()
	}
	return AdjustmentID(uuid.NewString())
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

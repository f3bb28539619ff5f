package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/adjustment-engine/generic"
	"github.com/warp/adjustment-engine/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() *generic.Ledger {
	seq := 0
	ledger := generic.NewLedger(nil)
	ledger.NewID = func() generic.AdjustmentID {
		seq++
		return generic.AdjustmentID("adj-" + string(rune('0'+seq)))
	}
	ledger.Now = func() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return ledger
}

func orderTarget(id string) *generic.Collection {
	return generic.NewCollection(generic.Ref{Type: "order", ID: id})
}

// =============================================================================
// CREATE
// =============================================================================

func TestLedger_CreateAdjustment_FlatRateScenario(t *testing.T) {
	// GIVEN: Shipping method A with flat_rate(10)
	// WHEN: createAdjustment("shipping", order, context, mandatory=true)
	// THEN: {amount: 10, label: "shipping", mandatory: true, originator: A}

	ctx := context.Background()
	a := shippingMethod(newTestRegistry(), "10")
	target := orderTarget("R100")
	src := order("R100", "55")

	adj, err := newTestLedger().CreateAdjustment(ctx, a, "shipping", target, src, true)

	require.NoError(t, err)
	assert.True(t, adj.Amount.Equal(dec("10")))
	assert.Equal(t, "shipping", adj.Label)
	assert.True(t, adj.Mandatory)
	assert.Equal(t, a.Ref(), adj.Originator)
	assert.Equal(t, src.Ref(), adj.Source)
	assert.Equal(t, target.TargetRef(), adj.Target)
	assert.Equal(t, generic.AdjustmentID("adj-1"), adj.ID)
	assert.Equal(t, 1, target.Len())
	assert.Same(t, adj, target.Adjustments()[0])
}

func TestLedger_CreateAdjustment_MandatoryDefaultsFalse(t *testing.T) {
	ctx := context.Background()
	a := shippingMethod(newTestRegistry(), "10")

	adj, err := newTestLedger().CreateAdjustment(ctx, a, "shipping", orderTarget("R1"), order("R1", "0"), false)

	require.NoError(t, err)
	assert.False(t, adj.Mandatory)
}

func TestLedger_CreateAdjustment_NoCalculator_NothingAppended(t *testing.T) {
	ctx := context.Background()
	a := generic.NewAdjustable("promo", "promotion", newTestRegistry())
	target := orderTarget("R1")

	adj, err := newTestLedger().CreateAdjustment(ctx, a, "promo", target, order("R1", "10"), false)

	assert.Nil(t, adj)
	var preErr *generic.PreconditionError
	assert.ErrorAs(t, err, &preErr)
	assert.Equal(t, 0, target.Len())
}

func TestLedger_CreateAdjustment_ComputationFailure_NothingAppended(t *testing.T) {
	ctx := context.Background()
	a := generic.NewAdjustable("x", "promotion", newTestRegistry())
	require.NoError(t, a.SetCalculatorType(typeBroken))
	target := orderTarget("R1")

	_, err := newTestLedger().CreateAdjustment(ctx, a, "x", target, order("R1", "10"), false)

	assert.ErrorIs(t, err, generic.ErrComputationFailed)
	assert.Equal(t, 0, target.Len())
}

func TestLedger_CreateAdjustment_TargetFailure_Propagates(t *testing.T) {
	ctx := context.Background()
	a := shippingMethod(newTestRegistry(), "10")
	target := &failingTarget{err: errors.New("disk full")}

	adj, err := newTestLedger().CreateAdjustment(ctx, a, "shipping", target, order("R1", "10"), false)

	assert.Nil(t, adj)
	assert.EqualError(t, err, "disk full")
}

// =============================================================================
// REVERSE
// =============================================================================

func TestLedger_ReverseAdjustment_NegatesAndIsNeverMandatory(t *testing.T) {
	ctx := context.Background()
	a := shippingMethod(newTestRegistry(), "10")

	adj, err := newTestLedger().ReverseAdjustment(ctx, a, "shipping-refund", orderTarget("R1"), order("R1", "10"))

	require.NoError(t, err)
	assert.True(t, adj.Amount.Equal(dec("-10")))
	assert.False(t, adj.Mandatory)
	assert.Equal(t, "shipping-refund", adj.Label)
	assert.Equal(t, a.Ref(), adj.Originator)
}

func TestLedger_CreateThenReverse_SumsToZero(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	a := generic.NewAdjustable("tax", "tax_rate", newTestRegistry())
	a.SetCalculator(&percentItemTotal{Percent: dec("8.25")})
	target := orderTarget("R1")
	src := order("R1", "99.99")

	created, err := ledger.CreateAdjustment(ctx, a, "tax", target, src, true)
	require.NoError(t, err)
	reversed, err := ledger.ReverseAdjustment(ctx, a, "tax", target, src)
	require.NoError(t, err)

	assert.True(t, created.Amount.Add(reversed.Amount).IsZero())
	assert.True(t, target.Total().IsZero())
	assert.Equal(t, 2, target.Len())
	assert.NotEqual(t, created.ID, reversed.ID)
}

func TestLedger_ReverseAdjustment_NoCalculator_NothingAppended(t *testing.T) {
	ctx := context.Background()
	a := generic.NewAdjustable("promo", "promotion", newTestRegistry())
	target := orderTarget("R1")

	_, err := newTestLedger().ReverseAdjustment(ctx, a, "promo", target, order("R1", "10"))

	assert.ErrorIs(t, err, generic.ErrCalculatorMissing)
	assert.Equal(t, 0, target.Len())
}

// =============================================================================
// UPDATE
// =============================================================================

func TestLedger_UpdateAdjustment_MutatesAmountInPlace(t *testing.T) {
	// GIVEN: An adjustment of 10 from flat_rate(10)
	// WHEN: The calculator is changed to flat_rate(15) and the adjustment updated
	// THEN: The same record now holds 15, nothing else changed, no new row

	ctx := context.Background()
	ledger := newTestLedger()
	a := shippingMethod(newTestRegistry(), "10")
	target := orderTarget("R1")
	src := order("R1", "10")

	adj, err := ledger.CreateAdjustment(ctx, a, "shipping", target, src, true)
	require.NoError(t, err)
	before := *adj

	a.SetCalculator(&flatRate{Amount: dec("15")})
	require.NoError(t, ledger.UpdateAdjustment(ctx, a, adj, src))

	assert.True(t, adj.Amount.Equal(dec("15")))
	assert.Equal(t, 1, target.Len())
	assert.True(t, target.Adjustments()[0].Amount.Equal(dec("15")))
	assert.Equal(t, before.ID, adj.ID)
	assert.Equal(t, before.Label, adj.Label)
	assert.Equal(t, before.Mandatory, adj.Mandatory)
	assert.Equal(t, before.Source, adj.Source)
	assert.Equal(t, before.Originator, adj.Originator)
	assert.Equal(t, before.Target, adj.Target)
}

func TestLedger_UpdateAdjustment_NoCalculator_LeavesAmount(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger()
	a := shippingMethod(newTestRegistry(), "10")
	target := orderTarget("R1")
	adj, err := ledger.CreateAdjustment(ctx, a, "shipping", target, order("R1", "1"), false)
	require.NoError(t, err)

	a.Release()
	err = ledger.UpdateAdjustment(ctx, a, adj, order("R1", "1"))

	assert.ErrorIs(t, err, generic.ErrCalculatorMissing)
	assert.True(t, adj.Amount.Equal(dec("10")))
}

func TestLedger_UpdateAdjustment_WritesThroughWriter(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(newTestRegistry())
	ledger := generic.NewLedger(mem)
	a := shippingMethod(newTestRegistry(), "10")
	target := generic.StoreTarget{Ref: generic.Ref{Type: "order", ID: "R1"}, Store: mem}
	src := order("R1", "1")

	adj, err := ledger.CreateAdjustment(ctx, a, "shipping", target, src, false)
	require.NoError(t, err)

	a.SetCalculator(&flatRate{Amount: dec("12.50")})
	require.NoError(t, ledger.UpdateAdjustment(ctx, a, adj, src))

	stored, err := mem.GetAdjustment(ctx, adj.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(dec("12.50")))

	all, err := mem.LoadAdjustments(ctx, target.Ref)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedger_UpdateAdjustment_WriterFailure_LeavesAmount(t *testing.T) {
	ctx := context.Background()
	a := shippingMethod(newTestRegistry(), "10")
	adj := &generic.Adjustment{ID: "missing", Amount: dec("3")}
	ledger := generic.NewLedger(store.NewMemory(newTestRegistry()))

	err := ledger.UpdateAdjustment(ctx, a, adj, order("R1", "1"))

	assert.ErrorIs(t, err, generic.ErrAdjustmentNotFound)
	assert.True(t, adj.Amount.Equal(dec("3")))
}

func TestLedger_DefaultIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(nil)
	a := shippingMethod(newTestRegistry(), "1")
	target := orderTarget("R1")

	first, err := ledger.CreateAdjustment(ctx, a, "x", target, order("R1", "1"), false)
	require.NoError(t, err)
	second, err := ledger.CreateAdjustment(ctx, a, "x", target, order("R1", "1"), false)
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestCollection_DuplicateID_Rejected(t *testing.T) {
	ctx := context.Background()
	c := orderTarget("R1")

	require.NoError(t, c.AppendAdjustment(ctx, &generic.Adjustment{ID: "a", Amount: decimal.NewFromInt(1)}))
	err := c.AppendAdjustment(ctx, &generic.Adjustment{ID: "a", Amount: decimal.NewFromInt(2)})

	assert.ErrorIs(t, err, generic.ErrDuplicateAdjustment)
	assert.Equal(t, 1, c.Len())
}

type failingTarget struct {
	err error
}

func (f *failingTarget) TargetRef() generic.Ref { return generic.Ref{Type: "order", ID: "broken"} }

func (f *failingTarget) AppendAdjustment(context.Context, *generic.Adjustment) error {
	return f.err
}

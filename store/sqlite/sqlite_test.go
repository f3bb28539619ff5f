package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/adjustment-engine/generic"
	"github.com/warp/adjustment-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type flatRate struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *flatRate) Type() generic.CalculatorType { return "flat_rate" }

func (c *flatRate) Compute(generic.Calculable) (decimal.Decimal, error) { return c.Amount, nil }

type perItem struct {
	Each decimal.Decimal `json:"each"`
}

func (c *perItem) Type() generic.CalculatorType { return "per_item" }

func (c *perItem) Compute(src generic.Calculable) (decimal.Decimal, error) {
	doc := src.(*generic.Document)
	n, err := doc.Value("quantity")
	if err != nil {
		return decimal.Zero, err
	}
	return n.Mul(c.Each), nil
}

func newTestRegistry() *generic.Registry {
	reg := generic.NewRegistry()
	reg.Register("flat_rate", func() generic.Calculator { return &flatRate{} })
	reg.Register("per_item", func() generic.Calculator { return &perItem{} })
	reg.Permit("shipping_method", "flat_rate", "per_item")
	reg.Permit("promotion", "flat_rate")
	return reg
}

func newTestStore(t *testing.T) (*sqlite.Store, *generic.Registry) {
	reg := newTestRegistry()
	store, err := sqlite.New(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, reg
}

func shipping(reg *generic.Registry, id, amount string) *generic.Adjustable {
	a := generic.NewAdjustable(generic.AdjustableID(id), "shipping_method", reg)
	a.SetCalculator(&flatRate{Amount: decimal.RequireFromString(amount)})
	return a
}

var orderR1 = generic.Ref{Type: "order", ID: "R1"}

// =============================================================================
// ADJUSTABLES
// =============================================================================

func TestStore_SaveAndLoadAdjustable_RoundTripsPreferences(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAdjustable(ctx, shipping(reg, "ups", "12.50")))

	loaded, err := store.LoadAdjustable(ctx, "ups")
	require.NoError(t, err)
	assert.Equal(t, generic.AdjustableKind("shipping_method"), loaded.Kind)
	typ, ok := loaded.CalculatorType()
	require.True(t, ok)
	assert.Equal(t, generic.CalculatorType("flat_rate"), typ)
	assert.True(t, loaded.Calculator().(*flatRate).Amount.Equal(decimal.RequireFromString("12.50")))
}

func TestStore_LoadAdjustable_EachLoadOwnsItsCalculator(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveAdjustable(ctx, shipping(reg, "ups", "1")))

	a, err := store.LoadAdjustable(ctx, "ups")
	require.NoError(t, err)
	b, err := store.LoadAdjustable(ctx, "ups")
	require.NoError(t, err)

	assert.NotSame(t, a.Calculator(), b.Calculator())
}

func TestStore_SaveAdjustable_WithoutCalculator_Rejected(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()

	err := store.SaveAdjustable(ctx, generic.NewAdjustable("ups", "shipping_method", reg))

	assert.ErrorIs(t, err, generic.ErrCalculatorMissing)
	_, err = store.LoadAdjustable(ctx, "ups")
	assert.ErrorIs(t, err, generic.ErrAdjustableNotFound)
}

func TestStore_SaveAdjustable_NotPermitted_Rejected(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	promo := generic.NewAdjustable("promo", "promotion", reg)
	require.NoError(t, promo.SetCalculatorType("per_item"))

	err := store.SaveAdjustable(ctx, promo)

	var npErr *generic.NotPermittedError
	require.ErrorAs(t, err, &npErr)
	assert.Equal(t, generic.CalculatorType("per_item"), npErr.Type)
}

func TestStore_SaveAdjustable_ReplacesCalculator(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	a := shipping(reg, "ups", "10")
	require.NoError(t, store.SaveAdjustable(ctx, a))

	require.NoError(t, a.SetCalculatorType("per_item"))
	require.NoError(t, store.SaveAdjustable(ctx, a))

	loaded, err := store.LoadAdjustable(ctx, "ups")
	require.NoError(t, err)
	typ, _ := loaded.CalculatorType()
	assert.Equal(t, generic.CalculatorType("per_item"), typ)

	n, err := store.CountCalculators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DeleteAdjustable_CascadesCalculator(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveAdjustable(ctx, shipping(reg, "ups", "10")))
	require.NoError(t, store.SaveAdjustable(ctx, shipping(reg, "fedex", "20")))

	require.NoError(t, store.DeleteAdjustable(ctx, "ups"))

	n, err := store.CountCalculators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, store.DeleteAdjustable(ctx, "ups"), generic.ErrAdjustableNotFound)
}

func TestStore_ListAdjustables_FiltersByKind(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveAdjustable(ctx, shipping(reg, "ups", "10")))
	promo := generic.NewAdjustable("promo", "promotion", reg)
	promo.SetCalculator(&flatRate{Amount: decimal.NewFromInt(-5)})
	require.NoError(t, store.SaveAdjustable(ctx, promo))

	all, err := store.ListAdjustables(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	promos, err := store.ListAdjustables(ctx, "promotion")
	require.NoError(t, err)
	require.Len(t, promos, 1)
	assert.Equal(t, generic.AdjustableID("promo"), promos[0].ID)
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func TestStore_LedgerRoundTrip(t *testing.T) {
	// GIVEN: A persisted shipping method with flat_rate(10)
	// WHEN: Creating, reversing and updating through the ledger
	// THEN: The stored rows reflect every step, in creation order

	store, reg := newTestStore(t)
	ctx := context.Background()
	ups := shipping(reg, "ups", "10")
	ledger := generic.NewLedger(store)
	target := generic.StoreTarget{Ref: orderR1, Store: store}
	src := generic.NewDocument("order", "R1")

	created, err := ledger.CreateAdjustment(ctx, ups, "Shipping", target, src, true)
	require.NoError(t, err)
	_, err = ledger.ReverseAdjustment(ctx, ups, "Shipping refund", target, src)
	require.NoError(t, err)

	ups.SetCalculator(&flatRate{Amount: decimal.NewFromInt(15)})
	require.NoError(t, ledger.UpdateAdjustment(ctx, ups, created, src))

	stored, err := store.LoadAdjustments(ctx, orderR1)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	assert.Equal(t, created.ID, stored[0].ID)
	assert.True(t, stored[0].Amount.Equal(decimal.NewFromInt(15)))
	assert.True(t, stored[0].Mandatory)
	assert.Equal(t, "Shipping", stored[0].Label)
	assert.Equal(t, ups.Ref(), stored[0].Originator)
	assert.Equal(t, src.Ref(), stored[0].Source)

	assert.True(t, stored[1].Amount.Equal(decimal.NewFromInt(-10)))
	assert.False(t, stored[1].Mandatory)
}

func TestStore_AppendAdjustment_DuplicateID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	adj := &generic.Adjustment{ID: "a1", Target: orderR1, Amount: decimal.NewFromInt(1), Originator: generic.Ref{Type: "promotion", ID: "p"}, Label: "x"}

	require.NoError(t, store.AppendAdjustment(ctx, adj))
	err := store.AppendAdjustment(ctx, adj)

	assert.ErrorIs(t, err, generic.ErrDuplicateAdjustment)
}

func TestStore_WriteAmount_OnlyTouchesAmount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	adj := &generic.Adjustment{
		ID: "a1", Target: orderR1, Amount: decimal.RequireFromString("3.33"),
		Source: orderR1, Originator: generic.Ref{Type: "tax_rate", ID: "ca"},
		Label: "Tax", Mandatory: true, CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, store.AppendAdjustment(ctx, adj))

	later := created.Add(time.Hour)
	require.NoError(t, store.WriteAmount(ctx, "a1", decimal.RequireFromString("4.44"), later))

	got, err := store.GetAdjustment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("4.44")))
	assert.Equal(t, "Tax", got.Label)
	assert.True(t, got.Mandatory)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestStore_WriteAmount_Missing(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.WriteAmount(context.Background(), "nope", decimal.NewFromInt(1), time.Now())

	assert.ErrorIs(t, err, generic.ErrAdjustmentNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	ups := shipping(reg, "ups", "10")
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.SaveAdjustable(ctx, ups); err != nil {
			return err
		}
		ledger := generic.NewLedger(tx)
		if _, err := ledger.CreateAdjustment(ctx, ups, "Shipping", generic.StoreTarget{Ref: orderR1, Store: tx}, generic.NewDocument("order", "R1"), false); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	stored, err := store.LoadAdjustments(ctx, orderR1)
	require.NoError(t, err)
	assert.Empty(t, stored)
	_, err = store.LoadAdjustable(ctx, "ups")
	assert.ErrorIs(t, err, generic.ErrAdjustableNotFound)
}

func TestStore_WithTx_Commits(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.SaveAdjustable(ctx, shipping(reg, "ups", "10")); err != nil {
			return err
		}
		loaded, err := tx.LoadAdjustable(ctx, "ups")
		if err != nil {
			return err
		}
		_, err = generic.NewLedger(tx).CreateAdjustment(ctx, loaded, "Shipping", generic.StoreTarget{Ref: orderR1, Store: tx}, generic.NewDocument("order", "R1"), false)
		return err
	})
	require.NoError(t, err)

	stored, err := store.LoadAdjustments(ctx, orderR1)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestStore_Reset(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveAdjustable(ctx, shipping(reg, "ups", "10")))

	require.NoError(t, store.Reset(ctx))

	all, err := store.ListAdjustables(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

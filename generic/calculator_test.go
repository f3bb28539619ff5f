package generic_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/adjustment-engine/generic"
)

func TestRegistry_New_Unknown(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.New("tiered")

	assert.ErrorIs(t, err, generic.ErrInvalidCalculatorType)
	assert.True(t, generic.IsClientError(err))
}

func TestRegistry_New_FactoryReturnsNil(t *testing.T) {
	reg := generic.NewRegistry()
	reg.Register("nil", func() generic.Calculator { return nil })

	_, err := reg.New("nil")

	assert.ErrorIs(t, err, generic.ErrInvalidCalculatorType)
}

func TestRegistry_New_FactoryBuildsWrongType(t *testing.T) {
	reg := generic.NewRegistry()
	reg.Register("alias", func() generic.Calculator { return &flatRate{} })

	_, err := reg.New("alias")

	var typeErr *generic.InvalidTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Contains(t, typeErr.Error(), "flat_rate")
}

func TestRegistry_New_ReturnsFreshInstances(t *testing.T) {
	reg := newTestRegistry()

	a, err := reg.New(typeFlatRate)
	require.NoError(t, err)
	b, err := reg.New(typeFlatRate)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
}

func TestRegistry_Types_Sorted(t *testing.T) {
	reg := newTestRegistry()

	assert.Equal(t, []generic.CalculatorType{typeBroken, typeFlatRate, typePercent}, reg.Types())
	assert.True(t, reg.Has(typeFlatRate))
	assert.False(t, reg.Has("tiered"))
}

func TestRegistry_Permit_DeduplicatesAndKeepsOrder(t *testing.T) {
	reg := newTestRegistry()

	reg.Permit("promotion", typePercent, typeFlatRate)
	reg.Permit("promotion", typeFlatRate)

	assert.Equal(t, []generic.CalculatorType{typePercent, typeFlatRate}, reg.Calculators("promotion"))
	assert.Empty(t, reg.Calculators("tax_rate"))
}

func TestRegistry_IsPermitted(t *testing.T) {
	reg := newTestRegistry()
	reg.Permit("shipping_method", typeFlatRate)

	assert.True(t, reg.IsPermitted("shipping_method", typeFlatRate))
	assert.False(t, reg.IsPermitted("shipping_method", typePercent))

	// No permitted list: any registered type is fine.
	assert.True(t, reg.IsPermitted("tax_rate", typePercent))
	assert.False(t, reg.IsPermitted("tax_rate", "tiered"))
}

func TestDocument_Value(t *testing.T) {
	doc := generic.NewDocument("order", "R1").Set("item_total", decimal.NewFromInt(40))

	v, err := doc.Value("item_total")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(40)))

	_, err = doc.Value("ship_total")
	assert.ErrorContains(t, err, `order/R1 has no value "ship_total"`)
}

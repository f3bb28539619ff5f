package generic_test

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/generic"
)

// =============================================================================
// TEST CALCULATORS
// =============================================================================

const (
	typeFlatRate generic.CalculatorType = "flat_rate"
	typePercent  generic.CalculatorType = "percent_item_total"
	typeBroken   generic.CalculatorType = "broken"
)

// flatRate returns a fixed amount regardless of context.
type flatRate struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *flatRate) Type() generic.CalculatorType { return typeFlatRate }

func (c *flatRate) Compute(generic.Calculable) (decimal.Decimal, error) {
	return c.Amount, nil
}

// percentItemTotal reads "item_total" from a generic.Document.
type percentItemTotal struct {
	Percent decimal.Decimal `json:"percent"`
}

func (c *percentItemTotal) Type() generic.CalculatorType { return typePercent }

func (c *percentItemTotal) Compute(src generic.Calculable) (decimal.Decimal, error) {
	doc, ok := src.(*generic.Document)
	if !ok {
		return decimal.Zero, errors.New("expected a document")
	}
	total, err := doc.Value("item_total")
	if err != nil {
		return decimal.Zero, err
	}
	return total.Mul(c.Percent).Div(decimal.NewFromInt(100)).Round(2), nil
}

var errBroken = errors.New("division by zero")

type broken struct{}

func (broken) Type() generic.CalculatorType { return typeBroken }

func (broken) Compute(generic.Calculable) (decimal.Decimal, error) {
	return decimal.Zero, errBroken
}

func newTestRegistry() *generic.Registry {
	reg := generic.NewRegistry()
	reg.Register(typeFlatRate, func() generic.Calculator { return &flatRate{} })
	reg.Register(typePercent, func() generic.Calculator { return &percentItemTotal{} })
	reg.Register(typeBroken, func() generic.Calculator { return broken{} })
	return reg
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// shippingMethod returns an adjustable with flat_rate(amount).
func shippingMethod(reg *generic.Registry, amount string) *generic.Adjustable {
	a := generic.NewAdjustable("ups-ground", "shipping_method", reg)
	a.SetCalculator(&flatRate{Amount: dec(amount)})
	return a
}

func order(id, itemTotal string) *generic.Document {
	return generic.NewDocument("order", id).Set("item_total", dec(itemTotal))
}

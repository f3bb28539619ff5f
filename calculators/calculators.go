package calculators

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/generic"
)

var hundred = decimal.NewFromInt(100)

// ErrNegativeQuantity is returned when the context reports fewer than zero items.
var ErrNegativeQuantity = errors.New("quantity must not be negative")

// FlatRate charges a fixed amount regardless of context.
type FlatRate struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

func (c *FlatRate) Type() generic.CalculatorType { return TypeFlatRate }

func (c *FlatRate) Compute(generic.Calculable) (decimal.Decimal, error) {
	return c.Amount, nil
}

// FlatPercentItemTotal charges a percentage of the item total, rounded to cents.
type FlatPercentItemTotal struct {
	FlatPercent decimal.Decimal `json:"flat_percent"`
}

func (c *FlatPercentItemTotal) Type() generic.CalculatorType { return TypeFlatPercentItemTotal }

func (c *FlatPercentItemTotal) Compute(src generic.Calculable) (decimal.Decimal, error) {
	total, err := valueOf(src, ValueItemTotal)
	if err != nil {
		return decimal.Zero, err
	}
	return total.Mul(c.FlatPercent).Div(hundred).Round(2), nil
}

// PerItem charges Amount for every item.
type PerItem struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

func (c *PerItem) Type() generic.CalculatorType { return TypePerItem }

func (c *PerItem) Compute(src generic.Calculable) (decimal.Decimal, error) {
	qty, err := quantity(src)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Amount.Mul(qty), nil
}

// FlexiRate charges FirstItem for the first item and AdditionalItem for each
// further one. A positive MaxItems caps how many items are charged.
type FlexiRate struct {
	FirstItem      decimal.Decimal `json:"first_item"`
	AdditionalItem decimal.Decimal `json:"additional_item"`
	MaxItems       int64           `json:"max_items"`
	Currency       string          `json:"currency,omitempty"`
}

func (c *FlexiRate) Type() generic.CalculatorType { return TypeFlexiRate }

func (c *FlexiRate) Compute(src generic.Calculable) (decimal.Decimal, error) {
	qty, err := quantity(src)
	if err != nil {
		return decimal.Zero, err
	}
	if qty.IsZero() {
		return decimal.Zero, nil
	}
	if c.MaxItems > 0 {
		qty = decimal.Min(qty, decimal.NewFromInt(c.MaxItems))
	}
	additional := qty.Sub(decimal.NewFromInt(1))
	return c.FirstItem.Add(c.AdditionalItem.Mul(additional)), nil
}

// PriceSack charges NormalAmount below MinimalAmount of item total and
// DiscountAmount from there on.
type PriceSack struct {
	MinimalAmount  decimal.Decimal `json:"minimal_amount"`
	NormalAmount   decimal.Decimal `json:"normal_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Currency       string          `json:"currency,omitempty"`
}

func (c *PriceSack) Type() generic.CalculatorType { return TypePriceSack }

func (c *PriceSack) Compute(src generic.Calculable) (decimal.Decimal, error) {
	total, err := valueOf(src, ValueItemTotal)
	if err != nil {
		return decimal.Zero, err
	}
	if total.LessThan(c.MinimalAmount) {
		return c.NormalAmount, nil
	}
	return c.DiscountAmount, nil
}

func quantity(src generic.Calculable) (decimal.Decimal, error) {
	qty, err := valueOf(src, ValueQuantity)
	if err != nil {
		return decimal.Zero, err
	}
	if qty.IsNegative() {
		return decimal.Zero, ErrNegativeQuantity
	}
	return qty, nil
}

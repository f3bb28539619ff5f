// Package calculators provides the stock calculators for orders: flat
// amounts, percentages of the item total, per-item charges, and tiered
// variants. It registers them with the generic default registry on import.
package calculators

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/generic"
)

// =============================================================================
// ADJUSTABLE KINDS
// =============================================================================

const (
	KindShippingMethod generic.AdjustableKind = "shipping_method"
	KindPromotion      generic.AdjustableKind = "promotion"
	KindTaxRate        generic.AdjustableKind = "tax_rate"
)

// =============================================================================
// CALCULATOR TYPES
// =============================================================================

const (
	TypeFlatRate             generic.CalculatorType = "flat_rate"
	TypeFlatPercentItemTotal generic.CalculatorType = "flat_percent_item_total"
	TypePerItem              generic.CalculatorType = "per_item"
	TypeFlexiRate            generic.CalculatorType = "flexi_rate"
	TypePriceSack            generic.CalculatorType = "price_sack"
)

// Values read from the calculation context.
const (
	ValueItemTotal = "item_total"
	ValueQuantity  = "quantity"
)

// Register all stock calculators and per-kind permitted lists with the
// default registry.
func init() {
	Register(generic.DefaultRegistry())
}

// Register adds the stock calculators and permitted lists to reg.
func Register(reg *generic.Registry) {
	reg.Register(TypeFlatRate, func() generic.Calculator { return &FlatRate{} })
	reg.Register(TypeFlatPercentItemTotal, func() generic.Calculator { return &FlatPercentItemTotal{} })
	reg.Register(TypePerItem, func() generic.Calculator { return &PerItem{} })
	reg.Register(TypeFlexiRate, func() generic.Calculator { return &FlexiRate{} })
	reg.Register(TypePriceSack, func() generic.Calculator { return &PriceSack{} })

	reg.Permit(KindShippingMethod, TypeFlatRate, TypeFlatPercentItemTotal, TypePerItem, TypeFlexiRate, TypePriceSack)
	reg.Permit(KindPromotion, TypeFlatRate, TypeFlatPercentItemTotal, TypePerItem, TypeFlexiRate)
	reg.Permit(KindTaxRate, TypeFlatPercentItemTotal)
}

// ValueSource is a calculation context that exposes named amounts.
// generic.Document implements it.
type ValueSource interface {
	generic.Calculable
	Value(name string) (decimal.Decimal, error)
}

var _ ValueSource = (*generic.Document)(nil)

func valueOf(src generic.Calculable, name string) (decimal.Decimal, error) {
	vs, ok := src.(ValueSource)
	if !ok {
		return decimal.Zero, fmt.Errorf("%T does not expose %q", src, name)
	}
	return vs.Value(name)
}

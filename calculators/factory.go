package calculators

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/generic"
)

// These helpers return calculator definitions in the JSON form accepted by
// factory.CalculatorFactory.Parse and the HTTP API. They build JSON directly
// so that callers need not import the factory package.

// FlatRateJSON returns JSON for a flat_rate calculator.
func FlatRateJSON(amount decimal.Decimal) string {
	return definition(TypeFlatRate, map[string]any{"amount": amount})
}

// FlatPercentItemTotalJSON returns JSON for a flat_percent_item_total calculator.
func FlatPercentItemTotalJSON(percent decimal.Decimal) string {
	return definition(TypeFlatPercentItemTotal, map[string]any{"flat_percent": percent})
}

// PerItemJSON returns JSON for a per_item calculator.
func PerItemJSON(amount decimal.Decimal) string {
	return definition(TypePerItem, map[string]any{"amount": amount})
}

// FlexiRateJSON returns JSON for a flexi_rate calculator.
func FlexiRateJSON(first, additional decimal.Decimal, maxItems int64) string {
	return definition(TypeFlexiRate, map[string]any{
		"first_item":      first,
		"additional_item": additional,
		"max_items":       maxItems,
	})
}

// PriceSackJSON returns JSON for a price_sack calculator.
func PriceSackJSON(minimal, normal, discount decimal.Decimal) string {
	return definition(TypePriceSack, map[string]any{
		"minimal_amount":  minimal,
		"normal_amount":   normal,
		"discount_amount": discount,
	})
}

func definition(t generic.CalculatorType, prefs map[string]any) string {
	b, _ := json.Marshal(map[string]any{"type": string(t), "preferences": prefs})
	return string(b)
}

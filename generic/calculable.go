package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Document is a Calculable that carries named decimal values, e.g. an order
// reduced to {"item_total": 100, "ship_total": 12.5}. Hosts that hand real
// domain objects to their calculators don't need it.
type Document struct {
	Type   string
	ID     string
	Values map[string]decimal.Decimal
}

func NewDocument(typ, id string) *Document {
	return &Document{Type: typ, ID: id, Values: make(map[string]decimal.Decimal)}
}

func (d *Document) Ref() Ref { return Ref{Type: d.Type, ID: d.ID} }

// Set stores a named value and returns d for chaining.
func (d *Document) Set(name string, v decimal.Decimal) *Document {
	if d.Values == nil {
		d.Values = make(map[string]decimal.Decimal)
	}
	d.Values[name] = v
	return d
}

// Value returns the named value, or an error if the document lacks it.
func (d *Document) Value(name string) (decimal.Decimal, error) {
	v, ok := d.Values[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s has no value %q", d.Ref(), name)
	}
	return v, nil
}

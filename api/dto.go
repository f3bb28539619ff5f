/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Decimals are encoded as JSON strings ("10.50") to avoid float rounding.
  Requests accept both strings and numbers.

VALIDATION:
  Request types carry go-playground/validator tags. Handlers run them
  before touching the store.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/calculator.go: CalculatorJSON type
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/factory"
	"github.com/warp/adjustment-engine/generic"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RefDTO identifies a target, source or originator.
type RefDTO struct {
	Type string `json:"type" validate:"required"`
	ID   string `json:"id" validate:"required"`
}

func (r RefDTO) toRef() generic.Ref {
	return generic.Ref{Type: r.Type, ID: r.ID}
}

// SourceDTO is the calculation context: a typed record plus the named values
// calculators read from it (e.g. "item_total").
type SourceDTO struct {
	Type   string                     `json:"type" validate:"required"`
	ID     string                     `json:"id" validate:"required"`
	Values map[string]decimal.Decimal `json:"values,omitempty"`
}

func (s SourceDTO) toDocument() *generic.Document {
	doc := generic.NewDocument(s.Type, s.ID)
	for name, v := range s.Values {
		doc.Set(name, v)
	}
	return doc
}

// CalculatorRequest assigns a calculator by type. Preferences are applied on
// top of the resulting instance.
type CalculatorRequest struct {
	Type        string          `json:"type" validate:"required"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

// CreateAdjustableRequest creates an adjustable with its calculator.
type CreateAdjustableRequest struct {
	ID         string            `json:"id" validate:"required,max=128"`
	Kind       string            `json:"kind" validate:"required,max=64"`
	Calculator CalculatorRequest `json:"calculator"`
}

// AdjustmentRequest asks an adjustable to create or reverse an adjustment.
// Mandatory is ignored for reversals.
type AdjustmentRequest struct {
	Label     string    `json:"label" validate:"required"`
	Target    RefDTO    `json:"target"`
	Source    SourceDTO `json:"source"`
	Mandatory bool      `json:"mandatory"`
}

// RecomputeRequest supplies the context for recomputing an adjustment.
type RecomputeRequest struct {
	Source SourceDTO `json:"source"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CalculatorTypesDTO lists the calculator types selectable for a kind.
type CalculatorTypesDTO struct {
	Kind  string   `json:"kind,omitempty"`
	Types []string `json:"types"`
}

// AdjustableDTO represents an adjustable in API responses.
type AdjustableDTO struct {
	ID          string                  `json:"id"`
	Kind        string                  `json:"kind"`
	Calculator  *factory.CalculatorJSON `json:"calculator,omitempty"`
	Calculators []string                `json:"calculators"`
}

// AdjustmentDTO represents an adjustment in API responses.
type AdjustmentDTO struct {
	ID         string          `json:"id"`
	Target     RefDTO          `json:"target"`
	Amount     decimal.Decimal `json:"amount"`
	Source     RefDTO          `json:"source"`
	Originator RefDTO          `json:"originator"`
	Label      string          `json:"label"`
	Mandatory  bool            `json:"mandatory"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

// TargetAdjustmentsDTO lists a target's adjustments with their sum.
type TargetAdjustmentsDTO struct {
	Target      RefDTO          `json:"target"`
	Adjustments []AdjustmentDTO `json:"adjustments"`
	Total       decimal.Decimal `json:"total"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRefDTO(r generic.Ref) RefDTO {
	return RefDTO{Type: r.Type, ID: r.ID}
}

func toAdjustmentDTO(adj *generic.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:         string(adj.ID),
		Target:     toRefDTO(adj.Target),
		Amount:     adj.Amount,
		Source:     toRefDTO(adj.Source),
		Originator: toRefDTO(adj.Originator),
		Label:      adj.Label,
		Mandatory:  adj.Mandatory,
		CreatedAt:  adj.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  adj.UpdatedAt.Format(time.RFC3339),
	}
}

func toAdjustmentDTOs(adjs []*generic.Adjustment) []AdjustmentDTO {
	dtos := make([]AdjustmentDTO, len(adjs))
	for i, adj := range adjs {
		dtos[i] = toAdjustmentDTO(adj)
	}
	return dtos
}

func typeStrings(types []generic.CalculatorType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

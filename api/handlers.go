/*
handlers.go - HTTP API handlers for the adjustment engine

PURPOSE:
  Exposes adjustables and their adjustments via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Calculators:
    GET    /api/calculators?kind=                 Selectable calculator types

  Adjustables:
    GET    /api/adjustables?kind=                 List adjustables
    POST   /api/adjustables                       Create with calculator
    GET    /api/adjustables/{id}                  Get adjustable
    DELETE /api/adjustables/{id}                  Delete (calculator goes with it)
    PUT    /api/adjustables/{id}/calculator       Assign calculator type / preferences

  Adjustments:
    POST   /api/adjustables/{id}/adjustments      Create adjustment on a target
    POST   /api/adjustables/{id}/reversals        Reverse (negated, never mandatory)
    POST   /api/adjustments/{id}/recompute        Update amount in place
    GET    /api/targets/{type}/{id}/adjustments   A target's adjustments and total

REQUEST FLOW:
  1. Parse and validate the request body
  2. Open a store transaction
  3. Load the adjustable, run the ledger operation, write through the tx
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, failed validation, unknown or non-permitted type
  - 404: Adjustable or adjustment not found
  - 409: ID already taken
  - 422: No calculator assigned, or the calculator failed on the source
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/adjustment-engine/factory"
	"github.com/warp/adjustment-engine/generic"
	"github.com/warp/adjustment-engine/obs"
)

const (
	opCreate  = "create"
	opReverse = "reverse"
	opUpdate  = "update"
)

var errInvalidPreferences = errors.New("invalid calculator preferences")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    generic.TxStore
	Registry *generic.Registry
	Factory  *factory.CalculatorFactory
	Metrics  *obs.Metrics

	validate *validator.Validate
}

// NewHandler creates a handler. A nil registry means the default one; nil
// metrics disables domain counters.
func NewHandler(store generic.TxStore, reg *generic.Registry, metrics *obs.Metrics) *Handler {
	f := factory.NewCalculatorFactory(reg)
	return &Handler{
		Store:    store,
		Registry: f.Registry,
		Factory:  f,
		Metrics:  metrics,
		validate: validator.New(),
	}
}

// =============================================================================
// CALCULATOR ENDPOINTS
// =============================================================================

// ListCalculators returns the calculator types selectable for ?kind=, or
// every registered type when no kind is given.
func (h *Handler) ListCalculators(w http.ResponseWriter, r *http.Request) {
	kind := generic.AdjustableKind(r.URL.Query().Get("kind"))
	writeJSON(w, http.StatusOK, CalculatorTypesDTO{
		Kind:  string(kind),
		Types: typeStrings(h.selectable(kind)),
	})
}

// selectable mirrors Registry.IsPermitted: a kind without a permitted list
// may use any registered type.
func (h *Handler) selectable(kind generic.AdjustableKind) []generic.CalculatorType {
	if kind != "" {
		if types := h.Registry.Calculators(kind); len(types) > 0 {
			return types
		}
	}
	return h.Registry.Types()
}

// =============================================================================
// ADJUSTABLE ENDPOINTS
// =============================================================================

// ListAdjustables returns adjustables, optionally filtered by ?kind=.
func (h *Handler) ListAdjustables(w http.ResponseWriter, r *http.Request) {
	kind := generic.AdjustableKind(r.URL.Query().Get("kind"))
	adjustables, err := h.Store.ListAdjustables(r.Context(), kind)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list adjustables", err)
		return
	}

	dtos := make([]AdjustableDTO, 0, len(adjustables))
	for _, a := range adjustables {
		dto, err := h.toAdjustableDTO(a)
		if err != nil {
			h.writeDomainError(w, r, "Failed to encode adjustable", err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustable creates an adjustable and assigns its calculator.
func (h *Handler) CreateAdjustable(w http.ResponseWriter, r *http.Request) {
	var req CreateAdjustableRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	a := generic.NewAdjustable(generic.AdjustableID(req.ID), generic.AdjustableKind(req.Kind), h.Registry)
	err := h.Store.WithTx(ctx, func(tx generic.Store) error {
		if _, err := tx.LoadAdjustable(ctx, a.ID); err == nil {
			return fmt.Errorf("%s: %w", a.ID, generic.ErrDuplicateAdjustable)
		} else if !errors.Is(err, generic.ErrAdjustableNotFound) {
			return err
		}
		if err := h.assignCalculator(a, req.Calculator); err != nil {
			return err
		}
		return tx.SaveAdjustable(ctx, a)
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create adjustable", err)
		return
	}
	h.Metrics.ObserveAssignment(req.Calculator.Type)

	h.writeAdjustable(w, r, http.StatusCreated, a)
}

// GetAdjustable returns a single adjustable.
func (h *Handler) GetAdjustable(w http.ResponseWriter, r *http.Request) {
	id := generic.AdjustableID(chi.URLParam(r, "id"))
	a, err := h.Store.LoadAdjustable(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load adjustable", err)
		return
	}
	h.writeAdjustable(w, r, http.StatusOK, a)
}

// DeleteAdjustable deletes an adjustable and its calculator. Adjustments it
// originated are kept.
func (h *Handler) DeleteAdjustable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.AdjustableID(chi.URLParam(r, "id"))
	err := h.Store.WithTx(ctx, func(tx generic.Store) error {
		return tx.DeleteAdjustable(ctx, id)
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to delete adjustable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetCalculator assigns a calculator type. Assigning the current type keeps
// the configured instance; preferences, when given, are applied on top.
func (h *Handler) SetCalculator(w http.ResponseWriter, r *http.Request) {
	var req CalculatorRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := generic.AdjustableID(chi.URLParam(r, "id"))

	var a *generic.Adjustable
	err := h.Store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		if a, err = tx.LoadAdjustable(ctx, id); err != nil {
			return err
		}
		if err := h.assignCalculator(a, req); err != nil {
			return err
		}
		return tx.SaveAdjustable(ctx, a)
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to assign calculator", err)
		return
	}
	h.Metrics.ObserveAssignment(req.Type)

	h.writeAdjustable(w, r, http.StatusOK, a)
}

func (h *Handler) assignCalculator(a *generic.Adjustable, req CalculatorRequest) error {
	if err := a.SetCalculatorType(generic.CalculatorType(req.Type)); err != nil {
		return err
	}
	if err := h.Factory.ApplyPreferences(a.Calculator(), req.Preferences); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPreferences, err)
	}
	return nil
}

// =============================================================================
// ADJUSTMENT ENDPOINTS
// =============================================================================

// CreateAdjustment records the adjustable's computed amount on a target.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	h.recordAdjustment(w, r, opCreate)
}

// ReverseAdjustment records the negated amount on a target.
func (h *Handler) ReverseAdjustment(w http.ResponseWriter, r *http.Request) {
	h.recordAdjustment(w, r, opReverse)
}

func (h *Handler) recordAdjustment(w http.ResponseWriter, r *http.Request, op string) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := generic.AdjustableID(chi.URLParam(r, "id"))

	var adj *generic.Adjustment
	err := h.Store.WithTx(ctx, func(tx generic.Store) error {
		a, err := tx.LoadAdjustable(ctx, id)
		if err != nil {
			return err
		}
		ledger := generic.NewLedger(tx)
		target := generic.StoreTarget{Ref: req.Target.toRef(), Store: tx}
		src := req.Source.toDocument()
		if op == opReverse {
			adj, err = ledger.ReverseAdjustment(ctx, a, req.Label, target, src)
		} else {
			adj, err = ledger.CreateAdjustment(ctx, a, req.Label, target, src, req.Mandatory)
		}
		return err
	})
	h.Metrics.ObserveOp(op, resultOf(err))
	if err != nil {
		h.writeDomainError(w, r, "Failed to "+op+" adjustment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adj))
}

// RecomputeAdjustment recomputes an adjustment's amount from its originator
// and overwrites it in place.
func (h *Handler) RecomputeAdjustment(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := generic.AdjustmentID(chi.URLParam(r, "id"))

	var adj *generic.Adjustment
	err := h.Store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		if adj, err = tx.GetAdjustment(ctx, id); err != nil {
			return err
		}
		a, err := tx.LoadAdjustable(ctx, generic.AdjustableID(adj.Originator.ID))
		if err != nil {
			return fmt.Errorf("originator %s: %w", adj.Originator, err)
		}
		if a.Ref() != adj.Originator {
			return fmt.Errorf("originator %s: %w", adj.Originator, generic.ErrAdjustableNotFound)
		}
		return generic.NewLedger(tx).UpdateAdjustment(ctx, a, adj, req.Source.toDocument())
	})
	h.Metrics.ObserveOp(opUpdate, resultOf(err))
	if err != nil {
		h.writeDomainError(w, r, "Failed to recompute adjustment", err)
		return
	}

	writeJSON(w, http.StatusOK, toAdjustmentDTO(adj))
}

// ListTargetAdjustments returns a target's adjustments in creation order.
func (h *Handler) ListTargetAdjustments(w http.ResponseWriter, r *http.Request) {
	target := generic.Ref{Type: chi.URLParam(r, "type"), ID: chi.URLParam(r, "id")}
	adjs, err := h.Store.LoadAdjustments(r.Context(), target)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load adjustments", err)
		return
	}

	total := decimal.Zero
	for _, adj := range adjs {
		total = total.Add(adj.Amount)
	}
	writeJSON(w, http.StatusOK, TargetAdjustmentsDTO{
		Target:      toRefDTO(target),
		Adjustments: toAdjustmentDTOs(adjs),
		Total:       total,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) toAdjustableDTO(a *generic.Adjustable) (AdjustableDTO, error) {
	dto := AdjustableDTO{
		ID:          string(a.ID),
		Kind:        string(a.Kind),
		Calculators: typeStrings(h.selectable(a.Kind)),
	}
	if calc := a.Calculator(); calc != nil {
		cj, err := h.Factory.ToJSON(calc)
		if err != nil {
			return AdjustableDTO{}, err
		}
		dto.Calculator = &cj
	}
	return dto, nil
}

func (h *Handler) writeAdjustable(w http.ResponseWriter, r *http.Request, status int, a *generic.Adjustable) {
	dto, err := h.toAdjustableDTO(a)
	if err != nil {
		h.writeDomainError(w, r, "Failed to encode adjustable", err)
		return
	}
	writeJSON(w, status, dto)
}

// decode reads and validates a JSON body. On failure it writes a 400 and
// returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func statusOf(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, generic.ErrCalculatorMissing), errors.Is(err, generic.ErrComputationFailed):
		return http.StatusUnprocessableEntity
	case generic.IsClientError(err), errors.Is(err, errInvalidPreferences):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch statusOf(err) {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "error"
	default:
		return "client_error"
	}
}

// writeDomainError maps engine errors to HTTP statuses. Internal errors are
// logged; their details are not returned.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(message)
		writeError(w, status, message, nil)
		return
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

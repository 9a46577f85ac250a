// Package handler exposes the promotion engine over HTTP. Requests and
// responses are plain JSON; domain errors map to structured error payloads.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
	"github.com/commercekit/promotion-engine/internal/domain/sale"
)

// Handler routes the promotion API, delegating business logic to the domain
// services and matchers.
type Handler struct {
	discounts       *discount.Service
	discountMatcher *discount.Matcher
	ledger          *discount.Ledger
	sales           *sale.Service
	saleMatcher     *sale.Matcher
}

// New constructs a Handler with the required domain dependencies.
func New(
	discounts *discount.Service,
	discountMatcher *discount.Matcher,
	ledger *discount.Ledger,
	sales *sale.Service,
	saleMatcher *sale.Matcher,
) *Handler {
	return &Handler{
		discounts:       discounts,
		discountMatcher: discountMatcher,
		ledger:          ledger,
		sales:           sales,
		saleMatcher:     saleMatcher,
	}
}

// Register mounts every API route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coupons/match", h.MatchCoupon)

	mux.HandleFunc("POST /api/discounts", h.SaveDiscount)
	mux.HandleFunc("DELETE /api/discounts/{id}", h.DeleteDiscount)
	mux.HandleFunc("POST /api/discounts/reorder", h.ReorderDiscounts)
	mux.HandleFunc("DELETE /api/discounts/{id}/usage", h.ClearDiscountUsage)

	mux.HandleFunc("POST /api/sales", h.SaveSale)
	mux.HandleFunc("DELETE /api/sales/{id}", h.DeleteSale)
	mux.HandleFunc("POST /api/sales/price", h.SalePrice)

	mux.HandleFunc("POST /api/orders/complete", h.CompleteOrder)
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("write response", zap.Error(err))
	}
}

// writeError maps domain errors onto the error payload: validation failures
// become 422 with per-field rules, missing entities 404, everything else 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *discount.ValidationError
	if errors.As(err, &verr) {
		fields := make([]fieldError, len(verr.Fields))
		for i, fe := range verr.Fields {
			fields[i] = fieldError{Field: fe.Field, Rule: fe.Rule}
		}
		h.writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: verr.Error(),
			Fields:  fields,
		})
		return
	}

	if errors.Is(err, discount.ErrNotFound) || errors.Is(err, sale.ErrNotFound) {
		h.writeJSON(w, r, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: err.Error(),
		})
		return
	}

	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	h.writeJSON(w, r, http.StatusInternalServerError, errorResponse{
		Code:    http.StatusInternalServerError,
		Message: "internal error",
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	h.writeJSON(w, r, http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: msg,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
)

type matchCouponRequest struct {
	Code       string `json:"code"`
	CustomerID int64  `json:"customerId"`
}

type matchCouponResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// MatchCoupon checks coupon eligibility for a customer. Ineligibility is a
// 200 with ok=false and the shopper-facing reason, never an error status.
func (h *Handler) MatchCoupon(w http.ResponseWriter, r *http.Request) {
	var req matchCouponRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	elig, err := h.discountMatcher.MatchCode(r.Context(), req.Code, req.CustomerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, matchCouponResponse{OK: elig.OK, Reason: elig.Reason})
}

type discountPayload struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`

	DateFrom *time.Time `json:"dateFrom,omitempty"`
	DateTo   *time.Time `json:"dateTo,omitempty"`

	TotalUseLimit int `json:"totalUseLimit,omitempty"`
	TotalUses     int `json:"totalUses,omitempty"`
	PerUserLimit  int `json:"perUserLimit,omitempty"`
	PerEmailLimit int `json:"perEmailLimit,omitempty"`

	BaseDiscount         decimal.Decimal `json:"baseDiscount"`
	PerItemDiscount      decimal.Decimal `json:"perItemDiscount"`
	PercentDiscount      decimal.Decimal `json:"percentDiscount"`
	PercentageOffSubject string          `json:"percentageOffSubject,omitempty"`
	FreeShipping         bool            `json:"freeShipping,omitempty"`
	ExcludeOnSale        bool            `json:"excludeOnSale,omitempty"`

	UserGroupIDs   []int64 `json:"userGroupIds,omitempty"`
	PurchasableIDs []int64 `json:"purchasableIds,omitempty"`
	CategoryIDs    []int64 `json:"categoryIds,omitempty"`

	Enabled        bool `json:"enabled"`
	StopProcessing bool `json:"stopProcessing,omitempty"`
	SortOrder      int  `json:"sortOrder,omitempty"`
}

func (p *discountPayload) toDomain() *discount.Discount {
	return &discount.Discount{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          p.Description,
		Code:                 p.Code,
		DateFrom:             p.DateFrom,
		DateTo:               p.DateTo,
		TotalUseLimit:        p.TotalUseLimit,
		TotalUses:            p.TotalUses,
		PerUserLimit:         p.PerUserLimit,
		PerEmailLimit:        p.PerEmailLimit,
		BaseDiscount:         p.BaseDiscount,
		PerItemDiscount:      p.PerItemDiscount,
		PercentDiscount:      p.PercentDiscount,
		PercentageOffSubject: discount.PercentageOffSubject(p.PercentageOffSubject),
		FreeShipping:         p.FreeShipping,
		ExcludeOnSale:        p.ExcludeOnSale,
		UserGroupIDs:         p.UserGroupIDs,
		PurchasableIDs:       p.PurchasableIDs,
		CategoryIDs:          p.CategoryIDs,
		Enabled:              p.Enabled,
		StopProcessing:       p.StopProcessing,
		SortOrder:            p.SortOrder,
	}
}

type saveDiscountResponse struct {
	ID int64 `json:"id"`
}

// SaveDiscount creates or updates a discount together with its scoping
// relations.
func (h *Handler) SaveDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountPayload
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	d := req.toDomain()
	if err := h.discounts.Save(r.Context(), d); err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	h.writeJSON(w, r, status, saveDiscountResponse{ID: d.ID})
}

// DeleteDiscount removes the discount and its relations.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, r, "invalid discount id")
		return
	}

	if err := h.discounts.DeleteByID(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []int64 `json:"ids"`
}

// ReorderDiscounts rewrites evaluation precedence to the submitted ID order.
func (h *Handler) ReorderDiscounts(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		h.badRequest(w, r, "ids must not be empty")
		return
	}

	if err := h.discounts.Reorder(r.Context(), req.IDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearDiscountUsage wipes the discount's usage history and resets its
// aggregate counter.
func (h *Handler) ClearDiscountUsage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, r, "invalid discount id")
		return
	}

	if err := h.ledger.ClearUsageHistory(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeOrderRequest struct {
	CouponCode string `json:"couponCode,omitempty"`
	CustomerID int64  `json:"customerId,omitempty"`
}

// CompleteOrder records the coupon redemption of a completed order. The host
// system calls it exactly once per completion.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req completeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	err := h.ledger.OnOrderComplete(r.Context(), discount.CompletedOrder{
		CouponCode: req.CouponCode,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

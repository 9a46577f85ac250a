package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/commercekit/promotion-engine/internal/domain/product"
	"github.com/commercekit/promotion-engine/internal/domain/sale"
)

type salePayload struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	DateFrom *time.Time `json:"dateFrom,omitempty"`
	DateTo   *time.Time `json:"dateTo,omitempty"`

	DiscountType   string          `json:"discountType"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`

	GroupIDs       []int64 `json:"groupIds,omitempty"`
	ProductIDs     []int64 `json:"productIds,omitempty"`
	ProductTypeIDs []int64 `json:"productTypeIds,omitempty"`

	Enabled bool `json:"enabled"`
}

func (p *salePayload) toDomain() *sale.Sale {
	return &sale.Sale{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		DateFrom:       p.DateFrom,
		DateTo:         p.DateTo,
		DiscountType:   sale.Type(p.DiscountType),
		DiscountAmount: p.DiscountAmount,
		GroupIDs:       p.GroupIDs,
		ProductIDs:     p.ProductIDs,
		ProductTypeIDs: p.ProductTypeIDs,
		Enabled:        p.Enabled,
	}
}

type saveSaleResponse struct {
	ID int64 `json:"id"`
}

// SaveSale creates or updates a sale together with its scoping relations.
func (h *Handler) SaveSale(w http.ResponseWriter, r *http.Request) {
	var req salePayload
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	s := req.toDomain()
	if err := h.sales.Save(r.Context(), s); err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	h.writeJSON(w, r, status, saveSaleResponse{ID: s.ID})
}

// DeleteSale removes the sale and its relations.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.badRequest(w, r, "invalid sale id")
		return
	}

	if err := h.sales.DeleteByID(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type salePriceRequest struct {
	Product    productPayload `json:"product"`
	CustomerID int64          `json:"customerId,omitempty"`
}

type productPayload struct {
	ID         int64           `json:"id"`
	TypeID     int64           `json:"typeId"`
	Promotable bool            `json:"promotable"`
	Price      decimal.Decimal `json:"price"`
}

type salePriceResponse struct {
	Price     decimal.Decimal `json:"price"`
	SalePrice decimal.Decimal `json:"salePrice"`
	OnSale    bool            `json:"onSale"`
	SaleIDs   []int64         `json:"saleIds,omitempty"`
}

// SalePrice computes the effective sale price of a submitted product for a
// customer. The product's attributes come with the request; the engine owns
// no product catalog of its own.
func (h *Handler) SalePrice(w http.ResponseWriter, r *http.Request) {
	var req salePriceRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	p := &product.Product{
		ID:         req.Product.ID,
		TypeID:     req.Product.TypeID,
		Promotable: req.Product.Promotable,
		Price:      req.Product.Price,
	}

	matched, err := h.saleMatcher.SalesForProduct(r.Context(), p, req.CustomerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	price := sale.SalePrice(p.Price, matched)
	resp := salePriceResponse{
		Price:     p.Price,
		SalePrice: price,
		OnSale:    len(matched) > 0,
	}
	for _, s := range matched {
		resp.SaleIDs = append(resp.SaleIDs, s.ID)
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

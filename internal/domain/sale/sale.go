// Package sale implements automatic catalog-level price adjustments: loading
// the active sale set, matching sales to products and variants, and computing
// the effective sale price.
package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
)

// ErrNotFound is returned when a sale targeted by ID does not exist.
var ErrNotFound = errors.New("sale not found")

// Type selects how a sale adjusts the price.
type Type string

const (
	// TypePercent takes DiscountAmount as a fraction of the running price.
	TypePercent Type = "percent"
	// TypeFlat subtracts DiscountAmount as a fixed amount.
	TypeFlat Type = "flat"
)

// Sale is an automatic, code-free price adjustment rule scoped over
// products, product types, and user groups. Scoping axes follow the same
// universal-flag convention as discounts.
type Sale struct {
	ID          int64
	Name        string `validate:"required"`
	Description string

	DateFrom *time.Time
	DateTo   *time.Time

	DiscountType   Type `validate:"required,oneof=percent flat"`
	DiscountAmount decimal.Decimal

	AllGroups       bool
	AllProducts     bool
	AllProductTypes bool

	GroupIDs       []int64
	ProductIDs     []int64
	ProductTypeIDs []int64

	Enabled bool
}

// Normalize derives the per-axis universal flags from the explicit ID sets.
func (s *Sale) Normalize() {
	s.AllGroups = len(s.GroupIDs) == 0
	s.AllProducts = len(s.ProductIDs) == 0
	s.AllProductTypes = len(s.ProductTypeIDs) == 0
}

var validate = validator.New()

// Validate checks the sale definition, returning a discount.ValidationError
// listing every violated field.
func (s *Sale) Validate() error {
	var fieldErrs []discount.FieldError

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fieldErrs = append(fieldErrs, discount.FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}

	if s.DiscountAmount.IsNegative() {
		fieldErrs = append(fieldErrs, discount.FieldError{Field: "DiscountAmount", Rule: "min_0"})
	}
	if s.DiscountType == TypePercent && s.DiscountAmount.GreaterThan(decimal.NewFromInt(1)) {
		fieldErrs = append(fieldErrs, discount.FieldError{Field: "DiscountAmount", Rule: "range_0_1"})
	}
	if s.DateFrom != nil && s.DateTo != nil && s.DateTo.Before(*s.DateFrom) {
		fieldErrs = append(fieldErrs, discount.FieldError{Field: "DateTo", Rule: "after_date_from"})
	}

	if len(fieldErrs) > 0 {
		return &discount.ValidationError{Fields: fieldErrs}
	}
	return nil
}

// Repository provides persistence for sales and their scoping relations.
// Save rewrites the primary row and all relation rows in one transaction.
type Repository interface {
	LoadAll(ctx context.Context) ([]Sale, error)
	Save(ctx context.Context, s *Sale) error
	Delete(ctx context.Context, id int64) (bool, error)
}

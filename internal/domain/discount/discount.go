// Package discount implements code-redeemable cart promotions: catalog
// loading, coupon code eligibility, per-line-item matching, and usage
// accounting.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a discount targeted by ID does not exist.
var ErrNotFound = errors.New("discount not found")

// DefaultSortOrder is assigned to discounts created without an explicit
// position. It places them after anything deliberately ordered.
const DefaultSortOrder = 999

// PercentageOffSubject selects which price the percentage discount is taken
// from.
type PercentageOffSubject string

const (
	// SubjectOriginalPrice takes the percentage off the original price.
	SubjectOriginalPrice PercentageOffSubject = "original"
	// SubjectDiscountedPrice takes the percentage off the already-discounted
	// sale price.
	SubjectDiscountedPrice PercentageOffSubject = "discounted"
)

// Discount is a code-redeemable promotional rule with usage limits and
// scoping over purchasables, categories, and user groups.
//
// Each scoping axis is either universal (the All* flag) or restricted to an
// explicit ID set; exactly one of the two holds per axis. Normalize derives
// the flags from the sets and must be called before persisting.
type Discount struct {
	ID          int64
	Name        string `validate:"required"`
	Description string
	Code        string

	DateFrom *time.Time
	DateTo   *time.Time

	TotalUseLimit int `validate:"min=0"`
	TotalUses     int
	PerUserLimit  int `validate:"min=0"`
	PerEmailLimit int `validate:"min=0"`

	BaseDiscount         decimal.Decimal
	PerItemDiscount      decimal.Decimal
	PercentDiscount      decimal.Decimal
	PercentageOffSubject PercentageOffSubject `validate:"omitempty,oneof=original discounted"`
	FreeShipping         bool
	ExcludeOnSale        bool

	AllGroups       bool
	AllPurchasables bool
	AllCategories   bool

	UserGroupIDs   []int64
	PurchasableIDs []int64
	CategoryIDs    []int64

	Enabled        bool
	StopProcessing bool
	SortOrder      int
}

// Normalize derives the per-axis universal flags from the explicit ID sets
// and assigns the default sort order to new discounts.
func (d *Discount) Normalize() {
	d.AllGroups = len(d.UserGroupIDs) == 0
	d.AllPurchasables = len(d.PurchasableIDs) == 0
	d.AllCategories = len(d.CategoryIDs) == 0
	if d.SortOrder == 0 {
		d.SortOrder = DefaultSortOrder
	}
}

var validate = validator.New()

// Validate checks the discount definition and returns a ValidationError
// listing every violated field. A valid discount has a name, non-negative
// limits, a non-negative percentage, and an ordered date window.
func (d *Discount) Validate() error {
	var fieldErrs []FieldError

	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fieldErrs = append(fieldErrs, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}

	if d.PercentDiscount.IsNegative() || d.PercentDiscount.GreaterThan(decimal.NewFromInt(1)) {
		fieldErrs = append(fieldErrs, FieldError{Field: "PercentDiscount", Rule: "range_0_1"})
	}
	if d.DateFrom != nil && d.DateTo != nil && d.DateTo.Before(*d.DateFrom) {
		fieldErrs = append(fieldErrs, FieldError{Field: "DateTo", Rule: "after_date_from"})
	}

	if len(fieldErrs) > 0 {
		return &ValidationError{Fields: fieldErrs}
	}
	return nil
}

// FieldError names a single violated validation rule.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError carries all field violations found on a promotion
// definition. Callers fix the fields and retry; nothing was persisted.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return "validation failed on field " + e.Fields[0].Field
	}
	return "validation failed on " + e.Fields[0].Field + " and other fields"
}

// Repository provides persistence for discounts and their scoping relations.
//
// LoadAll returns discounts ordered by sort order ascending (ties broken by
// ID) with the three relation ID sets populated and deduplicated. Save
// rewrites the primary row and all relation rows in a single transaction.
// Delete reports whether a row existed.
type Repository interface {
	LoadAll(ctx context.Context) ([]Discount, error)
	// FindByCode returns the enabled discount with exactly this code, or
	// ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Discount, error)
	// FindAnyByCode looks the code up without the enabled filter. The usage
	// ledger uses it so a disabled discount still gets its counters updated
	// for orders completed while it was live.
	FindAnyByCode(ctx context.Context, code string) (*Discount, error)
	Save(ctx context.Context, d *Discount) error
	Delete(ctx context.Context, id int64) (bool, error)
	// Reorder rewrites sort orders to match the given ID positions, 1-based.
	Reorder(ctx context.Context, ids []int64) error
	// IncrementTotalUses adds one to the aggregate usage counter in a single
	// atomic statement.
	IncrementTotalUses(ctx context.Context, code string) error
	// ClearUsage removes all per-customer usage rows for the discount and
	// resets its aggregate counter to zero.
	ClearUsage(ctx context.Context, id int64) error
}

// UsageRepository tracks per-customer redemption counts.
type UsageRepository interface {
	// Uses returns the customer's recorded use count for the discount, zero
	// if no row exists.
	Uses(ctx context.Context, customerID, discountID int64) (int, error)
	// RecordUse creates the (customer, discount) usage row with one use, or
	// atomically increments it when the row already exists. Implementations
	// must resolve concurrent first uses through a uniqueness constraint,
	// never read-then-write.
	RecordUse(ctx context.Context, customerID, discountID int64) error
}

// OrderHistory exposes the completed-order lookups the matcher needs.
type OrderHistory interface {
	// CouponUsesByEmail counts completed orders for the email whose coupon
	// code equals the given code, compared case-insensitively.
	CouponUsesByEmail(ctx context.Context, email, code string) (int, error)
}

// GroupResolver resolves customer identity attributes owned by the host
// system.
type GroupResolver interface {
	// GroupIDs returns the user-group IDs for the customer, empty when the
	// customer is unknown or has no user account.
	GroupIDs(ctx context.Context, customerID int64) ([]int64, error)
	// IsRegistered reports whether the customer is backed by a user account.
	// Guest customers are regenerated between sessions, so per-user limits
	// cannot be tracked for them.
	IsRegistered(ctx context.Context, customerID int64) (bool, error)
	// Email returns the customer's email address, empty when unknown.
	Email(ctx context.Context, customerID int64) (string, error)
}

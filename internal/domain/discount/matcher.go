package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/commercekit/promotion-engine/internal/domain/product"
)

// Coupon rejection reasons, surfaced verbatim to the shopper.
const (
	ReasonNotValid       = "Coupon not valid"
	ReasonLimitReached   = "Discount use has reached its limit"
	ReasonOutOfDate      = "Discount is out of date"
	ReasonNotForCustomer = "Discount is not allowed for the customer"
	ReasonLoggedInOnly   = "Discount is limited to use by logged in users only."
	ReasonAllUsedUp      = "You can not use this discount anymore"
)

// Eligibility is the outcome of a coupon code check. A failed check is an
// expected business result, not an error: OK is false and Reason explains why.
type Eligibility struct {
	OK     bool
	Reason string
}

func ineligible(reason string) Eligibility {
	return Eligibility{Reason: reason}
}

// LineItem is one cart entry presented for discount matching.
type LineItem struct {
	PurchasableID int64
	Qty           int
	OnSale        bool
	Purchasable   product.Purchasable
}

// MatchFunc is a veto hook consulted after a line item passes the built-in
// discount rules. Returning false defeats the match. Hooks run in
// registration order and all must pass.
type MatchFunc func(item LineItem, d *Discount) bool

// Matcher evaluates coupon codes and per-line-item discount eligibility
// against the loaded catalog.
type Matcher struct {
	catalog    *Catalog
	usage      UsageRepository
	history    OrderHistory
	groups     GroupResolver
	categories product.CategoryIndex
	hooks      []MatchFunc
	now        func() time.Time
}

// NewMatcher creates a Matcher over the given catalog and collaborators.
func NewMatcher(
	catalog *Catalog,
	usage UsageRepository,
	history OrderHistory,
	groups GroupResolver,
	categories product.CategoryIndex,
) *Matcher {
	return &Matcher{
		catalog:    catalog,
		usage:      usage,
		history:    history,
		groups:     groups,
		categories: categories,
		now:        time.Now,
	}
}

// RegisterMatchFunc appends a veto hook to the line item match chain.
func (m *Matcher) RegisterMatchFunc(fn MatchFunc) {
	m.hooks = append(m.hooks, fn)
}

// MatchCode checks whether the coupon code can currently be redeemed by the
// customer. Gates run in order and the first failure wins; customerID zero
// means an anonymous shopper. The returned error covers only collaborator
// failures, never ineligibility.
func (m *Matcher) MatchCode(ctx context.Context, code string, customerID int64) (Eligibility, error) {
	d, err := m.enabledByCode(ctx, code)
	if err != nil {
		return Eligibility{}, err
	}
	if d == nil {
		return ineligible(ReasonNotValid), nil
	}

	if d.TotalUseLimit > 0 && d.TotalUses >= d.TotalUseLimit {
		return ineligible(ReasonLimitReached), nil
	}

	now := m.now()
	if (d.DateFrom != nil && d.DateFrom.After(now)) || (d.DateTo != nil && d.DateTo.Before(now)) {
		return ineligible(ReasonOutOfDate), nil
	}

	if !d.AllGroups {
		var groupIDs []int64
		if customerID != 0 {
			groupIDs, err = m.groups.GroupIDs(ctx, customerID)
			if err != nil {
				return Eligibility{}, errors.Wrap(err, "resolve customer groups")
			}
		}
		if !intersects(groupIDs, d.UserGroupIDs) {
			return ineligible(ReasonNotForCustomer), nil
		}
	}

	if customerID != 0 && d.PerUserLimit > 0 {
		registered, err := m.groups.IsRegistered(ctx, customerID)
		if err != nil {
			return Eligibility{}, errors.Wrap(err, "resolve customer account")
		}
		if !registered {
			return ineligible(ReasonLoggedInOnly), nil
		}

		uses, err := m.usage.Uses(ctx, customerID, d.ID)
		if err != nil {
			return Eligibility{}, errors.Wrap(err, "load customer usage")
		}
		if uses >= d.PerUserLimit {
			return ineligible(ReasonAllUsedUp), nil
		}
	}

	if d.PerEmailLimit > 0 && customerID != 0 {
		email, err := m.groups.Email(ctx, customerID)
		if err != nil {
			return Eligibility{}, errors.Wrap(err, "resolve customer email")
		}
		if email != "" {
			used, err := m.history.CouponUsesByEmail(ctx, email, code)
			if err != nil {
				return Eligibility{}, errors.Wrap(err, "count coupon uses by email")
			}
			if used >= d.PerEmailLimit {
				reason := fmt.Sprintf("This coupon is limited to %d uses.", d.PerEmailLimit)
				return ineligible(reason), nil
			}
		}
	}

	return Eligibility{OK: true}, nil
}

// MatchLineItem reports whether the discount applies to the line item. The
// built-in rules run first; registered veto hooks have the final say.
func (m *Matcher) MatchLineItem(ctx context.Context, item LineItem, d *Discount) (bool, error) {
	if item.OnSale && d.ExcludeOnSale {
		return false, nil
	}

	// Can't match something not promotable.
	if item.Purchasable == nil || !item.Purchasable.IsPromotable() {
		return false, nil
	}

	if len(d.PurchasableIDs) > 0 && !d.AllPurchasables {
		if !containsID(d.PurchasableIDs, item.PurchasableID) {
			return false, nil
		}
	}

	if len(d.CategoryIDs) > 0 && !d.AllCategories {
		related, err := m.categories.RelatedCategories(ctx, item.Purchasable.PromotionRelationSource())
		if err != nil {
			return false, errors.Wrap(err, "resolve related categories")
		}
		if !intersects(related, d.CategoryIDs) {
			return false, nil
		}
	}

	for _, fn := range m.hooks {
		if !fn(item, d) {
			return false, nil
		}
	}

	return true, nil
}

// enabledByCode scans the catalog for the enabled discount with exactly this
// code. Comparison is case-sensitive.
func (m *Matcher) enabledByCode(ctx context.Context, code string) (*Discount, error) {
	if code == "" {
		return nil, nil
	}
	all, err := m.catalog.All(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load discounts")
	}
	for i := range all {
		if all[i].Enabled && all[i].Code == code {
			return &all[i], nil
		}
	}
	return nil, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		if containsID(b, x) {
			return true
		}
	}
	return false
}

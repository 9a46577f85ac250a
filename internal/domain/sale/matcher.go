package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
	"github.com/commercekit/promotion-engine/internal/domain/product"
)

// Matcher determines which active sales apply to a product or variant for a
// given customer. It only selects the matched set; price computation is
// SalePrice's job.
type Matcher struct {
	catalog *Catalog
	groups  discount.GroupResolver
	now     func() time.Time
}

// NewMatcher creates a Matcher over the catalog and group resolver.
func NewMatcher(catalog *Catalog, groups discount.GroupResolver) *Matcher {
	return &Matcher{catalog: catalog, groups: groups, now: time.Now}
}

// SalesForProduct returns the active sales matching the product for the
// customer, preserving catalog order. customerID zero means anonymous.
func (m *Matcher) SalesForProduct(ctx context.Context, p *product.Product, customerID int64) ([]Sale, error) {
	active, err := m.catalog.Active(ctx, m.now())
	if err != nil {
		return nil, errors.Wrap(err, "load active sales")
	}

	var matched []Sale
	for _, s := range active {
		ok, err := m.MatchProductAndSale(ctx, p, &s, customerID)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

// SalesForVariant returns the active sales matching the variant, which
// inherits all sale eligibility from its parent product.
func (m *Matcher) SalesForVariant(ctx context.Context, v *product.Variant, customerID int64) ([]Sale, error) {
	if v.Product == nil {
		return nil, nil
	}
	return m.SalesForProduct(ctx, v.Product, customerID)
}

// MatchProductAndSale reports whether the sale's scoping rules admit the
// product for the customer.
func (m *Matcher) MatchProductAndSale(ctx context.Context, p *product.Product, s *Sale, customerID int64) (bool, error) {
	// Can't match something not promotable.
	if !p.IsPromotable() {
		return false, nil
	}

	if !s.AllProducts && !containsID(s.ProductIDs, p.ID) {
		return false, nil
	}

	if !s.AllProductTypes && !containsID(s.ProductTypeIDs, p.TypeID) {
		return false, nil
	}

	if !s.AllGroups {
		var groupIDs []int64
		if customerID != 0 {
			var err error
			groupIDs, err = m.groups.GroupIDs(ctx, customerID)
			if err != nil {
				return false, errors.Wrap(err, "resolve customer groups")
			}
		}
		if !intersects(groupIDs, s.GroupIDs) {
			return false, nil
		}
	}

	return true, nil
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

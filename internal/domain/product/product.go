package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Purchasable is anything that can be placed on a line item. Implementations
// decide whether promotions may touch them and which element IDs participate
// in category relation lookups.
type Purchasable interface {
	// IsPromotable reports whether discounts and sales may apply to this
	// purchasable at all.
	IsPromotable() bool
	// PromotionRelationSource returns the element IDs used to resolve
	// category membership for promotion scoping. For a variant this is the
	// variant ID plus its parent product ID.
	PromotionRelationSource() []int64
}

// Product is a catalog item grouping one or more variants.
type Product struct {
	ID         int64
	TypeID     int64
	Promotable bool
	Price      decimal.Decimal
}

var _ Purchasable = (*Product)(nil)

// IsPromotable reports whether promotions may apply to this product.
func (p *Product) IsPromotable() bool { return p.Promotable }

// PromotionRelationSource returns the product's own ID.
func (p *Product) PromotionRelationSource() []int64 { return []int64{p.ID} }

// Variant is a sellable variation of a product. Promotability is inherited
// from the parent product.
type Variant struct {
	ID      int64
	Price   decimal.Decimal
	Product *Product
}

var _ Purchasable = (*Variant)(nil)

// IsPromotable reports whether the parent product allows promotions.
func (v *Variant) IsPromotable() bool {
	return v.Product != nil && v.Product.Promotable
}

// PromotionRelationSource returns the variant ID and its parent product ID,
// so a category related to either makes the variant eligible.
func (v *Variant) PromotionRelationSource() []int64 {
	if v.Product == nil {
		return []int64{v.ID}
	}
	return []int64{v.ID, v.Product.ID}
}

// CategoryIndex resolves which categories a set of relation-source elements
// belong to.
type CategoryIndex interface {
	RelatedCategories(ctx context.Context, sourceIDs []int64) ([]int64, error)
}

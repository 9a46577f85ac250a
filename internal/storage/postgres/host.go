package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
	"github.com/commercekit/promotion-engine/internal/domain/product"
)

const (
	customerGroupsSQL = `SELECT user_group_id FROM customer_usergroups WHERE customer_id = $1`

	customerUserSQL = `SELECT user_id IS NOT NULL FROM customers WHERE id = $1`

	customerEmailSQL = `SELECT email FROM customers WHERE id = $1`

	relatedCategoriesSQL = `SELECT DISTINCT category_id FROM purchasable_categories
		WHERE purchasable_id = ANY($1)`

	couponUsesByEmailSQL = `SELECT COUNT(*) FROM orders
		WHERE is_completed AND LOWER(email) = LOWER($1) AND LOWER(coupon_code) = LOWER($2)`
)

var (
	_ discount.GroupResolver = (*CustomerRepository)(nil)
	_ discount.OrderHistory  = (*OrderHistoryRepository)(nil)
	_ product.CategoryIndex  = (*CategoryIndex)(nil)
)

// CustomerRepository resolves customer identity attributes from the host
// system's tables.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GroupIDs returns the customer's user-group IDs, empty for unknown
// customers.
func (r *CustomerRepository) GroupIDs(ctx context.Context, customerID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, customerGroupsSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("loading groups for customer %d: %w", customerID, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("loading groups for customer %d: %w", customerID, err)
	}
	return ids, nil
}

// IsRegistered reports whether the customer is backed by a user account.
// Unknown customers are treated as guests.
func (r *CustomerRepository) IsRegistered(ctx context.Context, customerID int64) (bool, error) {
	var registered bool
	err := r.pool.QueryRow(ctx, customerUserSQL, customerID).Scan(&registered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("resolving account for customer %d: %w", customerID, err)
	}
	return registered, nil
}

// Email returns the customer's email address, empty for unknown customers.
func (r *CustomerRepository) Email(ctx context.Context, customerID int64) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, customerEmailSQL, customerID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolving email for customer %d: %w", customerID, err)
	}
	return email, nil
}

// CategoryIndex resolves promotion category membership through the
// purchasable-category relation table.
type CategoryIndex struct {
	pool *pgxpool.Pool
}

// NewCategoryIndex returns a CategoryIndex that uses the given pool.
func NewCategoryIndex(pool *pgxpool.Pool) *CategoryIndex {
	return &CategoryIndex{pool: pool}
}

// RelatedCategories returns the distinct category IDs any of the source
// elements belong to.
func (r *CategoryIndex) RelatedCategories(ctx context.Context, sourceIDs []int64) ([]int64, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, relatedCategoriesSQL, sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("loading related categories: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("loading related categories: %w", err)
	}
	return ids, nil
}

// OrderHistoryRepository answers completed-order questions from the host
// system's orders table.
type OrderHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewOrderHistoryRepository returns an OrderHistoryRepository that uses the
// given pool.
func NewOrderHistoryRepository(pool *pgxpool.Pool) *OrderHistoryRepository {
	return &OrderHistoryRepository{pool: pool}
}

// CouponUsesByEmail counts completed orders for the email whose coupon code
// matches case-insensitively.
func (r *OrderHistoryRepository) CouponUsesByEmail(ctx context.Context, email, code string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, couponUsesByEmailSQL, email, code).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting coupon uses for %q: %w", email, err)
	}
	return count, nil
}

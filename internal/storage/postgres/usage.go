package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
)

const (
	customerUsesSQL = `SELECT uses FROM customer_discountuses
		WHERE customer_id = $1 AND discount_id = $2`

	// The composite primary key arbitrates concurrent first uses: the losing
	// writer falls through to the atomic increment instead of erroring.
	recordUseSQL = `INSERT INTO customer_discountuses (customer_id, discount_id, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (customer_id, discount_id)
		DO UPDATE SET uses = customer_discountuses.uses + 1`
)

var _ discount.UsageRepository = (*UsageRepository)(nil)

// UsageRepository implements discount.UsageRepository backed by PostgreSQL.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository returns a UsageRepository that uses the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Uses returns the customer's recorded use count for the discount, zero when
// no row exists.
func (r *UsageRepository) Uses(ctx context.Context, customerID, discountID int64) (int, error) {
	var uses int
	err := r.pool.QueryRow(ctx, customerUsesSQL, customerID, discountID).Scan(&uses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("loading uses for customer %d discount %d: %w", customerID, discountID, err)
	}
	return uses, nil
}

// RecordUse creates the usage row with one use or atomically increments it.
func (r *UsageRepository) RecordUse(ctx context.Context, customerID, discountID int64) error {
	if _, err := r.pool.Exec(ctx, recordUseSQL, customerID, discountID); err != nil {
		return fmt.Errorf("recording use for customer %d discount %d: %w", customerID, discountID, err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/promotion-engine/internal/domain/sale"
)

const (
	loadAllSalesSQL = `SELECT s.id, s.name, s.description, s.date_from, s.date_to,
		s.discount_type, s.discount_amount,
		s.all_groups, s.all_products, s.all_producttypes, s.enabled,
		sp.product_id, spt.product_type_id, sug.user_group_id
		FROM sales s
		LEFT JOIN sale_products sp ON sp.sale_id = s.id
		LEFT JOIN sale_producttypes spt ON spt.sale_id = s.id
		LEFT JOIN sale_usergroups sug ON sug.sale_id = s.id
		ORDER BY s.id ASC`

	insertSaleSQL = `INSERT INTO sales (name, description, date_from, date_to,
		discount_type, discount_amount, all_groups, all_products, all_producttypes, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	updateSaleSQL = `UPDATE sales SET name = $2, description = $3,
		date_from = $4, date_to = $5, discount_type = $6, discount_amount = $7,
		all_groups = $8, all_products = $9, all_producttypes = $10, enabled = $11,
		updated_at = NOW()
		WHERE id = $1`

	deleteSaleSQL = `DELETE FROM sales WHERE id = $1`
)

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository implements sale.Repository backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// LoadAll returns every sale with the relation ID sets folded out of the
// joined rows and deduplicated, in insertion order.
func (r *SaleRepository) LoadAll(ctx context.Context) ([]sale.Sale, error) {
	rows, err := r.pool.Query(ctx, loadAllSalesSQL)
	if err != nil {
		return nil, fmt.Errorf("loading sales: %w", err)
	}
	defer rows.Close()

	var (
		order     []int64
		byID      = make(map[int64]*sale.Sale)
		relations = make(map[int64]*saleIDSets)
	)
	for rows.Next() {
		var (
			s             sale.Sale
			discountType  string
			productID     *int64
			productTypeID *int64
			userGroupID   *int64
		)
		err := rows.Scan(
			&s.ID, &s.Name, &s.Description, &s.DateFrom, &s.DateTo,
			&discountType, &s.DiscountAmount,
			&s.AllGroups, &s.AllProducts, &s.AllProductTypes, &s.Enabled,
			&productID, &productTypeID, &userGroupID,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning sale row: %w", err)
		}
		s.DiscountType = sale.Type(discountType)

		if _, seen := byID[s.ID]; !seen {
			byID[s.ID] = &s
			relations[s.ID] = newSaleIDSets()
			order = append(order, s.ID)
		}
		relations[s.ID].add(productID, productTypeID, userGroupID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading sales: %w", err)
	}

	all := make([]sale.Sale, 0, len(order))
	for _, id := range order {
		s := byID[id]
		relations[id].apply(s)
		all = append(all, *s)
	}
	return all, nil
}

// Save upserts the primary row and rewrites all three junction tables inside
// one transaction.
func (r *SaleRepository) Save(ctx context.Context, s *sale.Sale) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if s.ID == 0 {
		err = tx.QueryRow(ctx, insertSaleSQL,
			s.Name, s.Description, s.DateFrom, s.DateTo,
			string(s.DiscountType), s.DiscountAmount,
			s.AllGroups, s.AllProducts, s.AllProductTypes, s.Enabled,
		).Scan(&s.ID)
		if err != nil {
			return fmt.Errorf("inserting sale: %w", err)
		}
	} else {
		tag, err := tx.Exec(ctx, updateSaleSQL,
			s.ID, s.Name, s.Description, s.DateFrom, s.DateTo,
			string(s.DiscountType), s.DiscountAmount,
			s.AllGroups, s.AllProducts, s.AllProductTypes, s.Enabled,
		)
		if err != nil {
			return fmt.Errorf("updating sale %d: %w", s.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return sale.ErrNotFound
		}
	}

	if err := rewriteRelations(ctx, tx, "sale_products", "sale_id", "product_id", s.ID, s.ProductIDs); err != nil {
		return err
	}
	if err := rewriteRelations(ctx, tx, "sale_producttypes", "sale_id", "product_type_id", s.ID, s.ProductTypeIDs); err != nil {
		return err
	}
	if err := rewriteRelations(ctx, tx, "sale_usergroups", "sale_id", "user_group_id", s.ID, s.GroupIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing sale %d: %w", s.ID, err)
	}
	return nil
}

// Delete removes the sale; junction rows cascade. Reports whether a row
// existed.
func (r *SaleRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteSaleSQL, id)
	if err != nil {
		return false, fmt.Errorf("deleting sale %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

type saleIDSets struct {
	products     map[int64]struct{}
	productTypes map[int64]struct{}
	groups       map[int64]struct{}

	productOrder     []int64
	productTypeOrder []int64
	groupOrder       []int64
}

func newSaleIDSets() *saleIDSets {
	return &saleIDSets{
		products:     make(map[int64]struct{}),
		productTypes: make(map[int64]struct{}),
		groups:       make(map[int64]struct{}),
	}
}

func (s *saleIDSets) add(productID, productTypeID, userGroupID *int64) {
	if productID != nil {
		if _, ok := s.products[*productID]; !ok {
			s.products[*productID] = struct{}{}
			s.productOrder = append(s.productOrder, *productID)
		}
	}
	if productTypeID != nil {
		if _, ok := s.productTypes[*productTypeID]; !ok {
			s.productTypes[*productTypeID] = struct{}{}
			s.productTypeOrder = append(s.productTypeOrder, *productTypeID)
		}
	}
	if userGroupID != nil {
		if _, ok := s.groups[*userGroupID]; !ok {
			s.groups[*userGroupID] = struct{}{}
			s.groupOrder = append(s.groupOrder, *userGroupID)
		}
	}
}

func (s *saleIDSets) apply(sl *sale.Sale) {
	sl.ProductIDs = s.productOrder
	sl.ProductTypeIDs = s.productTypeOrder
	sl.GroupIDs = s.groupOrder
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
)

const discountColumns = `d.id, d.name, d.description, d.code,
	d.per_user_limit, d.per_email_limit, d.total_use_limit, d.total_uses,
	d.date_from, d.date_to,
	d.base_discount, d.per_item_discount, d.percent_discount, d.percentage_off_subject,
	d.free_shipping, d.exclude_on_sale,
	d.all_groups, d.all_purchasables, d.all_categories,
	d.enabled, d.stop_processing, d.sort_order`

const (
	loadAllDiscountsSQL = `SELECT ` + discountColumns + `,
		dp.purchasable_id, dc.category_id, dug.user_group_id
		FROM discounts d
		LEFT JOIN discount_purchasables dp ON dp.discount_id = d.id
		LEFT JOIN discount_categories dc ON dc.discount_id = d.id
		LEFT JOIN discount_usergroups dug ON dug.discount_id = d.id
		ORDER BY d.sort_order ASC, d.id ASC`

	findDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discounts d WHERE d.code = $1 AND d.enabled = TRUE`

	findAnyDiscountByCodeSQL = `SELECT ` + discountColumns + `
		FROM discounts d WHERE d.code = $1`

	discountRelationsSQL = `SELECT dp.purchasable_id, dc.category_id, dug.user_group_id
		FROM discounts d
		LEFT JOIN discount_purchasables dp ON dp.discount_id = d.id
		LEFT JOIN discount_categories dc ON dc.discount_id = d.id
		LEFT JOIN discount_usergroups dug ON dug.discount_id = d.id
		WHERE d.id = $1`

	insertDiscountSQL = `INSERT INTO discounts (name, description, code,
		per_user_limit, per_email_limit, total_use_limit,
		date_from, date_to,
		base_discount, per_item_discount, percent_discount, percentage_off_subject,
		free_shipping, exclude_on_sale,
		all_groups, all_purchasables, all_categories,
		enabled, stop_processing, sort_order)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`

	updateDiscountSQL = `UPDATE discounts SET name = $2, description = $3,
		code = NULLIF($4, ''),
		per_user_limit = $5, per_email_limit = $6, total_use_limit = $7,
		date_from = $8, date_to = $9,
		base_discount = $10, per_item_discount = $11, percent_discount = $12,
		percentage_off_subject = $13,
		free_shipping = $14, exclude_on_sale = $15,
		all_groups = $16, all_purchasables = $17, all_categories = $18,
		enabled = $19, stop_processing = $20, sort_order = $21,
		updated_at = NOW()
		WHERE id = $1`

	deleteDiscountSQL = `DELETE FROM discounts WHERE id = $1`

	reorderDiscountSQL = `UPDATE discounts SET sort_order = $2 WHERE id = $1`

	incrementTotalUsesSQL = `UPDATE discounts SET total_uses = total_uses + 1 WHERE code = $1`

	clearDiscountUsesSQL  = `DELETE FROM customer_discountuses WHERE discount_id = $1`
	resetDiscountTotalSQL = `UPDATE discounts SET total_uses = 0 WHERE id = $1`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// LoadAll returns every discount ordered by sort order then ID, with the
// relation ID sets folded out of the joined rows and deduplicated.
func (r *DiscountRepository) LoadAll(ctx context.Context) ([]discount.Discount, error) {
	rows, err := r.pool.Query(ctx, loadAllDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("loading discounts: %w", err)
	}
	defer rows.Close()

	var (
		order     []int64
		byID      = make(map[int64]*discount.Discount)
		relations = make(map[int64]*idSets)
	)
	for rows.Next() {
		d, rel, err := scanDiscountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning discount row: %w", err)
		}
		if _, seen := byID[d.ID]; !seen {
			byID[d.ID] = d
			relations[d.ID] = newIDSets()
			order = append(order, d.ID)
		}
		relations[d.ID].add(rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading discounts: %w", err)
	}

	all := make([]discount.Discount, 0, len(order))
	for _, id := range order {
		d := byID[id]
		relations[id].apply(d)
		all = append(all, *d)
	}
	return all, nil
}

// FindByCode returns the enabled discount carrying exactly this code, with
// relations populated, or discount.ErrNotFound.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	return r.findByCode(ctx, findDiscountByCodeSQL, code)
}

// FindAnyByCode looks the code up regardless of the enabled flag.
func (r *DiscountRepository) FindAnyByCode(ctx context.Context, code string) (*discount.Discount, error) {
	return r.findByCode(ctx, findAnyDiscountByCodeSQL, code)
}

func (r *DiscountRepository) findByCode(ctx context.Context, query, code string) (*discount.Discount, error) {
	row := r.pool.QueryRow(ctx, query, code)
	d, err := scanDiscount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	if err := r.populateRelations(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DiscountRepository) populateRelations(ctx context.Context, d *discount.Discount) error {
	rows, err := r.pool.Query(ctx, discountRelationsSQL, d.ID)
	if err != nil {
		return fmt.Errorf("loading relations for discount %d: %w", d.ID, err)
	}
	defer rows.Close()

	sets := newIDSets()
	for rows.Next() {
		var rel relationRow
		if err := rows.Scan(&rel.purchasableID, &rel.categoryID, &rel.userGroupID); err != nil {
			return fmt.Errorf("scanning relation row: %w", err)
		}
		sets.add(rel)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading relations for discount %d: %w", d.ID, err)
	}

	sets.apply(d)
	return nil
}

// Save upserts the primary row and rewrites all three junction tables inside
// one transaction. Any failure rolls the whole write back.
func (r *DiscountRepository) Save(ctx context.Context, d *discount.Discount) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if d.ID == 0 {
		err = tx.QueryRow(ctx, insertDiscountSQL,
			d.Name, d.Description, d.Code,
			d.PerUserLimit, d.PerEmailLimit, d.TotalUseLimit,
			d.DateFrom, d.DateTo,
			d.BaseDiscount, d.PerItemDiscount, d.PercentDiscount, string(d.PercentageOffSubject),
			d.FreeShipping, d.ExcludeOnSale,
			d.AllGroups, d.AllPurchasables, d.AllCategories,
			d.Enabled, d.StopProcessing, d.SortOrder,
		).Scan(&d.ID)
		if err != nil {
			return fmt.Errorf("inserting discount: %w", err)
		}
	} else {
		tag, err := tx.Exec(ctx, updateDiscountSQL,
			d.ID, d.Name, d.Description, d.Code,
			d.PerUserLimit, d.PerEmailLimit, d.TotalUseLimit,
			d.DateFrom, d.DateTo,
			d.BaseDiscount, d.PerItemDiscount, d.PercentDiscount, string(d.PercentageOffSubject),
			d.FreeShipping, d.ExcludeOnSale,
			d.AllGroups, d.AllPurchasables, d.AllCategories,
			d.Enabled, d.StopProcessing, d.SortOrder,
		)
		if err != nil {
			return fmt.Errorf("updating discount %d: %w", d.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return discount.ErrNotFound
		}
	}

	if err := rewriteRelations(ctx, tx, "discount_purchasables", "discount_id", "purchasable_id", d.ID, d.PurchasableIDs); err != nil {
		return err
	}
	if err := rewriteRelations(ctx, tx, "discount_categories", "discount_id", "category_id", d.ID, d.CategoryIDs); err != nil {
		return err
	}
	if err := rewriteRelations(ctx, tx, "discount_usergroups", "discount_id", "user_group_id", d.ID, d.UserGroupIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing discount %d: %w", d.ID, err)
	}
	return nil
}

// Delete removes the discount; junction rows cascade. Reports whether a row
// existed.
func (r *DiscountRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteDiscountSQL, id)
	if err != nil {
		return false, fmt.Errorf("deleting discount %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reorder assigns sort order i+1 to the discount at position i, all within
// one transaction so readers never observe a half-applied ordering.
func (r *DiscountRepository) Reorder(ctx context.Context, ids []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, id := range ids {
		if _, err := tx.Exec(ctx, reorderDiscountSQL, id, i+1); err != nil {
			return fmt.Errorf("reordering discount %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reorder: %w", err)
	}
	return nil
}

// IncrementTotalUses bumps the aggregate counter with a single atomic
// statement, never read-modify-write.
func (r *DiscountRepository) IncrementTotalUses(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, incrementTotalUsesSQL, code); err != nil {
		return fmt.Errorf("incrementing total uses for %q: %w", code, err)
	}
	return nil
}

// ClearUsage deletes the discount's per-customer usage rows and resets its
// aggregate counter.
func (r *DiscountRepository) ClearUsage(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, clearDiscountUsesSQL, id); err != nil {
		return fmt.Errorf("clearing usage rows for discount %d: %w", id, err)
	}
	if _, err := r.pool.Exec(ctx, resetDiscountTotalSQL, id); err != nil {
		return fmt.Errorf("resetting total uses for discount %d: %w", id, err)
	}
	return nil
}

// rewriteRelations replaces every junction row for the owner with the given
// ID set. Runs inside the caller's transaction.
func rewriteRelations(ctx context.Context, tx pgx.Tx, table, ownerCol, valueCol string, ownerID int64, ids []int64) error {
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerCol), ownerID); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				table, ownerCol, valueCol), ownerID, id); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

// relationRow holds the nullable relation columns of one joined row.
type relationRow struct {
	purchasableID *int64
	categoryID    *int64
	userGroupID   *int64
}

// idSets accumulates deduplicated relation IDs for one discount.
type idSets struct {
	purchasables map[int64]struct{}
	categories   map[int64]struct{}
	userGroups   map[int64]struct{}

	purchasableOrder []int64
	categoryOrder    []int64
	userGroupOrder   []int64
}

func newIDSets() *idSets {
	return &idSets{
		purchasables: make(map[int64]struct{}),
		categories:   make(map[int64]struct{}),
		userGroups:   make(map[int64]struct{}),
	}
}

func (s *idSets) add(rel relationRow) {
	if rel.purchasableID != nil {
		if _, ok := s.purchasables[*rel.purchasableID]; !ok {
			s.purchasables[*rel.purchasableID] = struct{}{}
			s.purchasableOrder = append(s.purchasableOrder, *rel.purchasableID)
		}
	}
	if rel.categoryID != nil {
		if _, ok := s.categories[*rel.categoryID]; !ok {
			s.categories[*rel.categoryID] = struct{}{}
			s.categoryOrder = append(s.categoryOrder, *rel.categoryID)
		}
	}
	if rel.userGroupID != nil {
		if _, ok := s.userGroups[*rel.userGroupID]; !ok {
			s.userGroups[*rel.userGroupID] = struct{}{}
			s.userGroupOrder = append(s.userGroupOrder, *rel.userGroupID)
		}
	}
}

func (s *idSets) apply(d *discount.Discount) {
	d.PurchasableIDs = s.purchasableOrder
	d.CategoryIDs = s.categoryOrder
	d.UserGroupIDs = s.userGroupOrder
}

// scanDiscountRow scans one joined LoadAll row: discount columns followed by
// the three nullable relation columns.
func scanDiscountRow(rows pgx.Rows) (*discount.Discount, relationRow, error) {
	var (
		d    discount.Discount
		rel  relationRow
		code *string
		subj string
	)
	err := rows.Scan(
		&d.ID, &d.Name, &d.Description, &code,
		&d.PerUserLimit, &d.PerEmailLimit, &d.TotalUseLimit, &d.TotalUses,
		&d.DateFrom, &d.DateTo,
		&d.BaseDiscount, &d.PerItemDiscount, &d.PercentDiscount, &subj,
		&d.FreeShipping, &d.ExcludeOnSale,
		&d.AllGroups, &d.AllPurchasables, &d.AllCategories,
		&d.Enabled, &d.StopProcessing, &d.SortOrder,
		&rel.purchasableID, &rel.categoryID, &rel.userGroupID,
	)
	if err != nil {
		return nil, relationRow{}, err
	}
	finishDiscount(&d, code, subj)
	return &d, rel, nil
}

// scanDiscount scans a single-discount row without relation columns.
func scanDiscount(row pgx.Row) (*discount.Discount, error) {
	var (
		d    discount.Discount
		code *string
		subj string
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.Description, &code,
		&d.PerUserLimit, &d.PerEmailLimit, &d.TotalUseLimit, &d.TotalUses,
		&d.DateFrom, &d.DateTo,
		&d.BaseDiscount, &d.PerItemDiscount, &d.PercentDiscount, &subj,
		&d.FreeShipping, &d.ExcludeOnSale,
		&d.AllGroups, &d.AllPurchasables, &d.AllCategories,
		&d.Enabled, &d.StopProcessing, &d.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	finishDiscount(&d, code, subj)
	return &d, nil
}

func finishDiscount(d *discount.Discount, code *string, subj string) {
	if code != nil {
		d.Code = *code
	}
	d.PercentageOffSubject = discount.PercentageOffSubject(subj)
	normalizeTimes(d)
}

// normalizeTimes converts nullable timestamps to UTC for stable comparisons.
func normalizeTimes(d *discount.Discount) {
	if d.DateFrom != nil {
		t := d.DateFrom.UTC()
		d.DateFrom = &t
	}
	if d.DateTo != nil {
		t := d.DateTo.UTC()
		d.DateTo = &t
	}
}

//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
	"github.com/commercekit/promotion-engine/internal/domain/sale"
)

// startPostgres launches a throwaway PostgreSQL container and returns a
// migrated pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "promo",
				"POSTGRES_PASSWORD": "promo",
				"POSTGRES_DB":       "promo",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://promo:promo@%s:%s/promo?sslmode=disable", host, port.Port())

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = NewPool(ctx, url)
		return err == nil && pool.Ping(ctx) == nil
	}, time.Minute, time.Second)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func timePtr(t time.Time) *time.Time { return &t }

func TestDiscountRepository_RoundTrip(t *testing.T) {
	pool := startPostgres(t)
	repo := NewDiscountRepository(pool)
	ctx := context.Background()

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	d := &discount.Discount{
		Name:                 "Spring",
		Description:          "spring promo",
		Code:                 "SPRING25",
		DateFrom:             timePtr(from),
		DateTo:               timePtr(to),
		TotalUseLimit:        100,
		PerUserLimit:         1,
		PerEmailLimit:        2,
		BaseDiscount:         decimal.NewFromInt(5),
		PerItemDiscount:      decimal.RequireFromString("0.5"),
		PercentDiscount:      decimal.RequireFromString("0.25"),
		PercentageOffSubject: discount.SubjectDiscountedPrice,
		ExcludeOnSale:        true,
		UserGroupIDs:         []int64{10, 20},
		PurchasableIDs:       []int64{101, 102, 103},
		CategoryIDs:          []int64{7},
		Enabled:              true,
		SortOrder:            1,
	}
	d.Normalize()
	require.NoError(t, repo.Save(ctx, d))
	require.NotZero(t, d.ID)

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	assert.Equal(t, d.Code, got.Code)
	assert.Equal(t, d.Name, got.Name)
	assert.ElementsMatch(t, d.UserGroupIDs, got.UserGroupIDs)
	assert.ElementsMatch(t, d.PurchasableIDs, got.PurchasableIDs)
	assert.ElementsMatch(t, d.CategoryIDs, got.CategoryIDs)
	assert.False(t, got.AllGroups)
	assert.True(t, got.PercentDiscount.Equal(d.PercentDiscount))
	require.NotNil(t, got.DateFrom)
	assert.True(t, got.DateFrom.Equal(from))

	// Update rewrites the relation sets.
	d.PurchasableIDs = []int64{104}
	d.UserGroupIDs = nil
	d.Normalize()
	require.NoError(t, repo.Save(ctx, d))

	all, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []int64{104}, all[0].PurchasableIDs)
	assert.Empty(t, all[0].UserGroupIDs)
	assert.True(t, all[0].AllGroups)
}

func TestDiscountRepository_FindByCode(t *testing.T) {
	pool := startPostgres(t)
	repo := NewDiscountRepository(pool)
	ctx := context.Background()

	enabled := &discount.Discount{Name: "On", Code: "LIVE", Enabled: true}
	enabled.Normalize()
	disabled := &discount.Discount{Name: "Off", Code: "DARK", Enabled: false}
	disabled.Normalize()
	require.NoError(t, repo.Save(ctx, enabled))
	require.NoError(t, repo.Save(ctx, disabled))

	got, err := repo.FindByCode(ctx, "LIVE")
	require.NoError(t, err)
	assert.Equal(t, enabled.ID, got.ID)

	_, err = repo.FindByCode(ctx, "DARK")
	assert.ErrorIs(t, err, discount.ErrNotFound)

	got, err = repo.FindAnyByCode(ctx, "DARK")
	require.NoError(t, err)
	assert.Equal(t, disabled.ID, got.ID)
}

func TestDiscountRepository_ReorderAndCounters(t *testing.T) {
	pool := startPostgres(t)
	repo := NewDiscountRepository(pool)
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		d := &discount.Discount{Name: name, Code: name, Enabled: true, TotalUseLimit: 5}
		d.Normalize()
		require.NoError(t, repo.Save(ctx, d))
		ids = append(ids, d.ID)
	}

	// Reverse the declared order.
	require.NoError(t, repo.Reorder(ctx, []int64{ids[2], ids[1], ids[0]}))

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	require.NoError(t, repo.IncrementTotalUses(ctx, "b"))
	require.NoError(t, repo.IncrementTotalUses(ctx, "b"))

	got, err := repo.FindByCode(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalUses)

	require.NoError(t, repo.ClearUsage(ctx, got.ID))
	got, err = repo.FindByCode(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, got.TotalUses)
}

func TestUsageRepository_ConcurrentFirstUse(t *testing.T) {
	pool := startPostgres(t)
	discounts := NewDiscountRepository(pool)
	usage := NewUsageRepository(pool)
	ctx := context.Background()

	d := &discount.Discount{Name: "Once", Code: "ONCE", PerUserLimit: 1, Enabled: true}
	d.Normalize()
	require.NoError(t, discounts.Save(ctx, d))
	_, err := pool.Exec(ctx, `INSERT INTO customers (id, user_id, email) VALUES (7, 70, 'a@example.com')`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- usage.RecordUse(ctx, 7, d.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	uses, err := usage.Uses(ctx, 7, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, uses, "both writers must land on one row")

	require.NoError(t, discounts.ClearUsage(ctx, d.ID))
	uses, err = usage.Uses(ctx, 7, d.ID)
	require.NoError(t, err)
	assert.Zero(t, uses)
}

func TestSaleRepository_RoundTrip(t *testing.T) {
	pool := startPostgres(t)
	repo := NewSaleRepository(pool)
	ctx := context.Background()

	s := &sale.Sale{
		Name:           "Summer",
		DiscountType:   sale.TypePercent,
		DiscountAmount: decimal.RequireFromString("0.1"),
		ProductIDs:     []int64{7, 8},
		ProductTypeIDs: []int64{2},
		Enabled:        true,
	}
	s.Normalize()
	require.NoError(t, repo.Save(ctx, s))
	require.NotZero(t, s.ID)

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.ElementsMatch(t, []int64{7, 8}, all[0].ProductIDs)
	assert.Equal(t, []int64{2}, all[0].ProductTypeIDs)
	assert.True(t, all[0].AllGroups)
	assert.True(t, all[0].DiscountAmount.Equal(s.DiscountAmount))

	deleted, err := repo.Delete(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestHostRepositories(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO customers (id, user_id, email) VALUES
			(1, 100, 'vip@example.com'),
			(2, NULL, 'guest@example.com');
		INSERT INTO customer_usergroups (customer_id, user_group_id) VALUES (1, 10), (1, 20);
		INSERT INTO purchasable_categories (purchasable_id, category_id) VALUES
			(101, 7), (102, 7), (103, 8);
		INSERT INTO orders (id, customer_id, email, coupon_code, is_completed) VALUES
			(gen_random_uuid(), 1, 'VIP@example.com', 'spring25', TRUE),
			(gen_random_uuid(), 1, 'vip@example.com', 'SPRING25', TRUE),
			(gen_random_uuid(), 1, 'vip@example.com', 'SPRING25', FALSE);
	`)
	require.NoError(t, err)

	customers := NewCustomerRepository(pool)

	groups, err := customers.GroupIDs(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{10, 20}, groups)

	registered, err := customers.IsRegistered(ctx, 1)
	require.NoError(t, err)
	assert.True(t, registered)
	registered, err = customers.IsRegistered(ctx, 2)
	require.NoError(t, err)
	assert.False(t, registered)
	registered, err = customers.IsRegistered(ctx, 99)
	require.NoError(t, err)
	assert.False(t, registered)

	email, err := customers.Email(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", email)

	categories := NewCategoryIndex(pool)
	related, err := categories.RelatedCategories(ctx, []int64{101, 103})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{7, 8}, related)

	history := NewOrderHistoryRepository(pool)
	uses, err := history.CouponUsesByEmail(ctx, "Vip@Example.com", "SPRING25")
	require.NoError(t, err)
	assert.Equal(t, 2, uses, "matching is case-insensitive and counts completed orders only")
}

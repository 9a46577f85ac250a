// Command seed-db populates a database with sample discounts, sales, and the
// host-system rows they reference, for local development.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
	"github.com/commercekit/promotion-engine/internal/domain/sale"
	"github.com/commercekit/promotion-engine/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedHostRows(ctx, pool); err != nil {
		return errors.Wrap(err, "seed host rows")
	}
	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}
	if err := seedSales(ctx, pool); err != nil {
		return errors.Wrap(err, "seed sales")
	}

	return nil
}

// seedHostRows inserts the customer, group, and category rows that the
// promotion scoping references. In production these tables belong to the
// commerce platform.
func seedHostRows(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding host rows")

	statements := []string{
		`INSERT INTO customers (id, user_id, email) VALUES
			(1, 100, 'vip@example.com'),
			(2, NULL, 'guest@example.com')
			ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO customer_usergroups (customer_id, user_group_id) VALUES (1, 10)
			ON CONFLICT DO NOTHING`,
		`INSERT INTO purchasable_categories (purchasable_id, category_id) VALUES
			(101, 7), (102, 7), (103, 8)
			ON CONFLICT DO NOTHING`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "exec seed statement")
		}
	}
	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewDiscountRepository(pool)
	service := discount.NewService(repo, discount.NewCatalog(repo))

	from := time.Now().AddDate(0, -1, 0)
	to := time.Now().AddDate(0, 1, 0)

	discounts := []*discount.Discount{
		{
			Name:            "Spring sale code",
			Description:     "25% off everything during spring",
			Code:            "SPRING25",
			PercentDiscount: decimal.RequireFromString("0.25"),
			DateFrom:        &from,
			DateTo:          &to,
			Enabled:         true,
		},
		{
			Name:          "First order",
			Description:   "One-time $10 off for registered customers",
			Code:          "WELCOME10",
			BaseDiscount:  decimal.NewFromInt(10),
			PerUserLimit:  1,
			PerEmailLimit: 1,
			Enabled:       true,
		},
		{
			Name:            "VIP members",
			Description:     "15% off for the VIP group, full-price items only",
			Code:            "VIP15",
			PercentDiscount: decimal.RequireFromString("0.15"),
			ExcludeOnSale:   true,
			UserGroupIDs:    []int64{10},
			Enabled:         true,
		},
		{
			Name:            "Category seven promo",
			Description:     "5% off purchasables in category 7, first 100 orders",
			Code:            "CAT7",
			PercentDiscount: decimal.RequireFromString("0.05"),
			TotalUseLimit:   100,
			CategoryIDs:     []int64{7},
			Enabled:         true,
		},
	}

	for _, d := range discounts {
		if err := service.Save(ctx, d); err != nil {
			return errors.Wrapf(err, "save discount %s", d.Code)
		}
		slog.Info("seeded discount", slog.String("code", d.Code), slog.Int64("id", d.ID))
	}
	return nil
}

func seedSales(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewSaleRepository(pool)
	service := sale.NewService(repo, sale.NewCatalog(repo))

	from := time.Now().AddDate(0, 0, -7)
	to := time.Now().AddDate(0, 0, 7)

	sales := []*sale.Sale{
		{
			Name:           "Summer clearance",
			Description:    "10% off the whole catalog",
			DiscountType:   sale.TypePercent,
			DiscountAmount: decimal.RequireFromString("0.1"),
			DateFrom:       &from,
			DateTo:         &to,
			Enabled:        true,
		},
		{
			Name:           "Type two markdown",
			Description:    "Flat 5 off product type 2",
			DiscountType:   sale.TypeFlat,
			DiscountAmount: decimal.NewFromInt(5),
			ProductTypeIDs: []int64{2},
			Enabled:        true,
		},
	}

	for _, s := range sales {
		if err := service.Save(ctx, s); err != nil {
			return errors.Wrapf(err, "save sale %s", s.Name)
		}
		slog.Info("seeded sale", slog.String("name", s.Name), slog.Int64("id", s.ID))
	}
	return nil
}

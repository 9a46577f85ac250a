// Command coupon-ingest bulk-loads coupon discounts from gzipped JSON feed
// files. Each feed is a JSON array of {"code", "name", "percentOff"} objects;
// codes seen before are skipped, the rest become enabled percentage discounts.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/commercekit/promotion-engine/internal/domain/discount"
	"github.com/commercekit/promotion-engine/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	minCodeLen    = 4
	maxCodeLen    = 32
	progressEvery = 100_000
)

// feedEntry is one coupon record from a feed file.
type feedEntry struct {
	Code       string
	Name       string
	PercentOff decimal.Decimal
}

func main() {
	var (
		dataDir     = flag.String("data-dir", "data", "directory containing *.json.gz coupon feeds")
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	)
	flag.Parse()

	if *databaseURL == "" {
		slog.Error("database URL is required: pass -database-url or set DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *dataDir, *databaseURL); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.json.gz"))
	if err != nil {
		return errors.Wrap(err, "list feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.json.gz feeds found in %s", dataDir)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewDiscountRepository(pool)
	service := discount.NewService(repo, discount.NewCatalog(repo))

	// One parser goroutine per feed, one writer draining the channel. The
	// bloom filter dedups codes across feeds; its false positive rate means
	// a small fraction of codes may be skipped as already seen.
	entries := make(chan feedEntry, 1024)
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var seenMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var written uint64
		for e := range entries {
			d := &discount.Discount{
				Name:            e.Name,
				Code:            e.Code,
				PercentDiscount: e.PercentOff,
				Enabled:         true,
			}
			if d.Name == "" {
				d.Name = "Promo code " + e.Code
			}
			if err := service.Save(ctx, d); err != nil {
				return errors.Wrapf(err, "save discount %s", e.Code)
			}
			written++
			if written%progressEvery == 0 {
				slog.Info("write progress", slog.Uint64("written", written))
			}
		}
		slog.Info("write complete", slog.Uint64("written", written))
		return nil
	})

	var parsers errgroup.Group
	for _, file := range files {
		parsers.Go(func() error {
			return parseFeed(ctx, file, func(e feedEntry) bool {
				if len(e.Code) < minCodeLen || len(e.Code) > maxCodeLen {
					return false
				}
				seenMu.Lock()
				dup := seen.TestAndAddString(e.Code)
				seenMu.Unlock()
				if dup {
					return false
				}
				select {
				case entries <- e:
					return true
				case <-ctx.Done():
					return false
				}
			})
		})
	}

	parseErr := parsers.Wait()
	close(entries)
	if err := g.Wait(); err != nil {
		return err
	}
	return parseErr
}

// parseFeed streams one gzipped JSON array, calling emit for every decoded
// entry.
func parseFeed(ctx context.Context, path string, emit func(feedEntry) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var count uint64
	dec := jx.Decode(gz, 1<<16)
	err = dec.Arr(func(d *jx.Decoder) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		var e feedEntry
		err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "code":
				s, err := d.Str()
				if err != nil {
					return err
				}
				e.Code = s
			case "name":
				s, err := d.Str()
				if err != nil {
					return err
				}
				e.Name = s
			case "percentOff":
				raw, err := d.Num()
				if err != nil {
					return err
				}
				v, err := decimal.NewFromString(string(raw))
				if err != nil {
					return errors.Wrap(err, "parse percentOff")
				}
				e.PercentOff = v
			default:
				return d.Skip()
			}
			return nil
		})
		if err != nil {
			return err
		}

		emit(e)
		count++
		if count%progressEvery == 0 {
			slog.Info("parse progress",
				slog.String("file", filepath.Base(path)),
				slog.Uint64("entries", count),
			)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	slog.Info("parse complete",
		slog.String("file", filepath.Base(path)),
		slog.Uint64("entries", count),
	)
	return nil
}

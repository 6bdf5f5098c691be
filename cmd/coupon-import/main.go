// Command coupon-import bulk-loads campaign promo codes.
//
// Marketing exports each campaign as gzipped shard files with one code per
// line. Exports are redundant: every real code appears in at least two
// shards, so a code seen in only one file is treated as a corrupt line and
// dropped. Shards are large (hundreds of millions of lines), so membership
// across files is tested with bloom filters and only probable matches are
// confirmed with exact counting.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
	"github.com/noshheaven/coupon-service/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 4
	maxCodeLen    = 12
)

func main() {
	var (
		dataDir       string
		databaseURL   string
		percent       int64
		validDays     int
		bloomCapacity uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing campaign *.gz shard files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&percent, "percent", 10, "discount percentage for imported codes")
	flag.IntVar(&validDays, "valid-days", 30, "validity window in days for imported codes")
	flag.UintVar(&bloomCapacity, "bloom-capacity", 120_000_000, "expected codes per shard for bloom sizing")
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

	if err := run(ctx, dataDir, databaseURL, percent, validDays, bloomCapacity); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, percent int64, validDays int, bloomCapacity uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list shard files")
	}
	if len(files) < 2 {
		return errors.Errorf("need at least 2 shard files in %s, found %d", dataDir, len(files))
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, bloomCapacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: confirming codes across shards")

	codes, err := confirmCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "confirm codes")
	}

	slog.Info("confirmed codes", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return insertCoupons(ctx, repository.NewCouponRepository(pool), codes, percent, validDays)
}

// buildBloomFilters scans every shard concurrently and returns one bloom
// filter per file.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(capacity, bloomFPR)
			n, err := scanShard(ctx, file, func(code string) {
				f.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", file)
			}
			filters[i] = f
			slog.Info("bloom filter built", slog.String("file", file), slog.Int64("codes", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// confirmCodes re-scans each shard and keeps codes that another shard's
// bloom filter also claims. Bloom hits are only probable, so candidates are
// confirmed by exact occurrence counting across the per-file candidate sets.
func confirmCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	candidates := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			local := make(map[string]struct{})
			_, err := scanShard(ctx, file, func(code string) {
				for j, f := range filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						local[code] = struct{}{}
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", file)
			}
			candidates[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, local := range candidates {
		for code := range local {
			counts[code]++
		}
	}

	confirmed := make([]string, 0, len(counts))
	for code, n := range counts {
		if n >= 2 {
			confirmed = append(confirmed, code)
		}
	}
	return confirmed, nil
}

// scanShard streams a gzipped shard, invoking fn for every well-formed code.
func scanShard(ctx context.Context, file string, fn func(code string)) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer gz.Close()

	var n int64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if n%progressEvery == 0 && n > 0 {
			slog.Info("scanning", slog.String("file", file), slog.Int64("lines", n))
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		n++

		code := coupon.NormalizeCode(scanner.Text())
		if !wellFormed(code) {
			continue
		}
		fn(code)
	}
	return n, scanner.Err()
}

// wellFormed accepts uppercase alphanumeric codes within the length bounds.
func wellFormed(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for i := range len(code) {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func insertCoupons(ctx context.Context, repo *repository.CouponRepository, codes []string, percent int64, validDays int) error {
	now := time.Now()
	until := now.AddDate(0, 0, validDays)
	value := decimal.NewFromInt(percent)
	description := fmt.Sprintf("Campaign code: %d%% off", percent)

	inserted := 0
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := repo.FindByCode(ctx, code)
		if err == nil {
			continue // already imported
		}
		if !errors.Is(err, coupon.ErrNotFound) {
			return errors.Wrapf(err, "check code %s", code)
		}

		c := &coupon.Coupon{
			ID:            uuid.New().String(),
			Code:          code,
			Type:          coupon.TypeDiscount,
			Status:        coupon.StatusActive,
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: value,
			Description:   description,
			ValidFrom:     now,
			ValidUntil:    &until,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repo.Insert(ctx, c); err != nil {
			return errors.Wrapf(err, "insert code %s", code)
		}
		inserted++
	}

	slog.Info("codes imported", slog.Int("inserted", inserted), slog.Int("skipped", len(codes)-inserted))
	return nil
}

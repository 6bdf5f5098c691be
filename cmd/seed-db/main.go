// Command seed-db loads a demo coupon set and an API key into the database.
// The coupons cover every discount type and constraint combination so a fresh
// environment can exercise the whole validation surface.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
	"github.com/noshheaven/coupon-service/internal/repository"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or NOSH_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or NOSH_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("NOSH_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or NOSH_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("NOSH_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	hash := hex.EncodeToString(mac.Sum(nil))

	apikeys := repository.NewAPIKeyRepository(pool)
	if err := apikeys.Upsert(ctx, hash, "seed"); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	coupons := repository.NewCouponRepository(pool)
	inserted := 0
	for _, c := range demoCoupons() {
		_, err := coupons.FindByCode(ctx, c.Code)
		if err == nil {
			continue // already seeded
		}
		if !errors.Is(err, coupon.ErrNotFound) {
			return errors.Wrapf(err, "check coupon %s", c.Code)
		}
		if err := coupons.Insert(ctx, c); err != nil {
			return errors.Wrapf(err, "insert coupon %s", c.Code)
		}
		inserted++
	}

	slog.Info("coupons seeded", slog.Int("inserted", inserted))
	return nil
}

func demoCoupons() []*coupon.Coupon {
	now := time.Now()
	lastWeek := now.AddDate(0, 0, -7)
	nextMonth := now.AddDate(0, 1, 0)
	tenPounds := decimal.NewFromInt(10)
	twentyPounds := decimal.NewFromInt(20)

	newCoupon := func(code string, typ coupon.Type, dt coupon.DiscountType, value int64) *coupon.Coupon {
		return &coupon.Coupon{
			ID:            uuid.New().String(),
			Code:          code,
			Type:          typ,
			Status:        coupon.StatusActive,
			DiscountType:  dt,
			DiscountValue: decimal.NewFromInt(value),
			ValidFrom:     lastWeek,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	save10 := newCoupon("SAVE10", coupon.TypeDiscount, coupon.DiscountPercentage, 10)
	save10.MaxDiscount = &tenPounds
	save10.Description = "10% off your order, up to £10"

	welcome5 := newCoupon("WELCOME5", coupon.TypeDiscount, coupon.DiscountFixedAmount, 5)
	welcome5.UserLimit = 1
	welcome5.Description = "£5 off your first order"

	freedel := newCoupon("FREEDEL", coupon.TypeDiscount, coupon.DiscountFreeDelivery, 0)
	freedel.MinOrderAmount = &twentyPounds
	freedel.Description = "Free delivery on orders over £20"

	flash50 := newCoupon("FLASH50", coupon.TypeDiscount, coupon.DiscountPercentage, 50)
	flash50.UsageLimit = 100
	flash50.ValidUntil = &nextMonth
	flash50.Description = "Flash sale: 50% off, first 100 orders"

	noshpass := newCoupon("NOSHPASS", coupon.TypeNoshPass, coupon.DiscountFreeDelivery, 0)
	noshpass.Description = "Nosh Pass: free delivery"

	return []*coupon.Coupon{save10, welcome5, freedel, flash50, noshpass}
}

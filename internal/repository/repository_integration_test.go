//go:build integration

package repository

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("nosh"),
		postgres.WithUsername("nosh"),
		postgres.WithPassword("nosh"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}

	testPool, err = NewPool(ctx, connStr)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

func insertTestCoupon(t *testing.T, mutate func(*coupon.Coupon)) *coupon.Coupon {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	c := &coupon.Coupon{
		ID:            uuid.New().String(),
		Code:          "IT" + uuid.New().String()[:8],
		Type:          coupon.TypeDiscount,
		Status:        coupon.StatusActive,
		DiscountType:  coupon.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		Description:   "integration test coupon",
		ValidFrom:     now.AddDate(0, 0, -1),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(c)
	}

	repo := NewCouponRepository(testPool)
	require.NoError(t, repo.Insert(context.Background(), c))
	return c
}

func TestCouponRepositoryRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	max := decimal.RequireFromString("9.99")
	min := decimal.NewFromInt(20)
	until := time.Now().UTC().Truncate(time.Microsecond).AddDate(0, 1, 0)
	want := insertTestCoupon(t, func(c *coupon.Coupon) {
		c.MaxDiscount = &max
		c.MinOrderAmount = &min
		c.UsageLimit = 100
		c.UserLimit = 1
		c.ValidUntil = &until
	})

	got, err := repo.FindByCode(ctx, want.Code)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, coupon.StatusActive, got.Status)
	assert.True(t, got.DiscountValue.Equal(want.DiscountValue))
	require.NotNil(t, got.MaxDiscount)
	assert.True(t, got.MaxDiscount.Equal(max))
	require.NotNil(t, got.MinOrderAmount)
	assert.True(t, got.MinOrderAmount.Equal(min))
	assert.Equal(t, 100, got.UsageLimit)
	assert.Equal(t, 1, got.UserLimit)
	require.NotNil(t, got.ValidUntil)
	assert.WithinDuration(t, until, *got.ValidUntil, time.Second)

	byID, err := repo.GetByID(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Code, byID.Code)
}

func TestCouponRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	_, err := repo.FindByCode(ctx, "DOESNOTEXIST")
	assert.ErrorIs(t, err, coupon.ErrNotFound)

	_, err = repo.GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestCouponRepositoryMarkExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testPool)

	c := insertTestCoupon(t, nil)
	require.NoError(t, repo.MarkExpired(ctx, c.ID, time.Now()))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusExpired, got.Status)
}

func TestCouponRepositoryConcurrentIncrements(t *testing.T) {
	// The counter bump runs inside the database, so parallel bumps from
	// separate connections must all land.
	const n = 32

	ctx := context.Background()
	repo := NewCouponRepository(testPool)
	c := insertTestCoupon(t, nil)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementUsage(ctx, c.ID, time.Now()))
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.UsageCount)
}

func TestUsageRepositoryCountByUserAndCoupon(t *testing.T) {
	ctx := context.Background()
	coupons := insertTestCoupon(t, nil)
	other := insertTestCoupon(t, nil)
	repo := NewUsageRepository(testPool)

	user := "user-" + uuid.New().String()[:8]
	orderID := uuid.New().String()
	for i, couponID := range []string{coupons.ID, coupons.ID, other.ID} {
		u := &coupon.Usage{
			ID:             uuid.New().String(),
			CouponID:       couponID,
			UserID:         user,
			UsedAt:         time.Now(),
			DiscountAmount: decimal.NewFromInt(int64(i + 1)),
		}
		if i == 0 {
			u.OrderID = &orderID
		}
		require.NoError(t, repo.Insert(ctx, u))
	}

	n, err := repo.CountByUserAndCoupon(ctx, user, coupons.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountByUserAndCoupon(ctx, user, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountByUserAndCoupon(ctx, "someone-else", coupons.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)

	hash := uuid.New().String()
	require.NoError(t, repo.Upsert(ctx, hash, "integration"))
	// Upserting the same hash again is a no-op, not an error.
	require.NoError(t, repo.Upsert(ctx, hash, "integration"))

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, info.KeyHash)
	assert.Equal(t, "integration", info.Name)

	_, err = repo.FindByHash(ctx, "missing-"+hash)
	assert.Error(t, err)
}

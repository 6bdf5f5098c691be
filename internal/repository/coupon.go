package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
)

const (
	couponColumns = `id, code, type, status, discount_type, discount_value,
		max_discount, min_order_amount, description,
		usage_limit, usage_count, user_limit,
		valid_from, valid_until, created_at, updated_at`

	findCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	markCouponExpiredSQL = `UPDATE coupons SET status = 'expired', updated_at = $2 WHERE id = $1`

	incrementCouponUsageSQL = `UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = $2 WHERE id = $1`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code. Codes are stored
// uppercase; callers normalize before lookup. Returns coupon.ErrNotFound
// when no coupon carries the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// GetByID fetches a coupon by id. Returns coupon.ErrNotFound when absent.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// MarkExpired patches a coupon's status to expired.
func (r *CouponRepository) MarkExpired(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, markCouponExpiredSQL, id, at)
	if err != nil {
		return fmt.Errorf("marking coupon %q expired: %w", id, err)
	}
	return nil
}

// IncrementUsage bumps the usage counter by one. The increment happens in
// the database, so concurrent bumps never lose updates.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, incrementCouponUsageSQL, id, at)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", id, err)
	}
	return nil
}

// Insert persists a new coupon record. Unknown discount types are rejected
// here so bulk loaders cannot write coupons the calculator would choke on.
func (r *CouponRepository) Insert(ctx context.Context, c *coupon.Coupon) error {
	if !c.DiscountType.Known() {
		return fmt.Errorf("inserting coupon %q: unknown discount type %q", c.Code, c.DiscountType)
	}
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, string(c.Type), string(c.Status), string(c.DiscountType), c.DiscountValue,
		c.MaxDiscount, c.MinOrderAmount, c.Description,
		c.UsageLimit, c.UsageCount, c.UserLimit,
		c.ValidFrom, c.ValidUntil, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c              coupon.Coupon
		typ            string
		status         string
		discountType   string
		maxDiscount    *decimal.Decimal
		minOrderAmount *decimal.Decimal
		usageLimit     int32
		usageCount     int32
		userLimit      int32
		validUntil     *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &typ, &status, &discountType, &c.DiscountValue,
		&maxDiscount, &minOrderAmount, &c.Description,
		&usageLimit, &usageCount, &userLimit,
		&c.ValidFrom, &validUntil, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.Type(typ)
	c.Status = coupon.Status(status)
	c.DiscountType = coupon.DiscountType(discountType)
	c.MaxDiscount = maxDiscount
	c.MinOrderAmount = minOrderAmount
	c.UsageLimit = int(usageLimit)
	c.UsageCount = int(usageCount)
	c.UserLimit = int(userLimit)
	c.ValidUntil = validUntil
	return c, err
}

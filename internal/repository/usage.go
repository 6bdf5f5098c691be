package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
)

const (
	insertUsageSQL = `INSERT INTO coupon_usage (id, coupon_id, user_id, order_id, used_at, discount_amount)
		VALUES ($1, $2, $3, $4, $5, $6)`

	countUsageByUserCouponSQL = `SELECT COUNT(*) FROM coupon_usage
		WHERE user_id = $1 AND coupon_id = $2`
)

var _ coupon.UsageRepository = (*UsageRepository)(nil)

// UsageRepository implements coupon.UsageRepository backed by PostgreSQL.
// Rows are append-only; nothing updates or deletes them.
type UsageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository returns a UsageRepository that uses the given pool.
func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

// Insert appends one redemption row to the ledger.
func (r *UsageRepository) Insert(ctx context.Context, u *coupon.Usage) error {
	_, err := r.pool.Exec(ctx, insertUsageSQL,
		u.ID, u.CouponID, u.UserID, u.OrderID, u.UsedAt, u.DiscountAmount,
	)
	if err != nil {
		return fmt.Errorf("inserting usage for coupon %q: %w", u.CouponID, err)
	}
	return nil
}

// CountByUserAndCoupon returns how many times a user has redeemed a coupon,
// served by the (user_id, coupon_id) index.
func (r *UsageRepository) CountByUserAndCoupon(ctx context.Context, userID, couponID string) (int, error) {
	var n int64
	err := r.pool.QueryRow(ctx, countUsageByUserCouponSQL, userID, couponID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting usage for user %q coupon %q: %w", userID, couponID, err)
	}
	return int(n), nil
}

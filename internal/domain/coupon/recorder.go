package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordUsageRequest captures one confirmed redemption. OrderID may be nil
// when usage is recorded before an order id exists.
type RecordUsageRequest struct {
	CouponID       string
	UserID         string
	OrderID        *string
	DiscountAmount decimal.Decimal
}

// Recorder durably records redemptions: one ledger row per redemption plus
// an atomic bump of the coupon's usage counter. Called once per successful
// order, after confirmation.
type Recorder struct {
	coupons Repository
	usages  UsageRepository
	now     func() time.Time
}

// NewRecorder creates a Recorder over the given repositories.
func NewRecorder(coupons Repository, usages UsageRepository) *Recorder {
	return &Recorder{coupons: coupons, usages: usages, now: time.Now}
}

// Record inserts the usage row and increments the coupon's counter. The two
// writes are sequential, not transactional: a failure after the insert
// leaves a ledger row without a counter bump, an under-count. Any error
// aborts the recording; retry or compensation is the caller's job.
func (r *Recorder) Record(ctx context.Context, req RecordUsageRequest) error {
	now := r.now()

	u := &Usage{
		ID:             uuid.New().String(),
		CouponID:       req.CouponID,
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		UsedAt:         now,
		DiscountAmount: req.DiscountAmount,
	}
	if err := r.usages.Insert(ctx, u); err != nil {
		return errors.Wrap(err, "insert usage record")
	}

	if err := r.coupons.IncrementUsage(ctx, req.CouponID, now); err != nil {
		return errors.Wrap(err, "increment usage count")
	}

	return nil
}

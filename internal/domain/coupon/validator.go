package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Validator answers "can this user apply this code to this cart right now?".
// Checks run in a fixed order and the first failure wins. Validation is
// read-only except for one permitted side effect: a coupon found past its
// ValidUntil is patched to StatusExpired on the way out.
type Validator struct {
	coupons Repository
	usages  UsageRepository
	now     func() time.Time
}

// NewValidator creates a Validator over the given repositories.
func NewValidator(coupons Repository, usages UsageRepository) *Validator {
	return &Validator{coupons: coupons, usages: usages, now: time.Now}
}

// Validate checks eligibility of code for userID. cartSubtotal is optional;
// when nil, the minimum-order-amount check is skipped entirely, so callers
// that care about that constraint must supply the subtotal.
//
// On success it returns the client-safe ValidatedCoupon projection. Expected
// failures come back as *IneligibilityError (check with IsIneligibility);
// anything else is an infrastructure error.
func (v *Validator) Validate(ctx context.Context, code, userID string, cartSubtotal *decimal.Decimal) (*ValidatedCoupon, error) {
	c, err := v.coupons.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.Status != StatusActive {
		return nil, ErrCodeInactive
	}

	now := v.now()
	if now.Before(c.ValidFrom) {
		return nil, ErrCodeNotYetValid
	}

	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		// Opportunistic expiry: the patch is best-effort, the verdict stands
		// even when it fails.
		if err := v.coupons.MarkExpired(ctx, c.ID, now); err != nil {
			zctx.From(ctx).Warn("mark coupon expired",
				zap.String("coupon_id", c.ID),
				zap.Error(err),
			)
		}
		return nil, ErrCodeExpired
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, ErrUsageLimitReached
	}

	if c.MinOrderAmount != nil && cartSubtotal != nil && cartSubtotal.LessThan(*c.MinOrderAmount) {
		return nil, minOrderNotMet(*c.MinOrderAmount)
	}

	if c.UserLimit > 0 {
		used, err := v.usages.CountByUserAndCoupon(ctx, userID, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count user redemptions")
		}
		if used >= c.UserLimit {
			return nil, ErrUserLimitReached
		}
	}

	return c.public(), nil
}

package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AppliedCoupon identifies the coupon a discount was computed from.
type AppliedCoupon struct {
	ID           string
	Code         string
	Type         Type
	DiscountType DiscountType
}

// CartDiscount is the monetary outcome of applying a coupon to a cart.
// FreeDelivery lets the caller waive the delivery line item independently of
// the amount, which covers the delivery fee when it was supplied and is zero
// otherwise.
type CartDiscount struct {
	Amount       decimal.Decimal
	FreeDelivery bool
	Coupon       AppliedCoupon
}

// Calculator computes the monetary discount for a coupon that already passed
// validation. Requiring a *ValidatedCoupon keeps callers from skipping the
// Validator; the Calculator itself only re-checks that the coupon still
// exists and is still active.
type Calculator struct {
	coupons Repository
}

// NewCalculator creates a Calculator over the given repository.
func NewCalculator(coupons Repository) *Calculator {
	return &Calculator{coupons: coupons}
}

// Apply computes the discount for the validated coupon against cartSubtotal.
// deliveryFee is optional and only consulted for free-delivery coupons.
// Amounts are exact decimals; no presentation rounding is applied.
//
// Returns ErrCouponUnavailable when the coupon no longer exists or is no
// longer active. That indicates a caller error or a state change, not user
// ineligibility.
func (c *Calculator) Apply(ctx context.Context, vc *ValidatedCoupon, cartSubtotal decimal.Decimal, deliveryFee *decimal.Decimal) (*CartDiscount, error) {
	if cartSubtotal.IsNegative() {
		return nil, errors.New("cart subtotal must not be negative")
	}

	cur, err := c.coupons.GetByID(ctx, vc.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrCouponUnavailable
		}
		return nil, errors.Wrap(err, "refetch coupon")
	}
	if cur.Status != StatusActive {
		return nil, ErrCouponUnavailable
	}

	d := &CartDiscount{
		Coupon: AppliedCoupon{
			ID:           cur.ID,
			Code:         cur.Code,
			Type:         cur.Type,
			DiscountType: cur.DiscountType,
		},
	}

	switch cur.DiscountType {
	case DiscountPercentage:
		amount := cartSubtotal.Mul(cur.DiscountValue).Div(hundred)
		if cur.MaxDiscount != nil && amount.GreaterThan(*cur.MaxDiscount) {
			amount = *cur.MaxDiscount
		}
		d.Amount = amount
	case DiscountFixedAmount:
		// Never discount more than the subtotal; totals must not go negative.
		d.Amount = decimal.Min(cur.DiscountValue, cartSubtotal)
	case DiscountFreeDelivery:
		if deliveryFee != nil {
			d.Amount = *deliveryFee
		} else {
			d.Amount = decimal.Zero
		}
		d.FreeDelivery = true
	default:
		return nil, errors.Errorf("unsupported discount type: %q", cur.DiscountType)
	}

	return d, nil
}

// Package coupon implements coupon eligibility validation, discount
// calculation, and redemption recording for the ordering platform.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type classifies what a coupon unlocks.
type Type string

const (
	// TypeNoshPass is a Nosh Pass subscription code.
	TypeNoshPass Type = "nosh_pass"
	// TypeDiscount is a regular discount code.
	TypeDiscount Type = "discount"
)

// Status is a coupon's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the cart subtotal,
	// optionally capped at MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount subtracts a fixed amount, never more than the subtotal.
	DiscountFixedAmount DiscountType = "fixed_amount"
	// DiscountFreeDelivery waives the delivery fee.
	DiscountFreeDelivery DiscountType = "free_delivery"
)

// Known reports whether d is one of the supported discount types.
func (d DiscountType) Known() bool {
	switch d {
	case DiscountPercentage, DiscountFixedAmount, DiscountFreeDelivery:
		return true
	}
	return false
}

// Coupon is a named discount definition. Zero UsageLimit and UserLimit mean
// no cap; a nil pointer field means that constraint is absent.
type Coupon struct {
	ID             string
	Code           string
	Type           Type
	Status         Status
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MaxDiscount    *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	Description    string
	UsageLimit     int
	UsageCount     int
	UserLimit      int
	ValidFrom      time.Time
	ValidUntil     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidatedCoupon is the public projection of a coupon that passed
// validation. Only the Validator produces it, and the Calculator requires it
// as input, so a discount cannot be computed for a coupon that was never
// checked. Internal bookkeeping (counters, date window) is deliberately
// absent: this value is safe to expose to clients.
type ValidatedCoupon struct {
	ID            string
	Code          string
	Type          Type
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MaxDiscount   *decimal.Decimal
	Description   string
}

// public returns the client-safe projection of c.
func (c *Coupon) public() *ValidatedCoupon {
	return &ValidatedCoupon{
		ID:            c.ID,
		Code:          c.Code,
		Type:          c.Type,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MaxDiscount:   c.MaxDiscount,
		Description:   c.Description,
	}
}

// Usage is one redemption of a coupon by a user, recorded append-only.
type Usage struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        *string
	UsedAt         time.Time
	DiscountAmount decimal.Decimal
}

// NormalizeCode trims surrounding whitespace and uppercases a user-supplied
// code so that " save10 " and "SAVE10" resolve to the same coupon.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IneligibilityError is an expected, user-facing validation failure. The
// Reason is suitable for direct display; it never carries internal state.
type IneligibilityError struct {
	Reason string
}

func (e *IneligibilityError) Error() string { return e.Reason }

func ineligible(reason string) *IneligibilityError {
	return &IneligibilityError{Reason: reason}
}

// Ineligibility reasons, in the order the Validator checks them.
var (
	ErrInvalidCode       = ineligible("Invalid code")
	ErrCodeInactive      = ineligible("This code is no longer active")
	ErrCodeNotYetValid   = ineligible("This code is not yet valid")
	ErrCodeExpired       = ineligible("This code has expired")
	ErrUsageLimitReached = ineligible("This code has reached its usage limit")
	ErrUserLimitReached  = ineligible("You have reached the usage limit for this code")
)

// minOrderNotMet builds the below-minimum reason with the amount formatted
// to two decimals, e.g. "Minimum order amount of £20.00 required".
func minOrderNotMet(min decimal.Decimal) *IneligibilityError {
	return ineligible(fmt.Sprintf("Minimum order amount of £%s required", min.StringFixed(2)))
}

// IsIneligibility reports whether err is an expected eligibility failure
// rather than an infrastructure error.
func IsIneligibility(err error) bool {
	var e *IneligibilityError
	return errors.As(err, &e)
}

var (
	// ErrNotFound is returned by repositories when no coupon matches.
	ErrNotFound = errors.New("coupon not found")
	// ErrCouponUnavailable is returned by the Calculator when the coupon
	// disappeared or was deactivated after validation. It indicates a caller
	// error or a state change, not user ineligibility.
	ErrCouponUnavailable = errors.New("invalid coupon")
)

// Repository provides lookup and mutation of coupon records.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	// MarkExpired transitions a coupon to StatusExpired.
	MarkExpired(ctx context.Context, id string, at time.Time) error
	// IncrementUsage bumps the usage counter by one. Implementations must
	// make the increment atomic (no read-modify-write).
	IncrementUsage(ctx context.Context, id string, at time.Time) error
	Insert(ctx context.Context, c *Coupon) error
}

// UsageRepository owns the append-only redemption ledger.
type UsageRepository interface {
	Insert(ctx context.Context, u *Usage) error
	CountByUserAndCoupon(ctx context.Context, userID, couponID string) (int, error)
}

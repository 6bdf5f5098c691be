package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
)

func TestInsertRejectsUnknownDiscountType(t *testing.T) {
	repo := NewCouponRepository(nil)

	err := repo.Insert(context.Background(), &coupon.Coupon{
		Code:         "BOGUS",
		DiscountType: "buy_one_get_one",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown discount type")
}

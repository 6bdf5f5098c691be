package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noshheaven/coupon-service/internal/domain/auth"
	"github.com/noshheaven/coupon-service/internal/domain/coupon"
)

// fakeCoupons is a minimal in-memory coupon.Repository for handler tests.
type fakeCoupons struct {
	byID   map[string]*coupon.Coupon
	getErr error
}

func (f *fakeCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range f.byID {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (f *fakeCoupons) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCoupons) MarkExpired(_ context.Context, id string, _ time.Time) error {
	if c, ok := f.byID[id]; ok {
		c.Status = coupon.StatusExpired
	}
	return nil
}

func (f *fakeCoupons) IncrementUsage(_ context.Context, id string, _ time.Time) error {
	c, ok := f.byID[id]
	if !ok {
		return coupon.ErrNotFound
	}
	c.UsageCount++
	return nil
}

func (f *fakeCoupons) Insert(_ context.Context, c *coupon.Coupon) error {
	f.byID[c.ID] = c
	return nil
}

type fakeUsages struct {
	rows []*coupon.Usage
}

func (f *fakeUsages) Insert(_ context.Context, u *coupon.Usage) error {
	f.rows = append(f.rows, u)
	return nil
}

func (f *fakeUsages) CountByUserAndCoupon(_ context.Context, userID, couponID string) (int, error) {
	n := 0
	for _, u := range f.rows {
		if u.UserID == userID && u.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func testCoupon() *coupon.Coupon {
	max := decimal.NewFromInt(10)
	return &coupon.Coupon{
		ID:            "c1",
		Code:          "SAVE10",
		Type:          coupon.TypeDiscount,
		Status:        coupon.StatusActive,
		DiscountType:  coupon.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		MaxDiscount:   &max,
		Description:   "10% off",
		ValidFrom:     time.Now().AddDate(0, 0, -1),
	}
}

func newTestServer(coupons *fakeCoupons, usages *fakeUsages) http.Handler {
	h := New(
		coupon.NewValidator(coupons, usages),
		coupon.NewCalculator(coupons),
		coupon.NewRecorder(coupons, usages),
	)
	return h.Routes(nil)
}

func doPost(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestValidateCoupon(t *testing.T) {
	h := newTestServer(&fakeCoupons{byID: map[string]*coupon.Coupon{"c1": testCoupon()}}, &fakeUsages{})

	t.Run("valid", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/validate", `{"code":" save10 ","userId":"alice"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		body := decodeJSON(t, rec)
		assert.Equal(t, true, body["valid"])

		c, ok := body["coupon"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "c1", c["id"])
		assert.Equal(t, "SAVE10", c["code"])
		assert.Equal(t, "percentage", c["discountType"])
		assert.Equal(t, float64(10), c["discountValue"])
		assert.Equal(t, float64(10), c["maxDiscount"])
		assert.Equal(t, "10% off", c["description"])
	})

	t.Run("ineligible is 200 with valid false", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/validate", `{"code":"NOPE","userId":"alice"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeJSON(t, rec)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, "Invalid code", body["error"])
		assert.NotContains(t, body, "coupon")
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/validate", `{"code":"SAVE10"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/validate", `{"code":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestValidateCouponMinOrder(t *testing.T) {
	c := testCoupon()
	min := decimal.NewFromInt(20)
	c.MinOrderAmount = &min
	h := newTestServer(&fakeCoupons{byID: map[string]*coupon.Coupon{"c1": c}}, &fakeUsages{})

	rec := doPost(t, h, "/coupons/validate", `{"code":"SAVE10","userId":"alice","cartSubtotal":15.50}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Minimum order amount of £20.00 required", body["error"])

	// No subtotal supplied: the minimum-order constraint is not checked.
	rec = doPost(t, h, "/coupons/validate", `{"code":"SAVE10","userId":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeJSON(t, rec)["valid"])
}

func TestCalculateDiscount(t *testing.T) {
	h := newTestServer(&fakeCoupons{byID: map[string]*coupon.Coupon{"c1": testCoupon()}}, &fakeUsages{})

	t.Run("percentage", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/discount", `{"code":"SAVE10","userId":"alice","cartSubtotal":50}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeJSON(t, rec)
		assert.Equal(t, float64(5), body["discountAmount"])
		assert.Equal(t, false, body["freeDelivery"])

		c, ok := body["coupon"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "SAVE10", c["code"])
		assert.Equal(t, "percentage", c["discountType"])
	})

	t.Run("capped at max discount", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/discount", `{"code":"SAVE10","userId":"alice","cartSubtotal":500}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(10), decodeJSON(t, rec)["discountAmount"])
	})

	t.Run("ineligible is 200 with valid false", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/discount", `{"code":"NOPE","userId":"alice","cartSubtotal":50}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decodeJSON(t, rec)["valid"])
	})

	t.Run("missing subtotal", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/discount", `{"code":"SAVE10","userId":"alice"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("negative subtotal", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/discount", `{"code":"SAVE10","userId":"alice","cartSubtotal":-1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCalculateDiscountFreeDelivery(t *testing.T) {
	c := testCoupon()
	c.DiscountType = coupon.DiscountFreeDelivery
	c.DiscountValue = decimal.Zero
	c.MaxDiscount = nil
	h := newTestServer(&fakeCoupons{byID: map[string]*coupon.Coupon{"c1": c}}, &fakeUsages{})

	rec := doPost(t, h, "/coupons/discount", `{"code":"SAVE10","userId":"alice","cartSubtotal":30,"deliveryFee":2.99}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, 2.99, body["discountAmount"])
	assert.Equal(t, true, body["freeDelivery"])
}

func TestCalculateDiscountCouponGone(t *testing.T) {
	// Lookup by code succeeds, but the refetch by id fails: the coupon
	// vanished between validation and calculation.
	coupons := &fakeCoupons{
		byID:   map[string]*coupon.Coupon{"c1": testCoupon()},
		getErr: coupon.ErrNotFound,
	}
	h := newTestServer(coupons, &fakeUsages{})

	rec := doPost(t, h, "/coupons/discount", `{"code":"SAVE10","userId":"alice","cartSubtotal":50}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRedeemCoupon(t *testing.T) {
	coupons := &fakeCoupons{byID: map[string]*coupon.Coupon{"c1": testCoupon()}}
	usages := &fakeUsages{}
	h := newTestServer(coupons, usages)

	t.Run("records usage", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/redeem", `{"couponId":"c1","userId":"alice","orderId":"o1","discountAmount":2.50}`)
		require.Equal(t, http.StatusNoContent, rec.Code)

		require.Len(t, usages.rows, 1)
		u := usages.rows[0]
		assert.Equal(t, "c1", u.CouponID)
		assert.Equal(t, "alice", u.UserID)
		require.NotNil(t, u.OrderID)
		assert.Equal(t, "o1", *u.OrderID)
		assert.True(t, u.DiscountAmount.Equal(decimal.RequireFromString("2.50")))
		assert.Equal(t, 1, coupons.byID["c1"].UsageCount)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/redeem", `{"couponId":"c1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown coupon is an internal error", func(t *testing.T) {
		rec := doPost(t, h, "/coupons/redeem", `{"couponId":"nope","userId":"alice","discountAmount":1}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

// fakeAPIKeys implements auth.Repository over a fixed hash set.
type fakeAPIKeys struct {
	hashes map[string]string // hash -> name
}

func (f *fakeAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	name, ok := f.hashes[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return &auth.APIKeyInfo{KeyHash: hash, Name: name}, nil
}

func TestAPIKeyAuth(t *testing.T) {
	pepper := []byte("test-pepper")
	key := "secret-key"

	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	hash := hex.EncodeToString(mac.Sum(nil))

	repo := &fakeAPIKeys{hashes: map[string]string{hash: "test"}}
	mw := APIKeyAuth(repo, pepper)

	var reached bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing key", func(t *testing.T) {
		reached = false
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, reached)
	})

	t.Run("wrong key", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-API-Key", "wrong")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, reached)
	})

	t.Run("valid key", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, reached)
	})
}

// Package handler maps the JSON API onto the coupon domain operations.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
)

// Handler serves the coupon API, delegating business logic to the domain
// validator, calculator, and recorder.
type Handler struct {
	validator  *coupon.Validator
	calculator *coupon.Calculator
	recorder   *coupon.Recorder
}

// New constructs a Handler with the required domain dependencies.
func New(
	validator *coupon.Validator,
	calculator *coupon.Calculator,
	recorder *coupon.Recorder,
) *Handler {
	return &Handler{
		validator:  validator,
		calculator: calculator,
		recorder:   recorder,
	}
}

// Routes mounts the coupon endpoints on a chi router. auth wraps every
// route; pass nil middleware only in tests.
func (h *Handler) Routes(auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	if auth != nil {
		r.Use(auth)
	}
	r.Post("/coupons/validate", h.ValidateCoupon)
	r.Post("/coupons/discount", h.CalculateDiscount)
	r.Post("/coupons/redeem", h.RedeemCoupon)
	return r
}

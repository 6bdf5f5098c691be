package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/noshheaven/coupon-service/internal/domain/coupon"
)

// maxBodyBytes bounds request bodies; coupon payloads are tiny.
const maxBodyBytes = 1 << 16

type validateRequest struct {
	Code         string
	UserID       string
	CartSubtotal *decimal.Decimal
}

type discountRequest struct {
	Code         string
	UserID       string
	CartSubtotal *decimal.Decimal
	DeliveryFee  *decimal.Decimal
}

type redeemRequest struct {
	CouponID       string
	UserID         string
	OrderID        *string
	DiscountAmount *decimal.Decimal
}

// ValidateCoupon answers whether a code can be applied by a user right now.
// Ineligibility comes back as {valid:false, error}, never as a 4xx/5xx.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			return decodeStr(d, &req.Code)
		case "userId":
			return decodeStr(d, &req.UserID)
		case "cartSubtotal":
			return decodeDecimal(d, &req.CartSubtotal)
		default:
			return d.Skip()
		}
	}); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Code == "" || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "code and userId are required")
		return
	}

	vc, err := h.validator.Validate(r.Context(), req.Code, req.UserID, req.CartSubtotal)
	if err != nil {
		if coupon.IsIneligibility(err) {
			respondIneligible(w, err.Error())
			return
		}
		internalError(w, r, "validate coupon", err)
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(true)
	e.FieldStart("coupon")
	encodeValidatedCoupon(e, vc)
	e.ObjEnd()
	respondJSON(w, http.StatusOK, e)
}

// CalculateDiscount validates the code for the user, then computes the cart
// discount. The two domain operations are composed here because the typed
// ValidatedCoupon value cannot cross the wire.
func (h *Handler) CalculateDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			return decodeStr(d, &req.Code)
		case "userId":
			return decodeStr(d, &req.UserID)
		case "cartSubtotal":
			return decodeDecimal(d, &req.CartSubtotal)
		case "deliveryFee":
			return decodeDecimal(d, &req.DeliveryFee)
		default:
			return d.Skip()
		}
	}); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Code == "" || req.UserID == "" || req.CartSubtotal == nil {
		respondError(w, http.StatusBadRequest, "code, userId and cartSubtotal are required")
		return
	}
	if req.CartSubtotal.IsNegative() {
		respondError(w, http.StatusBadRequest, "cartSubtotal must not be negative")
		return
	}

	vc, err := h.validator.Validate(r.Context(), req.Code, req.UserID, req.CartSubtotal)
	if err != nil {
		if coupon.IsIneligibility(err) {
			respondIneligible(w, err.Error())
			return
		}
		internalError(w, r, "validate coupon", err)
		return
	}

	d, err := h.calculator.Apply(r.Context(), vc, *req.CartSubtotal, req.DeliveryFee)
	if err != nil {
		if errors.Is(err, coupon.ErrCouponUnavailable) {
			respondError(w, http.StatusUnprocessableEntity, "invalid coupon")
			return
		}
		internalError(w, r, "calculate discount", err)
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("discountAmount")
	e.Float64(d.Amount.InexactFloat64())
	e.FieldStart("freeDelivery")
	e.Bool(d.FreeDelivery)
	e.FieldStart("coupon")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(d.Coupon.ID)
	e.FieldStart("code")
	e.Str(d.Coupon.Code)
	e.FieldStart("type")
	e.Str(string(d.Coupon.Type))
	e.FieldStart("discountType")
	e.Str(string(d.Coupon.DiscountType))
	e.ObjEnd()
	e.ObjEnd()
	respondJSON(w, http.StatusOK, e)
}

// RedeemCoupon records a confirmed redemption: one ledger row plus the
// counter bump. Called by the order flow after payment confirmation.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "couponId":
			return decodeStr(d, &req.CouponID)
		case "userId":
			return decodeStr(d, &req.UserID)
		case "orderId":
			var s string
			if err := decodeStr(d, &s); err != nil {
				return err
			}
			req.OrderID = &s
			return nil
		case "discountAmount":
			return decodeDecimal(d, &req.DiscountAmount)
		default:
			return d.Skip()
		}
	}); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CouponID == "" || req.UserID == "" || req.DiscountAmount == nil {
		respondError(w, http.StatusBadRequest, "couponId, userId and discountAmount are required")
		return
	}

	err := h.recorder.Record(r.Context(), coupon.RecordUsageRequest{
		CouponID:       req.CouponID,
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		DiscountAmount: *req.DiscountAmount,
	})
	if err != nil {
		internalError(w, r, "record coupon usage", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func encodeValidatedCoupon(e *jx.Encoder, vc *coupon.ValidatedCoupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(vc.ID)
	e.FieldStart("code")
	e.Str(vc.Code)
	e.FieldStart("type")
	e.Str(string(vc.Type))
	e.FieldStart("discountType")
	e.Str(string(vc.DiscountType))
	e.FieldStart("discountValue")
	e.Float64(vc.DiscountValue.InexactFloat64())
	if vc.MaxDiscount != nil {
		e.FieldStart("maxDiscount")
		e.Float64(vc.MaxDiscount.InexactFloat64())
	}
	if vc.Description != "" {
		e.FieldStart("description")
		e.Str(vc.Description)
	}
	e.ObjEnd()
}

// decodeBody reads the request body and decodes a single JSON object,
// dispatching each field to fn.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	d := jx.DecodeBytes(body)
	return d.Obj(fn)
}

func decodeStr(d *jx.Decoder, dst *string) error {
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// decodeDecimal reads a JSON number into a decimal pointer. Numbers arrive
// as their literal text, so "19.99" stays exactly 19.99.
func decodeDecimal(d *jx.Decoder, dst **decimal.Decimal) error {
	n, err := d.Num()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

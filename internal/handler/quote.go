package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/promo"
	"github.com/xenking/marketplace-checkout/internal/wire"
)

// Quote serves POST /api/checkout/quote. A rejected promo code still
// yields a breakdown, priced without the discount, next to the rejection.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := wire.DecodeQuoteRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := h.calc.Compute(req.Items, decimal.Zero)
	if err != nil {
		fail(w, r, err)
		return
	}
	if b == nil || promo.Normalize(req.PromoCode) == "" {
		writeJSON(w, http.StatusOK, wire.EncodeQuote(b, nil))
		return
	}

	res, err := h.promos.Validate(r.Context(), req.PromoCode, b.Subtotal)
	if err != nil {
		fail(w, r, err)
		return
	}
	if res.Valid {
		if b, err = h.calc.Compute(req.Items, res.Resolve(b.Subtotal, b.Currency)); err != nil {
			fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, wire.EncodeQuote(b, &res))
}

// ValidatePromo serves POST /api/promo/validate. An unknown or expired code
// is a 200 with valid=false.
func (h *Handler) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := wire.DecodePromoRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subtotal.IsNegative() {
		writeError(w, http.StatusBadRequest, "subtotal must not be negative")
		return
	}

	res, err := h.promos.Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.EncodePromoResult(res))
}

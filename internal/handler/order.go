package handler

import (
	"net/http"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/wire"
)

const idempotencyHeader = "Idempotency-Key"

// PlaceOrder serves POST /api/orders. A replayed Idempotency-Key returns
// the order settled by the first request.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := wire.DecodeOrderRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.IdempotencyKey = r.Header.Get(idempotencyHeader)

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wire.EncodeOrderResponse(checkout.OrderResponse{
		OrderID: o.ID,
		Status:  o.Status,
	}))
}

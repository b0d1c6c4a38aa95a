// Package handler serves the checkout API over chi.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/listing"
	"github.com/xenking/marketplace-checkout/internal/domain/order"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/wire"
)

const maxBodyBytes = 1 << 20

// OrderPlacer settles orders. *order.Service implements it.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req checkout.OrderRequest) (*order.Order, error)
}

// Handler serves the /api routes.
type Handler struct {
	listings listing.Repository
	promos   checkout.PromoValidator
	orders   OrderPlacer
	calc     *pricing.Calculator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	listings listing.Repository,
	promos checkout.PromoValidator,
	orders OrderPlacer,
	calc *pricing.Calculator,
) *Handler {
	return &Handler{
		listings: listings,
		promos:   promos,
		orders:   orders,
		calc:     calc,
	}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/listing", h.ListListings)
	r.Post("/checkout/quote", h.Quote)
	r.Post("/promo/validate", h.ValidatePromo)
	r.Post("/orders", h.PlaceOrder)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, wire.EncodeError(status, message))
}

// fail maps err onto a response: business rejections are 422 with the
// buyer-facing reason, everything else is logged and hidden behind a 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if reason, ok := order.Reason(err); ok {
		writeError(w, http.StatusUnprocessableEntity, reason)
		return
	}
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

package handler

import (
	"net/http"

	"github.com/xenking/marketplace-checkout/internal/wire"
)

// ListListings serves GET /api/listing.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	ls, err := h.listings.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.EncodeListings(ls))
}

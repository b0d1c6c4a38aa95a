package listing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

// ErrNotFound is returned when a requested listing does not exist.
var ErrNotFound = errors.New("listing not found")

// Listing is a purchasable catalog entry offered by a seller.
type Listing struct {
	ID       string
	SellerID string
	Kind     pricing.ItemKind
	Title    string
	Price    decimal.Decimal
	Currency string
	Active   bool
}

// Repository defines read operations for the catalog.
type Repository interface {
	List(ctx context.Context) ([]Listing, error)
	GetByIDs(ctx context.Context, ids []string) ([]Listing, error)
}

package checkout

import (
	"context"
	"slices"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

// CartSupplier provides the items of the buyer's cart.
type CartSupplier interface {
	CheckoutItems(ctx context.Context) ([]pricing.Item, error)
}

// StaticCart is a CartSupplier over a fixed list.
type StaticCart []pricing.Item

// CheckoutItems returns a copy of the list.
func (c StaticCart) CheckoutItems(context.Context) ([]pricing.Item, error) {
	return slices.Clone([]pricing.Item(c)), nil
}

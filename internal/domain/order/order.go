package order

import (
	"context"
	"time"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

// Order is a settled order as persisted by the marketplace.
type Order struct {
	ID              string
	IdempotencyKey  string
	Status          checkout.OrderStatus
	Breakdown       *pricing.Breakdown
	PromoCode       string
	Payer           checkout.PayerDetails
	PaymentMethodID string
	CreatedAt       time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists o. It returns ErrDuplicate when an order with the
	// same idempotency key already exists.
	Create(ctx context.Context, o *Order) error
	// FindByIdempotencyKey returns ErrNotFound when no order matches.
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
}

package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/money"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

// Sentinel errors for order placement.
var (
	ErrEmptyItems = errors.New("items required")
	ErrNotFound   = errors.New("order not found")
	ErrDuplicate  = errors.New("order with this idempotency key already exists")
)

// ListingNotFoundError indicates an item that is not, or no longer, offered.
type ListingNotFoundError struct {
	ListingID string
}

func (e *ListingNotFoundError) Error() string {
	return fmt.Sprintf("listing %s not found", e.ListingID)
}

// ListingMismatchError indicates an item whose kind or currency differs
// from the catalog entry.
type ListingMismatchError struct {
	ListingID string
	Field     string
}

func (e *ListingMismatchError) Error() string {
	return fmt.Sprintf("listing %s: %s does not match catalog", e.ListingID, e.Field)
}

// PriceMismatchError indicates the cart carries a stale unit price.
type PriceMismatchError struct {
	ListingID string
	Catalog   decimal.Decimal
	Cart      decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("listing %s costs %s, cart says %s", e.ListingID, e.Catalog, e.Cart)
}

// PromoRejectedError indicates the promo code failed server-side validation
// or redemption.
type PromoRejectedError struct {
	Code    string
	Message string
}

func (e *PromoRejectedError) Error() string {
	return fmt.Sprintf("promo %s rejected: %s", e.Code, e.Message)
}

// TotalMismatchError indicates the buyer saw a different total than the one
// the server computed.
type TotalMismatchError struct {
	Expected string
	Actual   string
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("expected total %s, computed %s", e.Expected, e.Actual)
}

// Reason returns the buyer-facing message for a business rejection. It
// reports false for infrastructure errors, which must not be shown as-is.
func Reason(err error) (string, bool) {
	var (
		qtyErr     *pricing.InvalidQuantityError
		priceErr   *pricing.InvalidPriceError
		kindErr    *pricing.InvalidKindError
		notFound   *ListingNotFoundError
		mismatch   *ListingMismatchError
		stale      *PriceMismatchError
		promoErr   *PromoRejectedError
		totalErr   *TotalMismatchError
		validation *checkout.ValidationError
	)

	switch {
	case errors.Is(err, ErrEmptyItems):
		return checkout.MsgEmptyCart, true
	case errors.As(err, &validation):
		return validation.Error(), true
	case errors.As(err, &qtyErr):
		return fmt.Sprintf("Invalid quantity for item %s", qtyErr.ItemID), true
	case errors.Is(err, pricing.ErrMixedCurrency):
		return "All items must be priced in the same currency", true
	case errors.As(err, &priceErr), errors.As(err, &kindErr),
		errors.Is(err, pricing.ErrDuplicateItem), errors.Is(err, pricing.ErrMissingItemID),
		errors.Is(err, money.ErrUnknownCurrency):
		return "Your cart contains an invalid item", true
	case errors.As(err, &notFound):
		return fmt.Sprintf("Item %s is no longer available", notFound.ListingID), true
	case errors.As(err, &mismatch):
		return fmt.Sprintf("Item %s does not match the catalog", mismatch.ListingID), true
	case errors.As(err, &stale):
		return fmt.Sprintf("The price of item %s has changed", stale.ListingID), true
	case errors.As(err, &promoErr):
		return promoErr.Message, true
	case errors.Is(err, promo.ErrUsageLimitReached):
		return promo.MsgUsageExceeded, true
	case errors.As(err, &totalErr):
		return "Your order total has changed, please review your order", true
	}
	return "", false
}

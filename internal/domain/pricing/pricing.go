// Package pricing computes the buyer-facing price breakdown of a cart.
package pricing

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/money"
)

// ItemKind distinguishes physical products from bookable services.
type ItemKind string

const (
	KindProduct ItemKind = "product"
	KindBooking ItemKind = "booking"
)

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	return k == KindProduct || k == KindBooking
}

var (
	// ErrMixedCurrency is matched by *MixedCurrencyError.
	ErrMixedCurrency = errors.New("cart mixes currencies")
	// ErrNegativeDiscount is returned when a negative discount is requested.
	ErrNegativeDiscount = errors.New("discount must not be negative")
	// ErrDuplicateItem is returned when two lines share an id.
	ErrDuplicateItem = errors.New("duplicate item id")
	// ErrMissingItemID is returned for lines without an id.
	ErrMissingItemID = errors.New("item id required")
)

// MixedCurrencyError reports the first item whose currency differs from the
// cart currency.
type MixedCurrencyError struct {
	ItemID string
	Want   string
	Got    string
}

func (e *MixedCurrencyError) Error() string {
	return fmt.Sprintf("item %s is priced in %s, cart currency is %s", e.ItemID, e.Got, e.Want)
}

func (e *MixedCurrencyError) Is(target error) bool { return target == ErrMixedCurrency }

// InvalidQuantityError indicates a line with quantity below one.
type InvalidQuantityError struct {
	ItemID   string
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for item %s, got %d", e.ItemID, e.Quantity)
}

// InvalidPriceError indicates a negative unit price or one finer than the
// currency's minor unit.
type InvalidPriceError struct {
	ItemID string
	Price  decimal.Decimal
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid unit price %s for item %s", e.Price, e.ItemID)
}

// InvalidKindError indicates an unknown item kind.
type InvalidKindError struct {
	ItemID string
	Kind   ItemKind
}

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("unknown kind %q for item %s", e.Kind, e.ItemID)
}

// Item is one purchasable line supplied by the cart.
type Item struct {
	ID        string
	Kind      ItemKind
	Quantity  int
	UnitPrice decimal.Decimal
	Currency  string
}

// LineTotal is always Quantity × UnitPrice.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Line is a priced cart line inside a Breakdown.
type Line struct {
	ItemID    string
	Kind      ItemKind
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Breakdown is the itemized price of a cart. A Breakdown is never mutated
// after Compute returns it.
type Breakdown struct {
	Currency          money.Currency
	Lines             []Line
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	TaxableAmount     decimal.Decimal
	Tax               decimal.Decimal
	PlatformFee       decimal.Decimal
	CommissionPreview decimal.Decimal
	Total             decimal.Decimal
}

// Clone returns a copy of b that shares no memory with it.
func (b *Breakdown) Clone() *Breakdown {
	if b == nil {
		return nil
	}
	c := *b
	c.Lines = slices.Clone(b.Lines)
	return &c
}

// Rates are the fractions applied to the taxable amount.
type Rates struct {
	Tax         money.Rate
	PlatformFee money.Rate
	Commission  money.Rate
}

// DefaultRates returns 8% tax, 2.9% platform fee and 5% seller commission.
func DefaultRates() Rates {
	return Rates{
		Tax:         money.MustRate("0.08"),
		PlatformFee: money.MustRate("0.029"),
		Commission:  money.MustRate("0.05"),
	}
}

// ParseRates builds Rates from decimal strings.
func ParseRates(tax, platformFee, commission string) (Rates, error) {
	var (
		r   Rates
		err error
	)
	if r.Tax, err = money.ParseRate(tax); err != nil {
		return Rates{}, errors.Wrap(err, "tax rate")
	}
	if r.PlatformFee, err = money.ParseRate(platformFee); err != nil {
		return Rates{}, errors.Wrap(err, "platform fee rate")
	}
	if r.Commission, err = money.ParseRate(commission); err != nil {
		return Rates{}, errors.Wrap(err, "commission rate")
	}
	return r, nil
}

package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/money"
)

// Calculator computes breakdowns with a fixed set of rates. It holds no
// mutable state and is safe for concurrent use.
type Calculator struct {
	rates Rates
}

// NewCalculator returns a Calculator using rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rates returns the configured rates.
func (c *Calculator) Rates() Rates { return c.rates }

// Compute prices items with the given absolute discount.
//
// An empty cart yields a nil breakdown and no error. The discount is clamped
// to the subtotal. Tax, platform fee and commission preview are rounded
// independently and Total is the sum of the rounded parts; the commission
// preview is never part of Total.
func (c *Calculator) Compute(items []Item, discount decimal.Decimal) (*Breakdown, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if discount.IsNegative() {
		return nil, ErrNegativeDiscount
	}

	cur, err := money.ParseCurrency(items[0].Currency)
	if err != nil {
		return nil, errors.Wrapf(err, "item %s", items[0].ID)
	}

	lines := make([]Line, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		if err := validateItem(it, cur, seen); err != nil {
			return nil, err
		}
		total := it.LineTotal()
		lines = append(lines, Line{
			ItemID:    it.ID,
			Kind:      it.Kind,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: total,
		})
		subtotal = subtotal.Add(total)
	}

	discount = money.Clamp(cur.Round(discount), decimal.Zero, subtotal)
	taxable := money.NonNegative(subtotal.Sub(discount))

	b := &Breakdown{
		Currency:          cur,
		Lines:             lines,
		Subtotal:          subtotal,
		Discount:          discount,
		TaxableAmount:     taxable,
		Tax:               c.rates.Tax.Apply(taxable, cur),
		PlatformFee:       c.rates.PlatformFee.Apply(taxable, cur),
		CommissionPreview: c.rates.Commission.Apply(taxable, cur),
	}
	b.Total = money.Sum(b.TaxableAmount, b.Tax, b.PlatformFee)
	return b, nil
}

func validateItem(it Item, cur money.Currency, seen map[string]struct{}) error {
	if it.ID == "" {
		return ErrMissingItemID
	}
	if _, dup := seen[it.ID]; dup {
		return errors.Wrapf(ErrDuplicateItem, "%s", it.ID)
	}
	seen[it.ID] = struct{}{}

	if !it.Kind.Valid() {
		return &InvalidKindError{ItemID: it.ID, Kind: it.Kind}
	}
	if it.Quantity < 1 {
		return &InvalidQuantityError{ItemID: it.ID, Quantity: it.Quantity}
	}

	itemCur, err := money.ParseCurrency(it.Currency)
	if err != nil {
		return errors.Wrapf(err, "item %s", it.ID)
	}
	if itemCur != cur {
		return &MixedCurrencyError{ItemID: it.ID, Want: cur.Code(), Got: itemCur.Code()}
	}
	if it.UnitPrice.IsNegative() || !cur.Fits(it.UnitPrice) {
		return &InvalidPriceError{ItemID: it.ID, Price: it.UnitPrice}
	}
	return nil
}

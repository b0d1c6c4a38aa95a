package promo

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of validating a code. A valid result carries exactly
// one of DiscountAmount or DiscountPercent; an invalid one carries neither.
type Result struct {
	Valid           bool
	Code            string
	DiscountAmount  *decimal.Decimal
	DiscountPercent *decimal.Decimal
	// MaxDiscount caps a percentage discount. Zero means uncapped.
	MaxDiscount decimal.Decimal
	// MinSubtotal is the smallest subtotal the discount applies to.
	MinSubtotal decimal.Decimal
	Description string
	Message     string
}

// Rejected builds an invalid result.
func Rejected(code, message string) Result {
	return Result{Code: code, Message: message}
}

// Accepted builds a valid result for rule.
func Accepted(rule *Rule) Result {
	r := Result{
		Valid:       true,
		Code:        rule.Code,
		MinSubtotal: rule.MinSubtotal,
		Description: rule.Description,
	}
	value := rule.Value
	switch rule.Kind {
	case KindPercentage:
		r.DiscountPercent = &value
		r.MaxDiscount = rule.MaxDiscount
	default:
		r.DiscountAmount = &value
	}
	return r
}

// Applies reports whether a valid result still qualifies for subtotal.
func (r Result) Applies(subtotal decimal.Decimal) bool {
	return r.Valid && !subtotal.LessThan(r.MinSubtotal)
}

// Resolve converts the result into an absolute discount against the current
// subtotal. Percentages are evaluated at call time so a changed cart is
// always priced correctly. The discount never exceeds the subtotal and is
// zero when the subtotal is below MinSubtotal.
func (r Result) Resolve(subtotal decimal.Decimal, cur money.Currency) decimal.Decimal {
	if !r.Applies(subtotal) {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch {
	case r.DiscountAmount != nil:
		d = *r.DiscountAmount
	case r.DiscountPercent != nil:
		d = subtotal.Mul(*r.DiscountPercent).Div(hundred)
		if r.MaxDiscount.IsPositive() {
			d = decimal.Min(d, r.MaxDiscount)
		}
	default:
		return decimal.Zero
	}

	return money.Clamp(cur.Round(d), decimal.Zero, subtotal)
}

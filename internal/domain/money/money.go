// Package money holds the decimal arithmetic shared by pricing, promotions
// and settlement. Amounts are shopspring decimals; every derived amount is
// rounded half-up to the minor unit of its currency.
package money

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrUnknownCurrency is returned for codes that are not ISO 4217 currencies.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrInvalidRate is returned for rates outside [0, 1].
	ErrInvalidRate = errors.New("rate must be between 0 and 1")
)

var one = decimal.NewFromInt(1)

// Currency is a validated ISO 4217 currency.
type Currency struct {
	unit  currency.Unit
	scale int32
}

// ParseCurrency validates an ISO 4217 code such as "USD" or "jpy".
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{}, errors.Wrapf(ErrUnknownCurrency, "%q", code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{unit: unit, scale: int32(scale)}, nil
}

// MustCurrency is like ParseCurrency but panics on error. Intended for
// constants and tests.
func MustCurrency(code string) Currency {
	c, err := ParseCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the upper-case ISO code.
func (c Currency) Code() string { return c.unit.String() }

// Scale is the number of minor-unit digits (2 for USD, 0 for JPY).
func (c Currency) Scale() int32 { return c.scale }

// IsZero reports whether c was never parsed.
func (c Currency) IsZero() bool { return c == Currency{} }

func (c Currency) String() string { return c.Code() }

// Round rounds amount half-up to the currency's minor unit.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.scale)
}

// Fits reports whether amount is already expressed in whole minor units.
func (c Currency) Fits(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(c.scale))
}

// Format renders amount with exactly Scale fraction digits.
func (c Currency) Format(amount decimal.Decimal) string {
	return amount.StringFixed(c.scale)
}

// Rate is a non-negative fraction: 0.08 means 8%.
type Rate struct {
	value decimal.Decimal
}

// ParseRate parses a decimal fraction between 0 and 1 inclusive.
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Rate{}, errors.Wrapf(err, "parse rate %q", s)
	}
	return NewRate(d)
}

// NewRate validates d as a rate.
func NewRate(d decimal.Decimal) (Rate, error) {
	if d.IsNegative() || d.GreaterThan(one) {
		return Rate{}, errors.Wrapf(ErrInvalidRate, "got %s", d)
	}
	return Rate{value: d}, nil
}

// MustRate is like ParseRate but panics on error.
func MustRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Decimal returns the raw fraction.
func (r Rate) Decimal() decimal.Decimal { return r.value }

func (r Rate) String() string { return r.value.String() }

// Apply returns amount × rate rounded to the currency's minor unit.
func (r Rate) Apply(amount decimal.Decimal, cur Currency) decimal.Decimal {
	return cur.Round(amount.Mul(r.value))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(v, lo), hi)
}

// NonNegative floors v at zero.
func NonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Sum adds the given amounts without intermediate rounding.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

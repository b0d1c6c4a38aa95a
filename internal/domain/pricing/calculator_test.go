package pricing

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace-checkout/internal/domain/money"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func usdItem(id, price string, qty int) Item {
	return Item{ID: id, Kind: KindProduct, Quantity: qty, UnitPrice: dec(price), Currency: "USD"}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestCalculator_Compute_Examples(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	tests := []struct {
		name          string
		items         []Item
		discount      string
		wantSubtotal  string
		wantDiscount  string
		wantTaxable   string
		wantTax       string
		wantFee       string
		wantCommision string
		wantTotal     string
	}{
		{
			name:          "single item no discount",
			items:         []Item{usdItem("p1", "49.99", 1)},
			discount:      "0",
			wantSubtotal:  "49.99",
			wantDiscount:  "0",
			wantTaxable:   "49.99",
			wantTax:       "4.00",
			wantFee:       "1.45",
			wantCommision: "2.50",
			wantTotal:     "55.44",
		},
		{
			name:          "fixed ten dollar promo",
			items:         []Item{usdItem("p1", "49.99", 1)},
			discount:      "10.00",
			wantSubtotal:  "49.99",
			wantDiscount:  "10.00",
			wantTaxable:   "39.99",
			wantTax:       "3.20",
			wantFee:       "1.16",
			wantCommision: "2.00",
			wantTotal:     "44.35",
		},
		{
			name: "mixed product and booking lines",
			items: []Item{
				usdItem("p1", "10.00", 3),
				{ID: "b1", Kind: KindBooking, Quantity: 1, UnitPrice: dec("120.50"), Currency: "USD"},
			},
			discount:      "0",
			wantSubtotal:  "150.50",
			wantDiscount:  "0",
			wantTaxable:   "150.50",
			wantTax:       "12.04",
			wantFee:       "4.36",
			wantCommision: "7.53",
			wantTotal:     "166.90",
		},
		{
			name:          "discount larger than subtotal is clamped",
			items:         []Item{usdItem("p1", "5.00", 2)},
			discount:      "25",
			wantSubtotal:  "10.00",
			wantDiscount:  "10.00",
			wantTaxable:   "0",
			wantTax:       "0",
			wantFee:       "0",
			wantCommision: "0",
			wantTotal:     "0",
		},
		{
			name:          "free items",
			items:         []Item{usdItem("gift", "0", 1)},
			discount:      "0",
			wantSubtotal:  "0",
			wantDiscount:  "0",
			wantTaxable:   "0",
			wantTax:       "0",
			wantFee:       "0",
			wantCommision: "0",
			wantTotal:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := calc.Compute(tt.items, dec(tt.discount))
			require.NoError(t, err)
			require.NotNil(t, b)

			assert.Equal(t, "USD", b.Currency.Code())
			assert.Len(t, b.Lines, len(tt.items))
			assertAmount(t, tt.wantSubtotal, b.Subtotal, "subtotal")
			assertAmount(t, tt.wantDiscount, b.Discount, "discount")
			assertAmount(t, tt.wantTaxable, b.TaxableAmount, "taxable")
			assertAmount(t, tt.wantTax, b.Tax, "tax")
			assertAmount(t, tt.wantFee, b.PlatformFee, "platform fee")
			assertAmount(t, tt.wantCommision, b.CommissionPreview, "commission")
			assertAmount(t, tt.wantTotal, b.Total, "total")
		})
	}
}

func TestCalculator_Compute_EmptyCart(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	b, err := calc.Compute(nil, decimal.Zero)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = calc.Compute([]Item{}, dec("5"))
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestCalculator_Compute_Errors(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	t.Run("mixed currency", func(t *testing.T) {
		_, err := calc.Compute([]Item{
			usdItem("p1", "10", 1),
			{ID: "p2", Kind: KindProduct, Quantity: 1, UnitPrice: dec("10"), Currency: "EUR"},
		}, decimal.Zero)

		require.ErrorIs(t, err, ErrMixedCurrency)
		var mcErr *MixedCurrencyError
		require.ErrorAs(t, err, &mcErr)
		assert.Equal(t, "p2", mcErr.ItemID)
		assert.Equal(t, "USD", mcErr.Want)
		assert.Equal(t, "EUR", mcErr.Got)
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := calc.Compute([]Item{usdItem("p1", "10", 0)}, decimal.Zero)
		var qErr *InvalidQuantityError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, "p1", qErr.ItemID)
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := calc.Compute([]Item{usdItem("p1", "-1", 1)}, decimal.Zero)
		var pErr *InvalidPriceError
		require.ErrorAs(t, err, &pErr)
	})

	t.Run("sub-cent price", func(t *testing.T) {
		_, err := calc.Compute([]Item{usdItem("p1", "1.005", 1)}, decimal.Zero)
		var pErr *InvalidPriceError
		require.ErrorAs(t, err, &pErr)
	})

	t.Run("negative discount", func(t *testing.T) {
		_, err := calc.Compute([]Item{usdItem("p1", "10", 1)}, dec("-1"))
		require.ErrorIs(t, err, ErrNegativeDiscount)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := calc.Compute([]Item{usdItem("p1", "10", 1), usdItem("p1", "5", 1)}, decimal.Zero)
		require.ErrorIs(t, err, ErrDuplicateItem)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := calc.Compute([]Item{usdItem("", "10", 1)}, decimal.Zero)
		require.ErrorIs(t, err, ErrMissingItemID)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := calc.Compute([]Item{{ID: "x", Kind: "voucher", Quantity: 1, UnitPrice: dec("1"), Currency: "USD"}}, decimal.Zero)
		var kErr *InvalidKindError
		require.ErrorAs(t, err, &kErr)
	})

	t.Run("unknown currency", func(t *testing.T) {
		_, err := calc.Compute([]Item{{ID: "x", Kind: KindProduct, Quantity: 1, UnitPrice: dec("1"), Currency: "ZZZ"}}, decimal.Zero)
		require.ErrorIs(t, err, money.ErrUnknownCurrency)
	})
}

func TestCalculator_Compute_ZeroDecimalCurrency(t *testing.T) {
	calc := NewCalculator(DefaultRates())

	b, err := calc.Compute([]Item{{ID: "room", Kind: KindBooking, Quantity: 2, UnitPrice: dec("4999"), Currency: "JPY"}}, decimal.Zero)
	require.NoError(t, err)

	assertAmount(t, "9998", b.Subtotal, "subtotal")
	assertAmount(t, "800", b.Tax, "tax")
	assertAmount(t, "290", b.PlatformFee, "platform fee")
	assertAmount(t, "11088", b.Total, "total")
}

func TestCalculator_CustomRates(t *testing.T) {
	rates, err := ParseRates("0", "0.1", "0.2")
	require.NoError(t, err)

	b, err := NewCalculator(rates).Compute([]Item{usdItem("p1", "20.00", 1)}, decimal.Zero)
	require.NoError(t, err)

	assertAmount(t, "0", b.Tax, "tax")
	assertAmount(t, "2.00", b.PlatformFee, "platform fee")
	assertAmount(t, "4.00", b.CommissionPreview, "commission")
	assertAmount(t, "22.00", b.Total, "total")

	_, err = ParseRates("0.08", "2", "0.05")
	require.Error(t, err)
}

func randomCart(rng *rand.Rand) []Item {
	n := 1 + rng.IntN(6)
	items := make([]Item, n)
	for i := range items {
		cents := rng.Int64N(100_000)
		items[i] = Item{
			ID:        "item-" + strconv.Itoa(i),
			Kind:      KindProduct,
			Quantity:  1 + rng.IntN(5),
			UnitPrice: decimal.New(cents, -2),
			Currency:  "USD",
		}
	}
	return items
}

func TestCalculator_Properties(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	rng := rand.New(rand.NewPCG(42, 1024))

	for i := range 500 {
		items := randomCart(rng)
		discount := decimal.New(rng.Int64N(200_000), -2)

		b, err := calc.Compute(items, discount)
		require.NoError(t, err, "iteration %d", i)

		sum := decimal.Zero
		for j, it := range items {
			sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
			assert.True(t, b.Lines[j].LineTotal.Equal(it.LineTotal()))
		}
		assert.True(t, b.Subtotal.Equal(sum), "subtotal is the sum of line totals")

		assert.False(t, b.TaxableAmount.IsNegative(), "taxable never negative")
		assert.True(t, b.Discount.LessThanOrEqual(b.Subtotal), "discount clamped")
		if discount.GreaterThan(b.Subtotal) {
			assert.True(t, b.TaxableAmount.IsZero(), "over-discount zeroes the taxable amount")
		}

		assert.True(t, b.Total.Equal(b.TaxableAmount.Add(b.Tax).Add(b.PlatformFee)), "round then sum")
		for _, v := range []decimal.Decimal{b.Tax, b.PlatformFee, b.CommissionPreview, b.Total} {
			assert.True(t, b.Currency.Fits(v), "%s has sub-cent precision", v)
		}

		again, err := calc.Compute(items, discount)
		require.NoError(t, err)
		assert.True(t, again.Total.Equal(b.Total), "deterministic total")
		assert.True(t, again.Tax.Equal(b.Tax), "deterministic tax")
	}
}

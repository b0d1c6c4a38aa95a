package order

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/listing"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

// --- Mock implementations ---

type mockListingRepo struct {
	byID   map[string]listing.Listing
	getErr error
}

func (m *mockListingRepo) List(_ context.Context) ([]listing.Listing, error) {
	out := make([]listing.Listing, 0, len(m.byID))
	for _, l := range m.byID {
		out = append(out, l)
	}
	return out, nil
}

func (m *mockListingRepo) GetByIDs(_ context.Context, ids []string) ([]listing.Listing, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []listing.Listing
	for _, id := range ids {
		if l, ok := m.byID[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

type mockPromoRepo struct {
	mu        sync.Mutex
	rules     map[string]*promo.Rule
	redeemErr error
	redeemed  []string
	released  []string
}

func (m *mockPromoRepo) FindByCode(_ context.Context, code string) (*promo.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[code]
	if !ok {
		return nil, promo.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockPromoRepo) ListCodes(_ context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockPromoRepo) Redeem(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redeemErr != nil {
		return m.redeemErr
	}
	m.redeemed = append(m.redeemed, code)
	return nil
}

func (m *mockPromoRepo) Release(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, code)
	return nil
}

type mockOrderRepo struct {
	byKey     map[string]*Order
	createErr error
	created   int
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.byKey == nil {
		m.byKey = map[string]*Order{}
	}
	if _, ok := m.byKey[o.IdempotencyKey]; ok {
		return ErrDuplicate
	}
	m.byKey[o.IdempotencyKey] = o
	m.created++
	return nil
}

func (m *mockOrderRepo) FindByIdempotencyKey(_ context.Context, key string) (*Order, error) {
	o, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// --- Helpers ---

func newListing(id, price string) listing.Listing {
	return listing.Listing{
		ID:       id,
		SellerID: "seller-1",
		Kind:     pricing.KindProduct,
		Title:    "Listing " + id,
		Price:    decimal.RequireFromString(price),
		Currency: "USD",
		Active:   true,
	}
}

func newListingRepo(ls ...listing.Listing) *mockListingRepo {
	byID := make(map[string]listing.Listing, len(ls))
	for _, l := range ls {
		byID[l.ID] = l
	}
	return &mockListingRepo{byID: byID}
}

func cartItem(id, price string, qty int) pricing.Item {
	return pricing.Item{
		ID:        id,
		Kind:      pricing.KindProduct,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
		Currency:  "USD",
	}
}

func payer() checkout.PayerDetails {
	return checkout.PayerDetails{
		FullName:     "Ada Lovelace",
		Email:        "ada@example.com",
		AddressLine1: "12 St James's Square",
		City:         "London",
		PostalCode:   "SW1Y 4JH",
		Country:      "GB",
	}
}

type fixture struct {
	svc      *Service
	listings *mockListingRepo
	promos   *mockPromoRepo
	orders   *mockOrderRepo
}

func newFixture(ls ...listing.Listing) *fixture {
	f := &fixture{
		listings: newListingRepo(ls...),
		promos: &mockPromoRepo{rules: map[string]*promo.Rule{
			"SAVE10": {Code: "SAVE10", Kind: promo.KindFixed, Value: decimal.NewFromInt(10), Description: "$10 off"},
			"LIMITED": {
				Code: "LIMITED", Kind: promo.KindPercentage, Value: decimal.NewFromInt(10),
				MaxUses: 1, Uses: 1,
			},
		}},
		orders: &mockOrderRepo{},
	}
	f.svc = NewService(
		f.listings,
		promo.NewRepoValidator(f.promos),
		f.promos,
		f.orders,
		pricing.NewCalculator(pricing.DefaultRates()),
		nil,
	)
	return f
}

func request(key string, items ...pricing.Item) checkout.OrderRequest {
	return checkout.OrderRequest{
		IdempotencyKey:  key,
		Items:           items,
		Payer:           payer(),
		PaymentMethodID: "pm_card_visa",
		Currency:        "USD",
	}
}

// --- Tests ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), request("k1"))
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	f := newFixture(newListing("p1", "10.00"))

	_, err := f.svc.PlaceOrder(context.Background(), request("k1", cartItem("p1", "10.00", 0)))

	var qtyErr *pricing.InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, "p1", qtyErr.ItemID)
}

func TestPlaceOrder_IncompletePayer(t *testing.T) {
	f := newFixture(newListing("p1", "10.00"))
	req := request("k1", cartItem("p1", "10.00", 1))
	req.Payer.Email = "not-an-email"

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, checkout.ErrValidation)
}

func TestPlaceOrder_CatalogChecks(t *testing.T) {
	inactive := newListing("gone", "5.00")
	inactive.Active = false
	booking := newListing("b1", "80.00")
	booking.Kind = pricing.KindBooking
	euro := newListing("e1", "7.00")
	euro.Currency = "EUR"

	tests := []struct {
		name  string
		item  pricing.Item
		check func(t *testing.T, err error)
	}{
		{
			name: "missing listing",
			item: cartItem("missing", "1.00", 1),
			check: func(t *testing.T, err error) {
				var nf *ListingNotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, "missing", nf.ListingID)
			},
		},
		{
			name: "inactive listing",
			item: cartItem("gone", "5.00", 1),
			check: func(t *testing.T, err error) {
				var nf *ListingNotFoundError
				require.ErrorAs(t, err, &nf)
			},
		},
		{
			name: "kind mismatch",
			item: cartItem("b1", "80.00", 1),
			check: func(t *testing.T, err error) {
				var mm *ListingMismatchError
				require.ErrorAs(t, err, &mm)
				assert.Equal(t, "kind", mm.Field)
			},
		},
		{
			name: "currency mismatch",
			item: cartItem("e1", "7.00", 1),
			check: func(t *testing.T, err error) {
				var mm *ListingMismatchError
				require.ErrorAs(t, err, &mm)
				assert.Equal(t, "currency", mm.Field)
			},
		},
		{
			name: "stale price",
			item: cartItem("p1", "9.00", 1),
			check: func(t *testing.T, err error) {
				var pm *PriceMismatchError
				require.ErrorAs(t, err, &pm)
				assert.True(t, decimal.RequireFromString("10.00").Equal(pm.Catalog))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(newListing("p1", "10.00"), inactive, booking, euro)

			_, err := f.svc.PlaceOrder(context.Background(), request("k1", tt.item))
			tt.check(t, err)
			assert.Zero(t, f.orders.created)
		})
	}
}

func TestPlaceOrder_RepositoryError(t *testing.T) {
	f := newFixture()
	f.listings.getErr = errors.New("connection refused")

	_, err := f.svc.PlaceOrder(context.Background(), request("k1", cartItem("p1", "10.00", 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get listings")

	_, ok := Reason(err)
	assert.False(t, ok)
}

func TestPlaceOrder_NoPromo(t *testing.T) {
	f := newFixture(newListing("p1", "49.99"))

	o, err := f.svc.PlaceOrder(context.Background(), request("k1", cartItem("p1", "49.99", 1)))
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "k1", o.IdempotencyKey)
	assert.Equal(t, checkout.StatusSuccess, o.Status)
	assert.Equal(t, "55.44", o.Breakdown.Total.StringFixed(2))
	assert.True(t, o.Breakdown.Discount.IsZero())
	assert.Empty(t, f.promos.redeemed)
	assert.Equal(t, 1, f.orders.created)
}

func TestPlaceOrder_WithPromo(t *testing.T) {
	f := newFixture(newListing("p1", "49.99"))
	req := request("k1", cartItem("p1", "49.99", 1))
	req.PromoCode = " save10 "
	req.ExpectedTotal = decimal.NewNullDecimal(decimal.RequireFromString("44.35"))

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "SAVE10", o.PromoCode)
	assert.Equal(t, "10.00", o.Breakdown.Discount.StringFixed(2))
	assert.Equal(t, "39.99", o.Breakdown.TaxableAmount.StringFixed(2))
	assert.Equal(t, "44.35", o.Breakdown.Total.StringFixed(2))
	assert.Equal(t, []string{"SAVE10"}, f.promos.redeemed)
}

func TestPlaceOrder_PromoRejected(t *testing.T) {
	f := newFixture(newListing("p1", "20.00"))

	tests := []struct {
		code    string
		message string
	}{
		{code: "NOPE", message: promo.MsgNotFound},
		{code: "LIMITED", message: promo.MsgUsageExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			req := request("k-"+tt.code, cartItem("p1", "20.00", 1))
			req.PromoCode = tt.code

			_, err := f.svc.PlaceOrder(context.Background(), req)

			var pr *PromoRejectedError
			require.ErrorAs(t, err, &pr)
			assert.Equal(t, tt.message, pr.Message)
		})
	}
	assert.Empty(t, f.promos.redeemed)
	assert.Zero(t, f.orders.created)
}

func TestPlaceOrder_RedeemLimitRace(t *testing.T) {
	f := newFixture(newListing("p1", "20.00"))
	f.promos.redeemErr = promo.ErrUsageLimitReached
	req := request("k1", cartItem("p1", "20.00", 1))
	req.PromoCode = "SAVE10"

	_, err := f.svc.PlaceOrder(context.Background(), req)

	reason, ok := Reason(err)
	require.True(t, ok)
	assert.Equal(t, promo.MsgUsageExceeded, reason)
	assert.Zero(t, f.orders.created)
}

func TestPlaceOrder_TotalMismatch(t *testing.T) {
	f := newFixture(newListing("p1", "49.99"))
	req := request("k1", cartItem("p1", "49.99", 1))
	req.ExpectedTotal = decimal.NewNullDecimal(decimal.RequireFromString("50.00"))

	_, err := f.svc.PlaceOrder(context.Background(), req)

	var tm *TotalMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "50.00", tm.Expected)
	assert.Equal(t, "55.44", tm.Actual)
}

func TestPlaceOrder_CreateFailureReleasesPromo(t *testing.T) {
	f := newFixture(newListing("p1", "20.00"))
	f.orders.createErr = errors.New("disk full")
	req := request("k1", cartItem("p1", "20.00", 1))
	req.PromoCode = "SAVE10"

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, []string{"SAVE10"}, f.promos.redeemed)
	assert.Equal(t, []string{"SAVE10"}, f.promos.released)
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	f := newFixture(newListing("p1", "20.00"))
	req := request("same-key", cartItem("p1", "20.00", 2))
	req.PromoCode = "SAVE10"

	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.orders.created)
	assert.Len(t, f.promos.redeemed, 1, "replay must not consume the promo twice")
}

func TestPlaceOrder_GeneratesMissingKey(t *testing.T) {
	f := newFixture(newListing("p1", "20.00"))

	o, err := f.svc.PlaceOrder(context.Background(), request("", cartItem("p1", "20.00", 1)))
	require.NoError(t, err)
	assert.NotEmpty(t, o.IdempotencyKey)
}

func TestSubmitOrder(t *testing.T) {
	f := newFixture(newListing("p1", "20.00"))

	t.Run("success", func(t *testing.T) {
		resp, err := f.svc.SubmitOrder(context.Background(), request("ok", cartItem("p1", "20.00", 1)))
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusSuccess, resp.Status)
		assert.NotEmpty(t, resp.OrderID)
	})

	t.Run("business rejection is a failure response", func(t *testing.T) {
		resp, err := f.svc.SubmitOrder(context.Background(), request("stale", cartItem("p1", "15.00", 1)))
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusFailure, resp.Status)
		assert.Equal(t, "The price of item p1 has changed", resp.Reason)
		assert.Empty(t, resp.OrderID)
	})

	t.Run("infrastructure error is returned", func(t *testing.T) {
		f.listings.getErr = errors.New("timeout")
		defer func() { f.listings.getErr = nil }()

		_, err := f.svc.SubmitOrder(context.Background(), request("down", cartItem("p1", "20.00", 1)))
		require.Error(t, err)
	})
}

func TestSubmitOrder_DrivesSession(t *testing.T) {
	f := newFixture(newListing("p1", "49.99"))

	s, err := checkout.NewSession(checkout.Deps{
		Gateway: f.svc,
		Promos:  promo.NewRepoValidator(f.promos),
	}, []pricing.Item{cartItem("p1", "49.99", 1)})
	require.NoError(t, err)

	res, err := s.ApplyPromo(context.Background(), "save10")
	require.NoError(t, err)
	require.True(t, res.Valid)

	s.SetPayer(payer())
	s.AcceptPolicy(true)
	require.NoError(t, s.Submit(context.Background()))

	assert.Equal(t, checkout.StateSuccess, s.State())
	assert.NotEmpty(t, s.OrderID())
	assert.Equal(t, "44.35", s.Snapshot().Total.StringFixed(2))
	assert.Equal(t, []string{"SAVE10"}, f.promos.redeemed)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
		ok   bool
	}{
		{err: ErrEmptyItems, want: checkout.MsgEmptyCart, ok: true},
		{err: &ListingNotFoundError{ListingID: "x"}, want: "Item x is no longer available", ok: true},
		{err: &PromoRejectedError{Code: "A", Message: promo.MsgExpired}, want: promo.MsgExpired, ok: true},
		{err: &TotalMismatchError{}, want: "Your order total has changed, please review your order", ok: true},
		{err: errors.Wrap(&pricing.MixedCurrencyError{ItemID: "b"}, "price"), want: "All items must be priced in the same currency", ok: true},
		{err: errors.New("boom"), ok: false},
	}

	for _, tt := range tests {
		got, ok := Reason(tt.err)
		assert.Equal(t, tt.ok, ok, "%v", tt.err)
		assert.Equal(t, tt.want, got, "%v", tt.err)
	}
}

package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/listing"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

var _ checkout.Gateway = (*Service)(nil)

// Service settles orders on the marketplace side. It trusts nothing from the
// client: prices come from the catalog, the breakdown is recomputed and the
// promo code is validated again before any usage is consumed.
type Service struct {
	listings listing.Repository
	promos   checkout.PromoValidator
	redeemer promo.Redeemer
	orders   Repository
	calc     *pricing.Calculator
	lg       *zap.Logger
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	listings listing.Repository,
	promos checkout.PromoValidator,
	redeemer promo.Redeemer,
	orders Repository,
	calc *pricing.Calculator,
	lg *zap.Logger,
) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		listings: listings,
		promos:   promos,
		redeemer: redeemer,
		orders:   orders,
		calc:     calc,
		lg:       lg,
		now:      time.Now,
	}
}

// SubmitOrder implements checkout.Gateway. Business rejections are returned
// as failure responses; only infrastructure faults are errors.
func (s *Service) SubmitOrder(ctx context.Context, req checkout.OrderRequest) (checkout.OrderResponse, error) {
	o, err := s.PlaceOrder(ctx, req)
	if err != nil {
		if reason, ok := Reason(err); ok {
			s.lg.Info("Order rejected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("reason", reason),
				zap.Error(err),
			)
			return checkout.OrderResponse{Status: checkout.StatusFailure, Reason: reason}, nil
		}
		return checkout.OrderResponse{}, err
	}
	return checkout.OrderResponse{OrderID: o.ID, Status: checkout.StatusSuccess}, nil
}

// PlaceOrder validates the request against the catalog, recomputes the
// breakdown, redeems the promo code and persists the order. A request whose
// idempotency key was already settled returns the stored order unchanged.
func (s *Service) PlaceOrder(ctx context.Context, req checkout.OrderRequest) (*Order, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	} else if existing, err := s.orders.FindByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find order by idempotency key: %w", err)
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, &pricing.InvalidQuantityError{ItemID: it.ID, Quantity: it.Quantity}
		}
	}
	if err := req.Payer.Validate(); err != nil {
		return nil, err
	}
	if err := s.verifyCatalog(ctx, req.Items); err != nil {
		return nil, err
	}

	base, err := s.calc.Compute(req.Items, decimal.Zero)
	if err != nil {
		return nil, err
	}

	code := promo.Normalize(req.PromoCode)
	discount := decimal.Zero
	if code != "" {
		res, err := s.promos.Validate(ctx, code, base.Subtotal)
		if err != nil {
			return nil, fmt.Errorf("validate promo: %w", err)
		}
		if !res.Valid {
			return nil, &PromoRejectedError{Code: code, Message: res.Message}
		}
		discount = res.Resolve(base.Subtotal, base.Currency)
	}

	b, err := s.calc.Compute(req.Items, discount)
	if err != nil {
		return nil, err
	}
	if err := checkExpected(req, b); err != nil {
		return nil, err
	}

	if code != "" {
		if err := s.redeemer.Redeem(ctx, code); err != nil {
			if errors.Is(err, promo.ErrUsageLimitReached) {
				return nil, &PromoRejectedError{Code: code, Message: promo.MsgUsageExceeded}
			}
			return nil, fmt.Errorf("redeem promo: %w", err)
		}
	}

	o := &Order{
		ID:              uuid.NewString(),
		IdempotencyKey:  req.IdempotencyKey,
		Status:          checkout.StatusSuccess,
		Breakdown:       b,
		PromoCode:       code,
		Payer:           req.Payer.Normalized(),
		PaymentMethodID: req.PaymentMethodID,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		s.release(ctx, code)
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent request carrying the same key.
			return s.orders.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("idempotency_key", o.IdempotencyKey),
		zap.String("total", b.Currency.Format(b.Total)),
		zap.String("currency", b.Currency.Code()),
	)
	return o, nil
}

// verifyCatalog fetches all listings in a single batch and checks each item
// against its catalog entry.
func (s *Service) verifyCatalog(ctx context.Context, items []pricing.Item) error {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	fetched, err := s.listings.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("get listings: %w", err)
	}
	byID := make(map[string]listing.Listing, len(fetched))
	for _, l := range fetched {
		byID[l.ID] = l
	}

	for _, it := range items {
		l, ok := byID[it.ID]
		if !ok || !l.Active {
			return &ListingNotFoundError{ListingID: it.ID}
		}
		if l.Kind != it.Kind {
			return &ListingMismatchError{ListingID: it.ID, Field: "kind"}
		}
		if !strings.EqualFold(l.Currency, it.Currency) {
			return &ListingMismatchError{ListingID: it.ID, Field: "currency"}
		}
		if !l.Price.Equal(it.UnitPrice) {
			return &PriceMismatchError{ListingID: it.ID, Catalog: l.Price, Cart: it.UnitPrice}
		}
	}
	return nil
}

func checkExpected(req checkout.OrderRequest, b *pricing.Breakdown) error {
	if req.Currency != "" && !strings.EqualFold(req.Currency, b.Currency.Code()) {
		return &TotalMismatchError{
			Expected: req.Currency,
			Actual:   b.Currency.Code(),
		}
	}
	if req.ExpectedTotal.Valid && !req.ExpectedTotal.Decimal.Equal(b.Total) {
		return &TotalMismatchError{
			Expected: b.Currency.Format(req.ExpectedTotal.Decimal),
			Actual:   b.Currency.Format(b.Total),
		}
	}
	return nil
}

func (s *Service) release(ctx context.Context, code string) {
	if code == "" {
		return
	}
	if err := s.redeemer.Release(context.WithoutCancel(ctx), code); err != nil {
		s.lg.Error("Release promo redemption", zap.String("code", code), zap.Error(err))
	}
}

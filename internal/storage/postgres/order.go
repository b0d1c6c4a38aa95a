package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/marketplace-checkout/internal/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/money"
	"github.com/xenking/marketplace-checkout/internal/domain/order"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
	"github.com/xenking/marketplace-checkout/internal/wire"
)

const (
	createOrderSQL = `INSERT INTO orders (id, idempotency_key, status, currency, lines,
		subtotal, discount, taxable_amount, tax, platform_fee, commission, total,
		promo_code, payer, payment_method_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	getOrderByKeySQL = `SELECT id, idempotency_key, status, currency, lines,
		subtotal, discount, taxable_amount, tax, platform_fee, commission, total,
		promo_code, payer, payment_method_id, created_at
		FROM orders WHERE idempotency_key = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Lines and payer details are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := o.Breakdown
	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.IdempotencyKey, string(o.Status), b.Currency.Code(), wire.EncodeLines(b.Currency, b.Lines),
		b.Subtotal, b.Discount, b.TaxableAmount, b.Tax, b.PlatformFee, b.CommissionPreview, b.Total,
		o.PromoCode, wire.EncodePayer(o.Payer), o.PaymentMethodID, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicate
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// FindByIdempotencyKey returns order.ErrNotFound when no order matches.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByKeySQL, key)
	if err != nil {
		return nil, fmt.Errorf("finding order by key %q: %w", key, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order by key %q: %w", key, err)
	}
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o        order.Order
		b        pricing.Breakdown
		status   string
		currency string
		lines    []byte
		payer    []byte
	)
	err := row.Scan(
		&o.ID, &o.IdempotencyKey, &status, &currency, &lines,
		&b.Subtotal, &b.Discount, &b.TaxableAmount, &b.Tax, &b.PlatformFee, &b.CommissionPreview, &b.Total,
		&o.PromoCode, &payer, &o.PaymentMethodID, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.Currency, err = money.ParseCurrency(currency); err != nil {
		return nil, err
	}
	if b.Lines, err = wire.DecodeLines(lines); err != nil {
		return nil, errors.Wrap(err, "decode lines")
	}
	if o.Payer, err = wire.DecodePayer(payer); err != nil {
		return nil, errors.Wrap(err, "decode payer")
	}
	o.Status = checkout.OrderStatus(status)
	o.Breakdown = &b
	return &o, nil
}

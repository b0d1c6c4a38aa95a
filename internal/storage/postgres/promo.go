package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

const (
	getPromoByCodeSQL = `SELECT code, kind, value, min_subtotal, max_discount, description,
		valid_from, valid_until, max_uses, uses
		FROM promos WHERE code = UPPER($1) AND active = TRUE`

	listPromoCodesSQL = `SELECT code FROM promos WHERE active = TRUE`

	// The guard keeps concurrent redemptions from overshooting max_uses.
	redeemPromoSQL = `UPDATE promos SET uses = uses + 1
		WHERE code = $1 AND active = TRUE AND (max_uses = 0 OR uses < max_uses)`

	releasePromoSQL = `UPDATE promos SET uses = uses - 1 WHERE code = $1 AND uses > 0`

	promoExistsSQL = `SELECT EXISTS (SELECT 1 FROM promos WHERE code = $1 AND active = TRUE)`

	upsertPromoSQL = `INSERT INTO promos (code, kind, value, min_subtotal, max_discount, description,
		valid_from, valid_until, max_uses, active)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			kind         = EXCLUDED.kind,
			value        = EXCLUDED.value,
			min_subtotal = EXCLUDED.min_subtotal,
			max_discount = EXCLUDED.max_discount,
			description  = EXCLUDED.description,
			valid_from   = EXCLUDED.valid_from,
			valid_until  = EXCLUDED.valid_until,
			max_uses     = EXCLUDED.max_uses,
			active       = TRUE`
)

var (
	_ promo.Repository = (*PromoRepository)(nil)
	_ promo.Redeemer   = (*PromoRepository)(nil)
)

// PromoRepository implements promo.Repository and promo.Redeemer backed by
// PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks up an active promotion by its normalized code.
// Returns promo.ErrNotFound when no matching active promotion exists.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Rule, error) {
	rows, err := r.pool.Query(ctx, getPromoByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promo by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanPromoRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo by code %q: %w", code, err)
	}
	return &rule, nil
}

// ListCodes returns every active code, used to warm the bloom filter.
func (r *PromoRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listPromoCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promo codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Redeem consumes one use of code. It returns promo.ErrUsageLimitReached
// when no uses are left and promo.ErrNotFound when the code is unknown.
func (r *PromoRepository) Redeem(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, redeemPromoSQL, code)
	if err != nil {
		return fmt.Errorf("redeeming promo %q: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, promoExistsSQL, code).Scan(&exists); err != nil {
		return fmt.Errorf("checking promo %q: %w", code, err)
	}
	if !exists {
		return promo.ErrNotFound
	}
	return promo.ErrUsageLimitReached
}

// Release gives back one use of code after a failed order.
func (r *PromoRepository) Release(ctx context.Context, code string) error {
	if _, err := r.pool.Exec(ctx, releasePromoSQL, code); err != nil {
		return fmt.Errorf("releasing promo %q: %w", code, err)
	}
	return nil
}

// Upsert inserts or replaces promotions in a single batch. Usage counters of
// existing promotions are preserved.
func (r *PromoRepository) Upsert(ctx context.Context, rules []promo.Rule) error {
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(upsertPromoSQL,
			rule.Code, string(rule.Kind), rule.Value, rule.MinSubtotal, rule.MaxDiscount,
			rule.Description, rule.ValidFrom, rule.ValidUntil, rule.MaxUses,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d promos: %w", len(rules), err)
	}
	return nil
}

func scanPromoRule(row pgx.CollectableRow) (promo.Rule, error) {
	var (
		rule       promo.Rule
		kind       string
		validFrom  *time.Time
		validUntil *time.Time
		maxUses    int32
		uses       int32
	)
	err := row.Scan(
		&rule.Code, &kind, &rule.Value, &rule.MinSubtotal, &rule.MaxDiscount, &rule.Description,
		&validFrom, &validUntil, &maxUses, &uses,
	)
	rule.Kind = promo.Kind(kind)
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	rule.MaxUses = int(maxUses)
	rule.Uses = int(uses)
	return rule, err
}

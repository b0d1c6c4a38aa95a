package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/marketplace-checkout/internal/domain/listing"
	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

const (
	listListingsSQL = `SELECT id, seller_id, kind, title, price, currency, active
		FROM listings WHERE active = TRUE ORDER BY id`

	getListingsByIDsSQL = `SELECT id, seller_id, kind, title, price, currency, active
		FROM listings WHERE id = ANY($1)`

	upsertListingSQL = `INSERT INTO listings (id, seller_id, kind, title, price, currency, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			seller_id = EXCLUDED.seller_id,
			kind      = EXCLUDED.kind,
			title     = EXCLUDED.title,
			price     = EXCLUDED.price,
			currency  = EXCLUDED.currency,
			active    = EXCLUDED.active`
)

var _ listing.Repository = (*ListingRepository)(nil)

// ListingRepository implements listing.Repository backed by PostgreSQL.
type ListingRepository struct {
	pool *pgxpool.Pool
}

// NewListingRepository returns a ListingRepository that uses the given pool.
func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

// List returns all active listings ordered by ID.
func (r *ListingRepository) List(ctx context.Context) ([]listing.Listing, error) {
	rows, err := r.pool.Query(ctx, listListingsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	return pgx.CollectRows(rows, scanListing)
}

// GetByIDs returns listings matching any of the given IDs, inactive ones
// included so callers can tell "gone" from "never existed".
func (r *ListingRepository) GetByIDs(ctx context.Context, ids []string) ([]listing.Listing, error) {
	rows, err := r.pool.Query(ctx, getListingsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting listings by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanListing)
}

// Upsert inserts or replaces listings in a single batch.
func (r *ListingRepository) Upsert(ctx context.Context, ls []listing.Listing) error {
	batch := &pgx.Batch{}
	for _, l := range ls {
		batch.Queue(upsertListingSQL, l.ID, l.SellerID, string(l.Kind), l.Title, l.Price, l.Currency, l.Active)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d listings: %w", len(ls), err)
	}
	return nil
}

func scanListing(row pgx.CollectableRow) (listing.Listing, error) {
	var (
		l    listing.Listing
		kind string
	)
	err := row.Scan(&l.ID, &l.SellerID, &kind, &l.Title, &l.Price, &l.Currency, &l.Active)
	l.Kind = pricing.ItemKind(kind)
	return l, err
}

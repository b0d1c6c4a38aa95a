// Command seed-db applies migrations and seeds demo listings, promo codes
// and one API key.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/domain/auth"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
	"github.com/xenking/marketplace-checkout/internal/storage/postgres"
	"github.com/xenking/marketplace-checkout/internal/wire"
)

type options struct {
	databaseURL  string
	listingsFile string
	apiKey       string
	apiKeyPepper string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.listingsFile, "listings-file", "db/seed/listings.json", "path to listings JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		switch {
		case opts.databaseURL == "":
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		case opts.apiKey == "":
			return errors.New("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		}
		return run(ctx, lg, opts)
	})
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedListings(ctx, lg, postgres.NewListingRepository(pool), opts.listingsFile); err != nil {
		return errors.Wrap(err, "seed listings")
	}
	if err := seedPromos(ctx, lg, postgres.NewPromoRepository(pool)); err != nil {
		return errors.Wrap(err, "seed promos")
	}
	if err := seedAPIKey(ctx, lg, postgres.NewAPIKeyRepository(pool), opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	lg.Info("Seed completed")
	return nil
}

func seedListings(ctx context.Context, lg *zap.Logger, repo *postgres.ListingRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read listings file")
	}
	ls, err := wire.DecodeListings(data)
	if err != nil {
		return errors.Wrap(err, "parse listings")
	}
	if err := repo.Upsert(ctx, ls); err != nil {
		return err
	}
	lg.Info("Upserted listings", zap.Int("count", len(ls)))
	return nil
}

func seedPromos(ctx context.Context, lg *zap.Logger, repo *postgres.PromoRepository) error {
	expired := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := []promo.Rule{
		{
			Code:        "SAVE10",
			Kind:        promo.KindFixed,
			Value:       decimal.NewFromInt(10),
			Description: "$10 off your order",
		},
		{
			Code:        "SPRING15",
			Kind:        promo.KindPercentage,
			Value:       decimal.NewFromInt(15),
			MaxDiscount: decimal.NewFromInt(20),
			Description: "15% off, up to $20",
		},
		{
			Code:        "BIGSPENDER",
			Kind:        promo.KindPercentage,
			Value:       decimal.NewFromInt(20),
			MinSubtotal: decimal.NewFromInt(200),
			Description: "20% off orders over $200",
		},
		{
			Code:        "FIRSTONLY",
			Kind:        promo.KindFixed,
			Value:       decimal.NewFromInt(5),
			MaxUses:     1,
			Description: "$5 off, single use",
		},
		{
			Code:        "WINTER23",
			Kind:        promo.KindPercentage,
			Value:       decimal.NewFromInt(25),
			ValidUntil:  &expired,
			Description: "Expired winter sale",
		},
	}
	if err := repo.Upsert(ctx, rules); err != nil {
		return err
	}
	lg.Info("Upserted promo codes", zap.Int("count", len(rules)))
	return nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo *postgres.APIKeyRepository, key, pepper string) error {
	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), key),
		Name:    "Default storefront key",
		Scopes:  []string{"checkout"},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return err
	}
	lg.Info("Upserted API key", zap.String("id", info.ID), zap.String("name", info.Name))
	return nil
}

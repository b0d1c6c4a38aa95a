// Command promo-ingest loads promo rules from CSV files (optionally gzipped)
// and upserts them in batches.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/ingest"
	"github.com/xenking/marketplace-checkout/internal/storage/postgres"
)

const batchSize = 1000

func main() {
	var (
		pattern     string
		databaseURL string
	)
	flag.StringVar(&pattern, "files", "data/promos*.csv.gz", "glob of promo CSV files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(ctx, lg, pattern, databaseURL)
	})
}

func run(ctx context.Context, lg *zap.Logger, pattern, databaseURL string) error {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "glob")
	}
	if len(paths) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}

	lg.Info("Parsing promo files", zap.Int("files", len(paths)))
	rules, err := ingest.Files(ctx, lg, paths)
	if err != nil {
		return errors.Wrap(err, "parse promo files")
	}
	if len(rules) == 0 {
		lg.Info("No promo rules to write")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewPromoRepository(pool)
	for start := 0; start < len(rules); start += batchSize {
		end := min(start+batchSize, len(rules))
		if err := repo.Upsert(ctx, rules[start:end]); err != nil {
			return errors.Wrapf(err, "upsert rules %d-%d", start, end)
		}
		lg.Info("Write progress", zap.Int("written", end), zap.Int("total", len(rules)))
	}
	return nil
}

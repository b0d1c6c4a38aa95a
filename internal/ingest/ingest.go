// Package ingest loads promo rules from CSV files, optionally gzipped.
//
// Each record is
//
//	code,kind,value[,min_subtotal[,max_discount[,max_uses[,valid_from[,valid_until[,description]]]]]]
//
// Lines starting with # are comments. Empty optional fields keep their zero
// value; timestamps are RFC 3339.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

const (
	colCode = iota
	colKind
	colValue
	colMinSubtotal
	colMaxDiscount
	colMaxUses
	colValidFrom
	colValidUntil
	colDescription
	numCols
)

// LineError locates a malformed record.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return e.Path + ":" + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *LineError) Unwrap() error { return e.Err }

// Files parses every path concurrently and merges the rules. When a code
// appears more than once, the later file (or later line) wins.
func Files(ctx context.Context, lg *zap.Logger, paths []string) ([]promo.Rule, error) {
	parsed := make([][]promo.Rule, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			rules, err := File(ctx, path)
			if err != nil {
				return err
			}
			lg.Info("Parsed promo file", zap.String("path", path), zap.Int("rules", len(rules)))
			parsed[i] = rules
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(lg, parsed), nil
}

func merge(lg *zap.Logger, parsed [][]promo.Rule) []promo.Rule {
	index := make(map[string]int)
	var out []promo.Rule
	for _, rules := range parsed {
		for _, r := range rules {
			if i, ok := index[r.Code]; ok {
				lg.Debug("Duplicate promo code, keeping the later rule", zap.String("code", r.Code))
				out[i] = r
				continue
			}
			index[r.Code] = len(out)
			out = append(out, r)
		}
	}
	return out
}

// File parses one file. Names ending in .gz are decompressed.
func File(ctx context.Context, path string) ([]promo.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return Parse(ctx, path, r)
}

// Parse reads records from r. name is used in error messages.
func Parse(ctx context.Context, name string, r io.Reader) ([]promo.Rule, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var rules []promo.Rule
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rules, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, name)
		}

		line, _ := cr.FieldPos(0)
		rule, err := parseRecord(rec)
		if err != nil {
			return nil, &LineError{Path: name, Line: line, Err: err}
		}
		rules = append(rules, rule)
	}
}

func parseRecord(rec []string) (promo.Rule, error) {
	if len(rec) < colValue+1 || len(rec) > numCols {
		return promo.Rule{}, errors.Errorf("want %d to %d fields, got %d", colValue+1, numCols, len(rec))
	}
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	rule := promo.Rule{
		Code:        promo.Normalize(field(colCode)),
		Kind:        promo.Kind(strings.ToLower(field(colKind))),
		Description: field(colDescription),
	}
	if rule.Code == "" {
		return promo.Rule{}, errors.New("empty code")
	}
	if !rule.Kind.Valid() {
		return promo.Rule{}, errors.Errorf("unknown kind %q", rule.Kind)
	}

	var err error
	if rule.Value, err = parseAmount(field(colValue)); err != nil {
		return promo.Rule{}, errors.Wrap(err, "value")
	}
	if rule.Kind == promo.KindPercentage && rule.Value.GreaterThan(decimal.NewFromInt(100)) {
		return promo.Rule{}, errors.Errorf("percentage %s exceeds 100", rule.Value)
	}
	if rule.MinSubtotal, err = parseAmount(field(colMinSubtotal)); err != nil {
		return promo.Rule{}, errors.Wrap(err, "min_subtotal")
	}
	if rule.MaxDiscount, err = parseAmount(field(colMaxDiscount)); err != nil {
		return promo.Rule{}, errors.Wrap(err, "max_discount")
	}
	if s := field(colMaxUses); s != "" {
		if rule.MaxUses, err = strconv.Atoi(s); err != nil || rule.MaxUses < 0 {
			return promo.Rule{}, errors.Errorf("max_uses: invalid %q", s)
		}
	}
	if rule.ValidFrom, err = parseTime(field(colValidFrom)); err != nil {
		return promo.Rule{}, errors.Wrap(err, "valid_from")
	}
	if rule.ValidUntil, err = parseTime(field(colValidUntil)); err != nil {
		return promo.Rule{}, errors.Wrap(err, "valid_until")
	}
	if rule.ValidFrom != nil && rule.ValidUntil != nil && rule.ValidUntil.Before(*rule.ValidFrom) {
		return promo.Rule{}, errors.New("valid_until is before valid_from")
	}
	return rule, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if v.IsNegative() {
		return decimal.Decimal{}, errors.Errorf("negative amount %s", s)
	}
	return v, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

package promo

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

var _ Repository = (*BloomGuard)(nil)

// BloomGuard answers definite misses from an in-memory bloom filter before
// touching the wrapped Repository. Codes added after Load are invisible
// until the next Load.
type BloomGuard struct {
	repo     Repository
	capacity uint
	fpr      float64

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewBloomGuard wraps repo. Until Load succeeds every lookup goes to repo.
func NewBloomGuard(repo Repository, capacity uint, fpr float64) *BloomGuard {
	return &BloomGuard{repo: repo, capacity: capacity, fpr: fpr}
}

// Load rebuilds the filter from the repository's code list.
func (g *BloomGuard) Load(ctx context.Context) (int, error) {
	codes, err := g.repo.ListCodes(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list promo codes")
	}

	capacity := g.capacity
	if n := uint(len(codes)); n > capacity {
		capacity = n
	}
	capacity = max(capacity, 1)
	filter := bloom.NewWithEstimates(capacity, g.fpr)
	for _, c := range codes {
		filter.AddString(Normalize(c))
	}

	g.mu.Lock()
	g.filter = filter
	g.mu.Unlock()
	return len(codes), nil
}

// Loaded reports whether a filter is in place.
func (g *BloomGuard) Loaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filter != nil
}

// FindByCode returns ErrNotFound without a repository call when the filter
// rules the code out.
func (g *BloomGuard) FindByCode(ctx context.Context, code string) (*Rule, error) {
	g.mu.RLock()
	filter := g.filter
	g.mu.RUnlock()

	if filter != nil && !filter.TestString(Normalize(code)) {
		return nil, ErrNotFound
	}
	return g.repo.FindByCode(ctx, code)
}

// ListCodes delegates to the wrapped repository.
func (g *BloomGuard) ListCodes(ctx context.Context) ([]string, error) {
	return g.repo.ListCodes(ctx)
}

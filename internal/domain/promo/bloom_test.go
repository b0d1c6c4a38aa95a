package promo

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBloomGuard_FindByCode(t *testing.T) {
	repo := newMockRepo(
		&Rule{Code: "SAVE10", Kind: KindFixed, Value: decimal.NewFromInt(10)},
		&Rule{Code: "TENPCT", Kind: KindPercentage, Value: decimal.NewFromInt(10)},
	)
	g := NewBloomGuard(repo, 1000, 0.0001)

	// Before Load every lookup hits the repository.
	_, err := g.FindByCode(context.Background(), "MISSING")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"MISSING"}, repo.lookups)
	assert.False(t, g.Loaded())

	n, err := g.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, g.Loaded())

	repo.lookups = nil
	rule, err := g.FindByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", rule.Code)
	assert.Equal(t, []string{"SAVE10"}, repo.lookups)

	repo.lookups = nil
	_, err = g.FindByCode(context.Background(), "DEFINITELY-NOT-A-CODE")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, repo.lookups, "filter miss must not reach the repository")
}

func TestBloomGuard_LoadError(t *testing.T) {
	repo := newMockRepo()
	repo.listErr = errors.New("timeout")
	g := NewBloomGuard(repo, 10, 0.01)

	_, err := g.Load(context.Background())
	require.Error(t, err)
	assert.False(t, g.Loaded())
}

func TestBloomGuard_WithValidator(t *testing.T) {
	repo := newMockRepo(&Rule{Code: "SAVE10", Kind: KindFixed, Value: decimal.NewFromInt(10)})
	g := NewBloomGuard(repo, 0, 0.001)
	_, err := g.Load(context.Background())
	require.NoError(t, err)

	v := NewRepoValidator(g)
	res, err := v.Validate(context.Background(), "nothing", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgNotFound, res.Message)

	res, err = v.Validate(context.Background(), "save10", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

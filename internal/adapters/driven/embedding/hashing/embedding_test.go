package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/paperdex/internal/core/domain"
)

func TestNewEmbeddingService(t *testing.T) {
	assert.Equal(t, DefaultDimensions, NewEmbeddingService(0).Dimensions())
	assert.Equal(t, 64, NewEmbeddingService(64).Dimensions())
	assert.Equal(t, DefaultModel, NewEmbeddingService(0).ModelName())
}

func TestEmbed_UnitLengthAndDeterministic(t *testing.T) {
	svc := NewEmbeddingService(128)
	ctx := context.Background()

	a, err := svc.Embed(ctx, "Gravity bends light around massive objects")
	require.NoError(t, err)
	b, err := svc.Embed(ctx, "Gravity bends light around massive objects")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a, 128)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbed_RelatedTextIsCloser(t *testing.T) {
	svc := NewEmbeddingService(DefaultDimensions)
	ctx := context.Background()

	query, err := svc.Embed(ctx, "gravitational lensing of light")
	require.NoError(t, err)
	related, err := svc.Embed(ctx, "lensing bends light through gravitational fields")
	require.NoError(t, err)
	unrelated, err := svc.Embed(ctx, "protein folding in yeast cells")
	require.NoError(t, err)

	assert.Less(t, vecmath.CosineDistance(query, related), vecmath.CosineDistance(query, unrelated))
}

func TestEmbed_StemmingMatchesInflections(t *testing.T) {
	svc := NewEmbeddingService(DefaultDimensions)
	ctx := context.Background()

	a, err := svc.Embed(ctx, "galaxies")
	require.NoError(t, err)
	b, err := svc.Embed(ctx, "galaxy")
	require.NoError(t, err)

	assert.InDelta(t, 0, vecmath.CosineDistance(a, b), 1e-6)
}

func TestEmbed_SymbolsOnly(t *testing.T) {
	svc := NewEmbeddingService(64)
	ctx := context.Background()

	a, err := svc.Embed(ctx, "= ± ≤ ∑ →")
	require.NoError(t, err)
	b, err := svc.Embed(ctx, "= ± ≤ ∑ →")
	require.NoError(t, err)
	other, err := svc.Embed(ctx, "???")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbed_Empty(t *testing.T) {
	for _, text := range []string{"", "  \n\t "} {
		_, err := NewEmbeddingService(8).Embed(context.Background(), text)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "%q", text)
	}
}

func TestEmbed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbeddingService(8).Embed(ctx, "text")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedBatch(t *testing.T) {
	svc := NewEmbeddingService(32)
	ctx := context.Background()

	vecs, err := svc.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	alpha, err := svc.Embed(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, alpha, vecs[0])

	_, err = svc.EmbedBatch(ctx, []string{"ok", ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPingAndClose(t *testing.T) {
	svc := NewEmbeddingService(8)
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

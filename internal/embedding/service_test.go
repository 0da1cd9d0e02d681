package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-rag-core/config"
	"github.com/tas-rag-core/models"
)

type fakePrimary struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakePrimary) Embed(ctx context.Context, text, model string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func testVector() []float32 {
	v := make([]float32, VectorDim)
	v[0] = 1.0
	return v
}

func TestEmbed_EmptyTextReturnsZeroVectorWithoutCallingPrimary(t *testing.T) {
	p := &fakePrimary{vec: testVector()}
	s := NewService(&config.EmbeddingConfig{CacheMax: 10, BatchTimeout: 1}, config.EnvironmentTest, p)

	vec, err := s.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, VectorDim)
	for _, v := range vec {
		assert.Equal(t, float32(0), v)
	}
	assert.Equal(t, 0, p.calls)
}

func TestEmbed_CacheHitAvoidsSecondCall(t *testing.T) {
	p := &fakePrimary{vec: testVector()}
	s := NewService(&config.EmbeddingConfig{CacheMax: 10, BatchTimeout: 1}, config.EnvironmentTest, p)

	v1, err := s.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := s.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, p.calls)
}

func TestEmbed_FallsBackOnUpstreamError(t *testing.T) {
	p := &fakePrimary{err: models.NewUpstreamError("boom", errors.New("timeout"))}
	s := NewService(&config.EmbeddingConfig{CacheMax: 10, BatchTimeout: 1}, config.EnvironmentTest, p)

	vec, err := s.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vec, VectorDim)
}

func TestEmbed_AuthErrorInProductionIsConfigError(t *testing.T) {
	p := &fakePrimary{err: models.NewUpstreamAuthError("401", nil)}
	s := NewService(&config.EmbeddingConfig{CacheMax: 10, BatchTimeout: 1}, config.EnvironmentProduction, p)

	_, err := s.Embed(context.Background(), "some text")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindConfiguration))
}

func TestEmbedBatch_ContinuesOnPerItemFailure(t *testing.T) {
	p := &fakePrimary{err: models.NewUpstreamError("boom", nil)}
	s := NewService(&config.EmbeddingConfig{CacheMax: 10, BatchTimeout: 1}, config.EnvironmentTest, p)

	result, err := s.EmbedBatch(context.Background(), []string{"a", "b", "c"}, 2)
	require.Error(t, err)
	var partial *models.BatchPartialError
	require.True(t, errors.As(err, &partial))
	assert.Len(t, result.Vectors, 3)
	for _, v := range result.Vectors {
		assert.Len(t, v, VectorDim)
	}
}

func TestSimilarity_MismatchedDimsAndZeroVectors(t *testing.T) {
	s := &service{}
	assert.Equal(t, 0.0, s.Similarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, s.Similarity(make([]float32, 3), make([]float32, 3)))
}

func TestSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	s := &service{}
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, s.Similarity(v, v), 1e-9)
}

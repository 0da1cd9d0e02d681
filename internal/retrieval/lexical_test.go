package retrieval

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalIndex_SearchRanksTermOverlap(t *testing.T) {
	idx, err := NewLexicalIndex()
	require.NoError(t, err)

	chunkA, chunkB := uuid.New(), uuid.New()
	docA, docB := uuid.New(), uuid.New()
	require.NoError(t, idx.Index(chunkA, docA, "retrieval augmented generation uses a vector store"))
	require.NoError(t, idx.Index(chunkB, docB, "the weather today is sunny"))

	hits, err := idx.Search(context.Background(), "vector retrieval", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, chunkA, hits[0].ChunkID)
	assert.Equal(t, docA, hits[0].DocID)
}

func TestLexicalIndex_SearchRespectsScopeFilter(t *testing.T) {
	idx, err := NewLexicalIndex()
	require.NoError(t, err)

	chunkA, chunkB := uuid.New(), uuid.New()
	docA, docB := uuid.New(), uuid.New()
	require.NoError(t, idx.Index(chunkA, docA, "taxonomy scoped content about agents"))
	require.NoError(t, idx.Index(chunkB, docB, "taxonomy scoped content about agents"))

	allowed := map[uuid.UUID]struct{}{chunkB: {}}
	hits, err := idx.Search(context.Background(), "agents", 5, allowed)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, chunkB, h.ChunkID)
	}
}

func TestLexicalIndex_SearchEmptyQueryReturnsNoHits(t *testing.T) {
	idx, err := NewLexicalIndex()
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), "   ", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalIndex_DeleteRemovesFromResults(t *testing.T) {
	idx, err := NewLexicalIndex()
	require.NoError(t, err)

	chunkA := uuid.New()
	docA := uuid.New()
	require.NoError(t, idx.Index(chunkA, docA, "ephemeral content"))
	require.NoError(t, idx.Delete([]uuid.UUID{chunkA}))

	hits, err := idx.Search(context.Background(), "ephemeral", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

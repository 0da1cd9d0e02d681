package dagcache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-rag-core/models"
)

func mkNode(id uuid.UUID, parent *uuid.UUID, path ...string) models.TaxonomyNode {
	return models.TaxonomyNode{
		NodeID:        id,
		Label:         path[len(path)-1],
		CanonicalPath: path,
		Version:       "v1",
		Confidence:    1.0,
		ParentID:      parent,
	}
}

func TestBuild_SingleRootAcyclic(t *testing.T) {
	root := uuid.New()
	ai := uuid.New()
	rag := uuid.New()

	nodes := []models.TaxonomyNode{
		mkNode(root, nil, "root"),
		mkNode(ai, &root, "root", "AI"),
		mkNode(rag, &ai, "root", "AI", "RAG"),
	}

	dag, err := Build("v1", nodes)
	require.NoError(t, err)

	desc := dag.Descendants([]uuid.UUID{ai})
	assert.Contains(t, desc, ai)
	assert.Contains(t, desc, rag)
	assert.NotContains(t, desc, root)
}

func TestBuild_RejectsMultipleRoots(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	nodes := []models.TaxonomyNode{
		mkNode(a, nil, "a"),
		mkNode(b, nil, "b"),
	}
	_, err := Build("v1", nodes)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindDataIntegrity))
}

func TestBuild_RejectsCycle(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	nodeA := mkNode(a, &b, "a")
	nodeB := mkNode(b, &a, "b")
	_, err := Build("v1", []models.TaxonomyNode{nodeA, nodeB})
	require.Error(t, err)
}

func TestResolvePath_NotFound(t *testing.T) {
	root := uuid.New()
	nodes := []models.TaxonomyNode{mkNode(root, nil, "root")}
	dag, err := Build("v1", nodes)
	require.NoError(t, err)

	_, err = dag.ResolvePath([]string{"root", "missing"})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindValidation))
}

func TestIsDescendantOf(t *testing.T) {
	assert.True(t, IsDescendantOf([]string{"AI", "RAG", "Dense"}, []string{"AI", "RAG"}))
	assert.False(t, IsDescendantOf([]string{"AI", "ML"}, []string{"AI", "RAG"}))
	assert.True(t, IsDescendantOf([]string{"AI"}, []string{"AI"}))
}

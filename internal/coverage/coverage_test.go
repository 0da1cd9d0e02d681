package coverage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-rag-core/internal/dagcache"
	"github.com/tas-rag-core/models"
)

type fakeCounts struct {
	counts map[uuid.UUID]int64
}

func (f *fakeCounts) CoverageCounts(ctx context.Context, nodeIDs []uuid.UUID, version string, threshold float64) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64)
	for _, id := range nodeIDs {
		if c, ok := f.counts[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

type fakeTargets struct {
	targets map[uuid.UUID]int64
}

func (f *fakeTargets) TargetCount(ctx context.Context, nodeID uuid.UUID, version string) (int64, bool, error) {
	t, ok := f.targets[nodeID]
	return t, ok, nil
}

func buildDAG(t *testing.T, root, child uuid.UUID) *dagcache.Cache {
	loader := func(ctx context.Context, version string) ([]models.TaxonomyNode, error) {
		return []models.TaxonomyNode{
			{NodeID: root, Label: "root", CanonicalPath: models.StringSlice{"root"}, Version: version},
			{NodeID: child, Label: "child", CanonicalPath: models.StringSlice{"root", "child"}, Version: version, ParentID: &root},
		}, nil
	}
	return dagcache.New(loader, nil)
}

func TestCalculateCoverage_AbsentTargetMeans100Percent(t *testing.T) {
	root, child := uuid.New(), uuid.New()
	dag := buildDAG(t, root, child)
	counts := &fakeCounts{counts: map[uuid.UUID]int64{root: 3, child: 2}}

	meter := NewMeter(counts, nil, dag)
	result, err := meter.CalculateCoverage(context.Background(), uuid.New(), []uuid.UUID{root}, "v1")
	require.NoError(t, err)

	assert.InDelta(t, 100.0, result.Nodes[root].Percent, 1e-9)
	assert.InDelta(t, 100.0, result.Nodes[child].Percent, 1e-9)
	assert.InDelta(t, 100.0, result.Overall, 1e-9)
}

func TestCalculateCoverage_AppliesExplicitTargets(t *testing.T) {
	root, child := uuid.New(), uuid.New()
	dag := buildDAG(t, root, child)
	counts := &fakeCounts{counts: map[uuid.UUID]int64{root: 1, child: 1}}
	targets := &fakeTargets{targets: map[uuid.UUID]int64{root: 2, child: 4}}

	meter := NewMeter(counts, targets, dag)
	result, err := meter.CalculateCoverage(context.Background(), uuid.New(), []uuid.UUID{root}, "v1")
	require.NoError(t, err)

	assert.InDelta(t, 50.0, result.Nodes[root].Percent, 1e-9)
	assert.InDelta(t, 25.0, result.Nodes[child].Percent, 1e-9)
	assert.InDelta(t, 100*2.0/6.0, result.Overall, 1e-9)
}

func TestCalculateCoverage_ZeroCountsZeroTargetsAvoidsDivisionByZero(t *testing.T) {
	root, child := uuid.New(), uuid.New()
	dag := buildDAG(t, root, child)
	counts := &fakeCounts{counts: map[uuid.UUID]int64{}}

	meter := NewMeter(counts, nil, dag)
	result, err := meter.CalculateCoverage(context.Background(), uuid.New(), []uuid.UUID{root}, "v1")
	require.NoError(t, err)

	assert.InDelta(t, 0.0, result.Nodes[root].Percent, 1e-9)
	assert.InDelta(t, 0.0, result.Overall, 1e-9)
}

func TestCalculateCoverage_EmptyScopeIs100Percent(t *testing.T) {
	root, child := uuid.New(), uuid.New()
	dag := buildDAG(t, root, child)
	counts := &fakeCounts{counts: map[uuid.UUID]int64{}}

	meter := NewMeter(counts, nil, dag)
	result, err := meter.CalculateCoverage(context.Background(), uuid.New(), nil, "v1")
	require.NoError(t, err)

	assert.Empty(t, result.Nodes)
	assert.InDelta(t, 100.0, result.Overall, 1e-9)
}

func TestDetectGaps_SortedByMissingDescending(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	result := Result{
		Nodes: map[uuid.UUID]NodeCoverage{
			a: {NodeID: a, Count: 1, Target: 10, Percent: 10},
			b: {NodeID: b, Count: 8, Target: 10, Percent: 80},
			c: {NodeID: c, Count: 2, Target: 20, Percent: 10},
		},
	}
	gaps := DetectGaps(result, DefaultGapThreshold)
	require.Len(t, gaps, 2)
	assert.Equal(t, c, gaps[0].NodeID)
	assert.Equal(t, a, gaps[1].NodeID)
}

// Package coverage implements C4: the coverage meter that reports, for a set
// of taxonomy nodes, what fraction of their expected document count has
// actually been classified (spec.md §4.4).
package coverage

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/tas-rag-core/internal/dagcache"
)

const DefaultConfidenceThreshold = 0.7
const DefaultGapThreshold = 0.5

// CountsStore is the subset of store.TaxonomyDAO the meter needs: a single
// GROUP BY aggregation, never per-node queries (spec.md §4.4 step 2 — "Any
// N+1 pattern is a bug").
type CountsStore interface {
	CoverageCounts(ctx context.Context, nodeIDs []uuid.UUID, version string, threshold float64) (map[uuid.UUID]int64, error)
}

// TargetStore resolves an optional per-node target document count. Absent ⇒
// target equals observed, i.e. the node reads as 100% covered (spec.md §4.4
// step 3).
type TargetStore interface {
	TargetCount(ctx context.Context, nodeID uuid.UUID, version string) (int64, bool, error)
}

// NodeCoverage is one node's result.
type NodeCoverage struct {
	NodeID  uuid.UUID
	Count   int64
	Target  int64
	Percent float64
}

// Gap is a node whose coverage fell below the gap-detection threshold.
type Gap struct {
	NodeID  uuid.UUID
	Percent float64
	Missing int64
}

// Result is calculate_coverage's full output.
type Result struct {
	AgentID uuid.UUID
	Nodes   map[uuid.UUID]NodeCoverage
	Overall float64
}

// Meter computes coverage for an agent's scoped node set (spec.md §4.4).
type Meter struct {
	counts  CountsStore
	targets TargetStore
	dag     *dagcache.Cache
}

func NewMeter(counts CountsStore, targets TargetStore, dag *dagcache.Cache) *Meter {
	return &Meter{counts: counts, targets: targets, dag: dag}
}

// CalculateCoverage runs steps 1–4 of spec.md §4.4; step 5 (gap detection)
// is DetectGaps.
func (m *Meter) CalculateCoverage(ctx context.Context, agentID uuid.UUID, nodeIDs []uuid.UUID, version string) (Result, error) {
	dag, err := m.dag.Get(ctx, version)
	if err != nil {
		return Result{}, err
	}

	expanded := dag.Descendants(nodeIDs)
	ids := make([]uuid.UUID, 0, len(expanded))
	for id := range expanded {
		ids = append(ids, id)
	}

	counts, err := m.counts.CoverageCounts(ctx, ids, version, DefaultConfidenceThreshold)
	if err != nil {
		return Result{}, err
	}

	nodes := make(map[uuid.UUID]NodeCoverage, len(ids))
	var sumCounts, sumTargets int64
	for _, id := range ids {
		count := counts[id]
		target := count
		if m.targets != nil {
			if t, ok, err := m.targets.TargetCount(ctx, id, version); err == nil && ok {
				target = t
			}
		}
		nodes[id] = NodeCoverage{
			NodeID:  id,
			Count:   count,
			Target:  target,
			Percent: percentOf(count, target),
		}
		sumCounts += count
		sumTargets += target
	}

	overall := 100.0
	if len(ids) > 0 {
		overall = percentOf(sumCounts, sumTargets)
	}

	return Result{
		AgentID: agentID,
		Nodes:   nodes,
		Overall: overall,
	}, nil
}

// percentOf guards the "max(target,1)" zero-division rule from spec.md §4.4
// step 4.
func percentOf(count, target int64) float64 {
	denom := target
	if denom < 1 {
		denom = 1
	}
	return 100 * float64(count) / float64(denom)
}

// DetectGaps returns nodes whose coverage is below threshold*100, sorted by
// missing-document count descending (spec.md §4.4 step 5).
func DetectGaps(result Result, threshold float64) []Gap {
	cutoff := threshold * 100
	gaps := make([]Gap, 0)
	for _, n := range result.Nodes {
		if n.Percent < cutoff {
			gaps = append(gaps, Gap{
				NodeID:  n.NodeID,
				Percent: n.Percent,
				Missing: n.Target - n.Count,
			})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		return gaps[i].Missing > gaps[j].Missing
	})
	return gaps
}

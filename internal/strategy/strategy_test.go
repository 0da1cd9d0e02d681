package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tas-rag-core/internal/retrieval"
)

func TestSelector_LearnsToPreferHigherRewardAction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EpsilonStart = 0
	cfg.EpsilonMin = 0
	cfg.Temperature = 0.05 // sharp softmax so the learned preference dominates selection
	s := NewSelector(cfg)

	features := QueryFeatures{Length: 10, DigitRatio: 0, LanguageHint: "en"}

	for i := 0; i < 200; i++ {
		s.Observe(features, retrieval.SearchModeBM25, -1.0)
		s.Observe(features, retrieval.SearchModeVector, -1.0)
		s.Observe(features, retrieval.SearchModeHybrid, 1.0)
	}

	counts := map[retrieval.SearchMode]int{}
	for i := 0; i < 50; i++ {
		counts[s.Select(features)]++
	}
	assert.Greater(t, counts[retrieval.SearchModeHybrid], counts[retrieval.SearchModeBM25])
	assert.Greater(t, counts[retrieval.SearchModeHybrid], counts[retrieval.SearchModeVector])
}

func TestSelector_EpsilonDecaysTowardMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EpsilonStart = 0.5
	cfg.EpsilonDecay = 0.9
	cfg.EpsilonMin = 0.1
	s := NewSelector(cfg)

	features := QueryFeatures{Length: 5}
	for i := 0; i < 100; i++ {
		s.Select(features)
	}
	assert.InDelta(t, cfg.EpsilonMin, s.epsilon, 1e-9)
}

func TestReplayBuffer_WrapsAtCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplayCapacity = 3
	s := NewSelector(cfg)

	features := QueryFeatures{Length: 1}
	for i := 0; i < 5; i++ {
		s.Observe(features, retrieval.SearchModeHybrid, float64(i))
	}

	snap := s.ReplaySnapshot()
	require.Len(t, snap, 3)
	// last 3 rewards pushed were 2, 3, 4, in ring order starting after wrap.
	var rewards []float64
	for _, tr := range snap {
		rewards = append(rewards, tr.Reward)
	}
	assert.ElementsMatch(t, []float64{2, 3, 4}, rewards)
}

func TestQueryFeatures_BucketSeparatesDistinctStates(t *testing.T) {
	a := QueryFeatures{Length: 10, DigitRatio: 0.1, LanguageHint: "en"}
	b := QueryFeatures{Length: 300, DigitRatio: 0.9, HasQuotedStrings: true, LanguageHint: "fr"}
	assert.NotEqual(t, a.bucket(), b.bucket())
}

func TestReward_PenalizesLatency(t *testing.T) {
	cfg := DefaultConfig()
	fast := Reward(0.9, 50, cfg)
	slow := Reward(0.9, 5000, cfg)
	assert.Greater(t, fast, slow)
}

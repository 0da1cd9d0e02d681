// Package strategy implements C9: the adaptive search-strategy selector that
// learns, per query-feature bucket, which of {bm25, vector, hybrid} performs
// best (spec.md §4.9). Pure compute — it never calls another component
// directly; callers feed it query features and, later, observed rewards.
package strategy

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/tas-rag-core/internal/retrieval"
)

const (
	DefaultTemperature    = 1.0
	DefaultEpsilonStart   = 0.2
	DefaultEpsilonMin     = 0.02
	DefaultEpsilonDecay   = 0.999
	DefaultReplayCapacity = 10000
	DefaultLatencyWeight  = 0.001 // penalty per millisecond
)

var actions = []retrieval.SearchMode{retrieval.SearchModeBM25, retrieval.SearchModeVector, retrieval.SearchModeHybrid}

// QueryFeatures is the state the selector conditions its policy on
// (spec.md §4.9: "query features (length, presence of quoted strings, digit
// ratio, language hint), session/agent context").
type QueryFeatures struct {
	Length           int
	HasQuotedStrings bool
	DigitRatio       float64
	LanguageHint     string
}

// bucket collapses features into a coarse state key so a bounded table of
// soft Q-values can cover an effectively unbounded feature space.
func (f QueryFeatures) bucket() string {
	lengthBucket := "short"
	switch {
	case f.Length > 200:
		lengthBucket = "long"
	case f.Length > 50:
		lengthBucket = "medium"
	}
	digitBucket := "low"
	if f.DigitRatio > 0.3 {
		digitBucket = "high"
	}
	quoted := "plain"
	if f.HasQuotedStrings {
		quoted = "quoted"
	}
	lang := f.LanguageHint
	if lang == "" {
		lang = "unknown"
	}
	return lengthBucket + "|" + digitBucket + "|" + quoted + "|" + lang
}

// Transition is one replay-buffer entry: the state/action/reward triple used
// for off-line Q-value updates.
type Transition struct {
	Bucket string
	Action retrieval.SearchMode
	Reward float64
}

// ringBuffer is a bounded FIFO of the last N transitions (spec.md §4.9:
// "bounded ring, e.g., 10k transitions").
type ringBuffer struct {
	mu   sync.Mutex
	buf  []Transition
	next int
	full bool
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]Transition, capacity)}
}

func (r *ringBuffer) push(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = t
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ringBuffer) snapshot() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Transition, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Transition, len(r.buf))
	copy(out, r.buf)
	return out
}

// Config tunes the selector (spec.md §4.9: "temperature configurable",
// "ε decays").
type Config struct {
	Temperature    float64
	EpsilonStart   float64
	EpsilonMin     float64
	EpsilonDecay   float64
	ReplayCapacity int
	LatencyWeight  float64
	LearningRate   float64
}

func DefaultConfig() Config {
	return Config{
		Temperature:    DefaultTemperature,
		EpsilonStart:   DefaultEpsilonStart,
		EpsilonMin:     DefaultEpsilonMin,
		EpsilonDecay:   DefaultEpsilonDecay,
		ReplayCapacity: DefaultReplayCapacity,
		LatencyWeight:  DefaultLatencyWeight,
		LearningRate:   0.1,
	}
}

// Selector implements C9.
type Selector struct {
	mu      sync.Mutex
	qvalues map[string]map[retrieval.SearchMode]float64
	epsilon float64
	replay  *ringBuffer
	cfg     Config
}

func NewSelector(cfg Config) *Selector {
	if cfg.ReplayCapacity <= 0 {
		cfg.ReplayCapacity = DefaultReplayCapacity
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &Selector{
		qvalues: make(map[string]map[retrieval.SearchMode]float64),
		epsilon: cfg.EpsilonStart,
		replay:  newRingBuffer(cfg.ReplayCapacity),
		cfg:     cfg,
	}
}

func (s *Selector) qRow(bucket string) map[retrieval.SearchMode]float64 {
	row, ok := s.qvalues[bucket]
	if !ok {
		row = make(map[retrieval.SearchMode]float64, len(actions))
		for _, a := range actions {
			row[a] = 0
		}
		s.qvalues[bucket] = row
	}
	return row
}

// Select runs the softmax policy over per-action soft Q-values, with
// ε-greedy exploration layered on top (spec.md §4.9). When disabled by the
// caller's feature flag, the orchestrator should skip this entirely and use
// hybrid directly (spec.md §4.9: "when disabled, the orchestrator uses
// hybrid by default") — that default lives in the orchestrator, not here.
func (s *Selector) Select(features QueryFeatures) retrieval.SearchMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := features.bucket()
	row := s.qRow(bucket)

	if rand.Float64() < s.epsilon {
		s.decayEpsilon()
		return actions[rand.IntN(len(actions))]
	}
	s.decayEpsilon()
	return softmaxSample(row, s.cfg.Temperature)
}

func (s *Selector) decayEpsilon() {
	s.epsilon *= s.cfg.EpsilonDecay
	if s.epsilon < s.cfg.EpsilonMin {
		s.epsilon = s.cfg.EpsilonMin
	}
}

// softmaxSample draws an action proportionally to exp(Q/temperature).
func softmaxSample(row map[retrieval.SearchMode]float64, temperature float64) retrieval.SearchMode {
	weights := make([]float64, len(actions))
	var total float64
	maxQ := math.Inf(-1)
	for _, a := range actions {
		if row[a] > maxQ {
			maxQ = row[a]
		}
	}
	for i, a := range actions {
		w := math.Exp((row[a] - maxQ) / temperature)
		weights[i] = w
		total += w
	}
	r := rand.Float64() * total
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return actions[i]
		}
	}
	return actions[len(actions)-1]
}

// Reward combines post-response quality with a latency penalty
// (spec.md §4.9: "Reward signal is the post-response quality... combined
// with latency penalty").
func Reward(quality float64, latencyMs int64, cfg Config) float64 {
	return quality - cfg.LatencyWeight*float64(latencyMs)
}

// Observe records a transition and applies an incremental Q-learning update.
// This is the "off-line update fed by the replay buffer" from spec.md §4.9,
// run eagerly here rather than on a separate replay-sampling loop, since the
// Q-value table itself is the thing future Select calls read.
func (s *Selector) Observe(features QueryFeatures, action retrieval.SearchMode, reward float64) {
	bucket := features.bucket()

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.qRow(bucket)
	row[action] += s.cfg.LearningRate * (reward - row[action])
	s.replay.push(Transition{Bucket: bucket, Action: action, Reward: reward})
}

// ReplaySnapshot exposes the current replay buffer contents, primarily for
// tests and offline analysis.
func (s *Selector) ReplaySnapshot() []Transition {
	return s.replay.snapshot()
}

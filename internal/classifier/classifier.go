// Package classifier implements C5: assigning a chunk to taxonomy nodes by
// embedding similarity against precomputed node descriptors (spec.md §4.5).
package classifier

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/tas-rag-core/models"
)

const (
	DefaultTopK            = 5
	DefaultConfidenceFloor = 0.5
	DefaultHITLThreshold   = 0.7
)

// Similarity is the subset of C1's Service the classifier needs.
type Similarity interface {
	Similarity(a, b []float32) float64
}

// NodeDescriptor is one candidate taxonomy node's precomputed embedding.
type NodeDescriptor struct {
	NodeID uuid.UUID
	Path   []string
	Vector []float32
}

// DescriptorSource supplies the candidate node descriptors for a version.
// Node descriptor embeddings are precomputed offline (spec.md §4.5: "the
// embeddings of candidate taxonomy node descriptors (precomputed)") — this
// classifier only consumes them, it never mutates TaxonomyNode.
type DescriptorSource interface {
	Descriptors(ctx context.Context, version string) ([]NodeDescriptor, error)
}

// Chunk is the minimal input the classifier needs.
type Chunk struct {
	DocID   uuid.UUID
	ChunkID uuid.UUID
	Vector  []float32
	Version string
}

// Config tunes the classifier's thresholds (spec.md §4.5: "configurable
// floor", "hitl_threshold (default 0.7)").
type Config struct {
	TopK            int
	ConfidenceFloor float64
	HITLThreshold   float64
}

func DefaultConfig() Config {
	return Config{TopK: DefaultTopK, ConfidenceFloor: DefaultConfidenceFloor, HITLThreshold: DefaultHITLThreshold}
}

// Classifier implements C5.
type Classifier struct {
	sim         Similarity
	descriptors DescriptorSource
	cfg         Config
}

func NewClassifier(sim Similarity, descriptors DescriptorSource, cfg Config) *Classifier {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Classifier{sim: sim, descriptors: descriptors, cfg: cfg}
}

type scoredNode struct {
	node  NodeDescriptor
	score float64
}

// Classify runs spec.md §4.5: rank candidate nodes by cosine similarity, keep
// top-K, emit a DocTaxonomy row per candidate above the confidence floor, and
// flag HITL review when the top-1 candidate's confidence misses the
// threshold. Idempotent on (doc_id, node_id, version) is the caller's
// responsibility (store.TaxonomyDAO.UpsertDocTaxonomy).
func (c *Classifier) Classify(ctx context.Context, chunk Chunk) ([]models.DocTaxonomy, []models.HITLItem, error) {
	candidates, err := c.descriptors.Descriptors(ctx, chunk.Version)
	if err != nil {
		return nil, nil, err
	}

	scored := make([]scoredNode, 0, len(candidates))
	for _, cand := range candidates {
		scored = append(scored, scoredNode{node: cand, score: c.sim.Similarity(chunk.Vector, cand.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if len(scored) > c.cfg.TopK {
		scored = scored[:c.cfg.TopK]
	}

	var rows []models.DocTaxonomy
	for _, s := range scored {
		if s.score < c.cfg.ConfidenceFloor {
			continue
		}
		rows = append(rows, models.DocTaxonomy{
			DocID:      chunk.DocID,
			NodeID:     s.node.NodeID,
			Version:    chunk.Version,
			Path:       models.StringSlice(s.node.Path),
			Confidence: s.score,
		})
	}

	var hitl []models.HITLItem
	if len(scored) > 0 && scored[0].score < c.cfg.HITLThreshold {
		top := scored[0]
		hitl = append(hitl, models.HITLItem{
			ItemID:     uuid.New(),
			DocID:      chunk.DocID,
			NodeID:     top.node.NodeID,
			Version:    chunk.Version,
			Confidence: top.score,
		})
		if len(rows) > 0 {
			rows[0].HITLRequired = true
		}
	}

	return rows, hitl, nil
}

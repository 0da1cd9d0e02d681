// Package embedding implements C1: text to unit-length 1536-d vector with a
// deterministic multi-tier fallback (spec.md §4.1).
package embedding

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/tas-rag-core/config"
	"github.com/tas-rag-core/models"
)

const maxInputChars = 8000

// Service is the C1 contract.
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, batchSize int) (BatchResult, error)
	Similarity(a, b []float32) float64
}

// BatchResult carries per-item vectors alongside any per-item errors; the
// batch itself never aborts (spec.md §4.1).
type BatchResult struct {
	Vectors []([]float32)
	Errors  []error
}

type service struct {
	cache   *fifoCache
	primary PrimaryClient
	model   string
	env     config.Environment
	timeout time.Duration
}

func NewService(cfg *config.EmbeddingConfig, env config.Environment, primary PrimaryClient) Service {
	return &service{
		cache:   newFIFOCache(cfg.CacheMax),
		primary: primary,
		model:   cfg.Model,
		env:     env,
		timeout: time.Duration(cfg.BatchTimeout) * time.Second,
	}
}

func preprocess(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}
	return text
}

func zeroVector() []float32 {
	return make([]float32, VectorDim)
}

// Embed implements embed(text) → vector[1536] (spec.md §4.1).
func (s *service) Embed(ctx context.Context, text string) ([]float32, error) {
	clean := preprocess(text)
	if clean == "" {
		return zeroVector(), nil
	}

	if v, ok := s.cache.Get(clean); ok {
		return v, nil
	}

	vec, err := s.embedUncached(ctx, clean)
	if err != nil {
		return nil, err
	}
	s.cache.Put(clean, vec)
	return vec, nil
}

// embedUncached runs the fallback chain from spec.md §4.1: primary, then
// local-model fallback A, then (only if A's local model itself is
// unreachable) the deterministic fallback B — which is disallowed outright in
// production.
func (s *service) embedUncached(ctx context.Context, text string) ([]float32, error) {
	if s.primary == nil {
		if s.env == config.EnvironmentProduction {
			return nil, models.NewConfigError("no embedding API key configured in production", nil)
		}
		return fallbackA(text), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	vec, err := s.primary.Embed(callCtx, text, s.model)
	if err == nil {
		return vec, nil
	}
	if models.IsKind(err, models.ErrKindUpstreamAuth) && s.env == config.EnvironmentProduction {
		return nil, models.NewConfigError("embedding API auth failed in production", err)
	}

	return fallbackA(text), nil
}

// EmbedBatch chunks by batchSize with a ~10ms inter-batch sleep, continuing on
// per-item failure (spec.md §4.1).
func (s *service) EmbedBatch(ctx context.Context, texts []string, batchSize int) (BatchResult, error) {
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}

	result := BatchResult{
		Vectors: make([][]float32, len(texts)),
	}

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		for i := start; i < end; i++ {
			vec, err := s.Embed(ctx, texts[i])
			if err != nil {
				result.Errors = append(result.Errors, err)
				vec = fallbackWithProductionGuard(texts[i], s.env)
			}
			result.Vectors[i] = vec
		}
		if end < len(texts) {
			select {
			case <-ctx.Done():
				return result, models.NewCanceledError("batch embedding canceled")
			case <-time.After(10 * time.Millisecond):
			}
		}
	}

	if len(result.Errors) > 0 {
		return result, &models.BatchPartialError{Errors: result.Errors}
	}
	return result, nil
}

// fallbackWithProductionGuard is the last-resort path when even fallback A's
// caller errored out: it enforces that fallback B never runs in production
// (spec.md §4.1).
func fallbackWithProductionGuard(text string, env config.Environment) []float32 {
	if err := guardFallbackB(env); err != nil {
		return fallbackA(text)
	}
	return fallbackB(text)
}

// Similarity is cosine similarity; mismatched dimensions or both-zero vectors
// return 0.0 (spec.md §4.1).
func (s *service) Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

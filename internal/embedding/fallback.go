package embedding

import (
	"crypto/md5"
	"math"
	"math/big"
	"math/rand/v2"

	"github.com/tas-rag-core/config"
	"github.com/tas-rag-core/models"
)

const localModelDim = 768

// localStub stands in for a local sentence-transformer model: deterministic,
// content-derived, 768-d, so fallback A is reproducible in tests without a
// real model dependency.
func localStub(text string) []float32 {
	sum := md5.Sum([]byte(text))
	seed := uint64(0)
	for i := 0; i < 8; i++ {
		seed = seed<<8 | uint64(sum[i])
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vec := make([]float32, localModelDim)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	return l2Normalize(vec)
}

// fallbackA is tier A: local model output right-padded with zeros to 1536.
// Never truncates if the source model already yields more than 1536 dims
// (spec.md §4.1).
func fallbackA(text string) []float32 {
	base := localStub(text)
	if len(base) >= VectorDim {
		return base
	}
	out := make([]float32, VectorDim)
	copy(out, base)
	return out
}

// fallbackB is tier B: a deterministic pseudo-embedding seeded from the text's
// MD5 digest. Must never run in production — callers check Environment first
// and raise a ConfigError instead (spec.md §4.1).
func fallbackB(text string) []float32 {
	sum := md5.Sum([]byte(text))
	n := new(big.Int).SetBytes(sum[:])
	mod := new(big.Int).Lsh(big.NewInt(1), 32)
	seed := n.Mod(n, mod).Uint64()

	rng := rand.New(rand.NewPCG(seed, seed))
	vec := make([]float32, VectorDim)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64() * 0.1)
	}
	return l2Normalize(vec)
}

func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// guardFallbackB raises a fatal configuration error if tier B would run in
// production (spec.md §4.1).
func guardFallbackB(env config.Environment) error {
	if env == config.EnvironmentProduction {
		return models.NewConfigError("deterministic pseudo-embedding fallback is disallowed in production", nil)
	}
	return nil
}

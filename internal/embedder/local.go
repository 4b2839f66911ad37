package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Local is a deterministic bag-of-words embedder. Each token hashes to a
// pseudo-random unit direction and the text's vector is the normalized sum,
// so texts sharing tokens land close together. Useful for tests and offline
// runs; not a substitute for a trained model.
type Local struct {
	dimension int
}

var _ Embedder = (*Local)(nil)

// NewLocal creates a local embedder producing vectors of the given dimension.
func NewLocal(dimension int) *Local {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Local{dimension: dimension}
}

// Embed hashes the text's tokens into a unit vector. Empty or all-punctuation
// text embeds to the zero vector.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, l.dimension)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		addTokenVector(vec, h.Sum64())
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, l.dimension)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// so "Cats." and "cats" hash identically.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// addTokenVector accumulates the token's pseudo-random direction into vec.
// The splitmix64 sequence seeded by the token hash gives each component a
// uniform value in [-1, 1).
func addTokenVector(vec []float64, seed uint64) {
	state := seed
	for i := range vec {
		state += 0x9E3779B97F4A7C15
		z := state
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		z ^= z >> 31
		vec[i] += float64(z>>11)/float64(1<<52) - 1
	}
}

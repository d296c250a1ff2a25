// Package local implements an offline Embedder that hashes character
// trigrams and word tokens into a fixed-size, L2-normalized vector.
//
// It needs no model server and is deterministic, which makes it suitable
// for development and tests. Similar wording produces similar vectors;
// it does not capture meaning.
package local

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/embeddings"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// DefaultDimensions is used when no size is configured.
const DefaultDimensions = 384

// tokenWeight boosts whole-word features over trigrams.
const tokenWeight = 1.25

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_\-]+`)

// Embedder is the char-gram hashing embedder.
type Embedder struct {
	dims int
}

// NewEmbedder creates a local embedder producing vectors of dims entries.
func NewEmbedder(dims uint) *Embedder {
	if dims == 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: int(dims)}
}

func (e *Embedder) bucket(feature string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum64() % uint64(e.dims))
}

// Embed hashes text into a vector. Empty text yields the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec, nil
	}

	window := []rune("#" + normalized + "#")
	for i := 0; i+3 <= len(window); i++ {
		vec[e.bucket(string(window[i:i+3]))]++
	}

	for _, token := range tokenPattern.FindAllString(normalized, -1) {
		vec[e.bucket("tok:"+token)] += tokenWeight
	}

	return vector.Normalize(vec), nil
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)

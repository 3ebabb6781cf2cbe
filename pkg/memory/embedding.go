package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/philippgille/chromem-go"
)

// Embedder maps text to a fixed-size, L2-normalized vector.
type Embedder interface {
	ModelID() string
	Embed(text string) []float32
}

const (
	DefaultEmbeddingModel = "dotrecall-chargram-384-v1"
	HashEmbeddingModel    = "dotrecall-hash-256-v1"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-@.]+`)

// NewEmbedder returns the local embedder registered under name. Short
// aliases like "chargram" and "hash" are accepted.
func NewEmbedder(name string) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DefaultEmbeddingModel, "chargram", "chargram-384":
		return &chargramEmbedder{dims: 384, modelID: DefaultEmbeddingModel}, nil
	case HashEmbeddingModel, "hash", "hash-256":
		return &hashEmbedder{dims: 256, modelID: HashEmbeddingModel}, nil
	default:
		return nil, fmt.Errorf("unknown embedding model %q", name)
	}
}

// EmbedFunc adapts e for chromem collections.
func EmbedFunc(e Embedder) chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		return e.Embed(text), nil
	}
}

type hashEmbedder struct {
	dims    int
	modelID string
}

func (e *hashEmbedder) ModelID() string { return e.modelID }

func (e *hashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		sum := hash64(token)
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum%uint64(e.dims))] += sign * float32(1+len(token)/8)
	}
	normalizeVector(vec)
	return vec
}

// chargramEmbedder mixes character trigrams with whole-token features so
// near-miss spellings of a name still land close together.
type chargramEmbedder struct {
	dims    int
	modelID string
}

func (e *chargramEmbedder) ModelID() string { return e.modelID }

func (e *chargramEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec
	}
	padded := "#" + normalized + "#"
	for i := 0; i+3 <= len(padded); i++ {
		vec[int(hash64(padded[i:i+3])%uint64(e.dims))]++
	}
	for _, token := range tokenize(normalized) {
		vec[int(hash64("tok:"+token)%uint64(e.dims))] += 1.25
	}
	normalizeVector(vec)
	return vec
}

func hash64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	matches := tokenPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	return matches
}

func normalizeVector(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}

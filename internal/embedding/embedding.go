// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rcliao/hostwarden/internal/chunker"
	"github.com/rcliao/hostwarden/internal/config"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text. Model and Dims identify the
// embedding space; vectors from different spaces must never be compared.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
	Model() string
}

// ErrDimsMismatch is returned when a provider yields a vector of unexpected length.
var ErrDimsMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// EmbedPooled embeds long text window by window and returns the normalized
// mean, so narratives longer than a provider's context still embed fully.
func EmbedPooled(ctx context.Context, e Embedder, text string) (Vector, error) {
	windows := chunker.Split(text, chunker.DefaultOptions())
	if len(windows) <= 1 {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return checkDims(e, v)
	}
	sum := make([]float64, e.Dims())
	for _, w := range windows {
		v, err := e.Embed(ctx, w.Text)
		if err != nil {
			return nil, err
		}
		if _, err := checkDims(e, v); err != nil {
			return nil, err
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make(Vector, len(sum))
	for i, x := range sum {
		out[i] = float32(x / float64(len(windows)))
	}
	return Normalize(out), nil
}

func checkDims(e Embedder, v Vector) (Vector, error) {
	if len(v) != e.Dims() {
		return nil, fmt.Errorf("%w: %s returned %d, want %d", ErrDimsMismatch, e.Model(), len(v), e.Dims())
	}
	return v, nil
}

// New creates the embedder named by the memory config.
// OPENAI_API_KEY is read from the environment for the openai provider.
func New(c config.Memory) (Embedder, error) {
	switch c.EmbeddingProvider {
	case "", "hash":
		return NewHashEmbedder(c.EmbeddingDims), nil
	case "ollama":
		return NewOllamaEmbedder(c.EmbeddingURL, c.EmbeddingModel, c.EmbeddingDims), nil
	case "openai":
		return NewOpenAIEmbedder(c.EmbeddingURL, os.Getenv("OPENAI_API_KEY"), c.EmbeddingModel, c.EmbeddingDims), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
}

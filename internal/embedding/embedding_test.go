package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rcliao/hostwarden/internal/config"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHashEmbedder(0)
	ctx := context.Background()
	a, err := h.Embed(ctx, "Remediation of process stress: high CPU")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := h.Embed(ctx, "remediation of PROCESS stress high cpu")
	if len(a) != DefaultHashDims {
		t.Fatalf("dims = %d", len(a))
	}
	if sim := CosineSimilarity(a, b); math.Abs(sim-1) > 1e-6 {
		t.Errorf("case and punctuation should not matter, similarity %f", sim)
	}
}

func TestHashEmbedderRelatedTextIsCloser(t *testing.T) {
	h := NewHashEmbedder(384)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "why is memory usage high")
	near, _ := h.Embed(ctx, "memory usage high on the host, process list attached")
	far, _ := h.Embed(ctx, "disk partition nearly full")
	if CosineSimilarity(q, near) <= CosineSimilarity(q, far) {
		t.Errorf("expected related text to score higher: near=%f far=%f",
			CosineSimilarity(q, near), CosineSimilarity(q, far))
	}
}

func TestEmbedPooledLongText(t *testing.T) {
	h := NewHashEmbedder(64)
	long := strings.Repeat("Sent SIGTERM to the runaway worker and waited five seconds. ", 40)
	v, err := EmbedPooled(context.Background(), h, long)
	if err != nil {
		t.Fatal(err)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("pooled vector not normalized: |v|^2 = %f", norm)
	}
}

func TestNewFactory(t *testing.T) {
	e, err := New(config.Memory{EmbeddingProvider: "hash", EmbeddingDims: 128})
	if err != nil || e.Dims() != 128 || e.Model() != "hash-fnv1a-v1/128" {
		t.Fatalf("hash provider = %v, %v", e, err)
	}
	e, err = New(config.Memory{EmbeddingProvider: "ollama", EmbeddingModel: "all-minilm"})
	if err != nil || e.Dims() != 384 || e.Model() != "ollama/all-minilm" {
		t.Fatalf("ollama provider = %v, %v", e, err)
	}
	if _, err := New(config.Memory{EmbeddingProvider: "nope"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOllamaEmbedderHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "all-minilm" || req["input"] != "hello" {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "all-minilm", 3)
	v, err := EmbedPooled(context.Background(), e, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 3 {
		t.Errorf("len = %d", len(v))
	}

	wrong := NewOllamaEmbedder(srv.URL, "all-minilm", 4)
	if _, err := EmbedPooled(context.Background(), wrong, "hello"); !errors.Is(err, ErrDimsMismatch) {
		t.Errorf("err = %v, want ErrDimsMismatch", err)
	}
}

func TestOpenAIEmbedderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("auth header = %q", got)
		}
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "k", "", 0)
	if _, err := e.Embed(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v", err)
	}
	if e.Dims() != 1536 {
		t.Errorf("default dims = %d", e.Dims())
	}
}

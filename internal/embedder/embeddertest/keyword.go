// Package embeddertest provides deterministic embedders for tests.
package embeddertest

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/dshills/kraken/internal/embedder"
	"github.com/dshills/kraken/internal/textnorm"
)

// KeywordEmbedder maps each vocabulary word to its own axis. A text's vector
// counts its vocabulary words; texts without any vocabulary word get the
// extra "unknown" axis. Cosine similarity between two texts is therefore
// computable by hand.
type KeywordEmbedder struct {
	vocab map[string]int
	dim   int
	model string

	mu    sync.Mutex
	calls int
	sent  []string
	err   error
}

// NewKeywordEmbedder creates an embedder over vocab
func NewKeywordEmbedder(vocab ...string) *KeywordEmbedder {
	k := &KeywordEmbedder{
		vocab: make(map[string]int, len(vocab)),
		model: "keyword-v1",
	}
	for _, w := range vocab {
		w = textnorm.Normalize(w)
		if _, ok := k.vocab[w]; !ok {
			k.vocab[w] = len(k.vocab)
		}
	}
	k.dim = len(k.vocab) + 1
	return k
}

// WithModel overrides the model name, changing the encoder's cache keys
func (k *KeywordEmbedder) WithModel(model string) *KeywordEmbedder {
	k.model = model
	return k
}

// FailWith makes subsequent calls return err (nil restores normal behavior)
func (k *KeywordEmbedder) FailWith(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.err = err
}

// Calls returns the number of backend batch calls made
func (k *KeywordEmbedder) Calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

// Sent returns every text that reached the backend, in order
func (k *KeywordEmbedder) Sent() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.sent...)
}

// Vector returns the raw (unnormalized) vector for text
func (k *KeywordEmbedder) Vector(text string) []float32 {
	v := make([]float32, k.dim)
	found := false
	for _, tok := range strings.FieldsFunc(textnorm.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if i, ok := k.vocab[tok]; ok {
			v[i]++
			found = true
		}
	}
	if !found {
		v[k.dim-1] = 1
	}
	return v
}

func (k *KeywordEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	resp, err := k.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (k *KeywordEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if err := embedder.ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.calls++
	k.sent = append(k.sent, req.Texts...)
	err := k.err
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = &embedder.Embedding{
			Vector:    k.Vector(text),
			Dimension: k.dim,
			Provider:  "keyword",
			Model:     k.model,
		}
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "keyword", Model: k.model}, nil
}

func (k *KeywordEmbedder) Dimension() int  { return k.dim }
func (k *KeywordEmbedder) Provider() string { return "keyword" }
func (k *KeywordEmbedder) Model() string    { return k.model }
func (k *KeywordEmbedder) Close() error     { return nil }

package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainProvider implements Embedder for any OpenAI-compatible embedding
// endpoint (Ollama, vLLM, LM Studio, llama.cpp server) via langchaingo.
type LangchainProvider struct {
	embedder  embeddings.Embedder
	model     string
	retry     RetryConfig
	dimension atomic.Int64
	logger    *slog.Logger
}

// NewLangchainProvider creates an embedder for an OpenAI-compatible endpoint.
// Local services that need no authentication get the placeholder token "none".
func NewLangchainProvider(opts ProviderOptions) (*LangchainProvider, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model name is required for %s", ErrUnsupportedModel, ProviderLangchain)
	}

	token := opts.APIKey
	if token == "" {
		token = "none"
	}

	clientOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(opts.Model),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}

	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(MaxBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	p := &LangchainProvider{
		embedder: emb,
		model:    opts.Model,
		retry:    opts.Retry,
		logger:   slog.Default().With("component", "langchain-embedder"),
	}
	p.dimension.Store(int64(opts.Dimension))
	return p, nil
}

func (p *LangchainProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (p *LangchainProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	p.logger.Debug("generating embeddings", "count", len(req.Texts))

	vectors, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
		return p.embedder.EmbedDocuments(ctx, req.Texts)
	})
	if err != nil {
		p.logger.Error("failed to generate embeddings", "count", len(req.Texts), "err", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, ProviderLangchain, err)
	}
	if len(vectors) != len(req.Texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts",
			ErrProviderFailed, ProviderLangchain, len(vectors), len(req.Texts))
	}

	out := make([]*Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = &Embedding{
			Vector:    v,
			Dimension: len(v),
			Provider:  ProviderLangchain,
			Model:     p.model,
		}
	}
	if len(vectors) > 0 {
		p.dimension.CompareAndSwap(0, int64(len(vectors[0])))
	}

	return &BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   ProviderLangchain,
		Model:      p.model,
	}, nil
}

// Dimension returns the configured dimension, or the one observed on the first call
func (p *LangchainProvider) Dimension() int {
	return int(p.dimension.Load())
}

func (p *LangchainProvider) Provider() string {
	return ProviderLangchain
}

func (p *LangchainProvider) Model() string {
	return p.model
}

func (p *LangchainProvider) Close() error {
	return nil
}

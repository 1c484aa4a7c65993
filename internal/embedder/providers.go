package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/kraken/internal/textnorm"
)

// Provider configuration
const (
	ProviderJina      = "jina"
	ProviderOpenAI    = "openai"
	ProviderLangchain = "langchain"
	ProviderLocal     = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "hashed-bow"

	// Default endpoints
	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultOpenAIURL = "https://api.openai.com/v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 64
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	defaultHTTPTimeout = 30 * time.Second
)

// ProviderOptions configures a provider instance
type ProviderOptions struct {
	APIKey    string
	Model     string
	BaseURL   string // API root, e.g. https://api.openai.com/v1
	Dimension int
	Timeout   time.Duration // HTTP client timeout
	Retry     RetryConfig
}

// HTTPProvider implements Embedder for services speaking the
// OpenAI-style /embeddings JSON protocol (OpenAI, Jina AI)
type HTTPProvider struct {
	name       string
	apiKey     string
	model      string
	endpoint   string
	dimension  int
	retry      RetryConfig
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(opts ProviderOptions) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderJina, EnvJinaAPIKey, DefaultJinaURL, DefaultJinaModel, JinaDimension, opts)
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(opts ProviderOptions) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderOpenAI, EnvOpenAIAPIKey, DefaultOpenAIURL, DefaultOpenAIModel, OpenAIDimension, opts)
}

func newHTTPProvider(name, keyEnv, defaultURL, defaultModel string, defaultDim int, opts ProviderOptions) (*HTTPProvider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(keyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = defaultDim
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &HTTPProvider{
		name:      name,
		apiKey:    apiKey,
		model:     model,
		endpoint:  baseURL + "/embeddings",
		dimension: dim,
		retry:     opts.Retry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	// Use batch API for consistency
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
		return p.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, p.name, err)
	}

	if len(embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts",
			ErrProviderFailed, p.name, len(embeddings), len(req.Texts))
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The API may return items out of order; place them by index
	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		pos := data.Index
		if pos < 0 || pos >= len(embeddings) || embeddings[pos] != nil {
			pos = i
		}
		embeddings[pos] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     model,
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding at index %d", i)
		}
	}

	return embeddings, nil
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider is an offline embedder that hashes normalized tokens into a
// fixed number of buckets (signed feature hashing). Texts sharing words get
// positive cosine similarity, which is enough for tests and demos.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a new local embedder. A dimension of 0 uses LocalDimension.
func NewLocalProvider(dimension int) (*LocalProvider, error) {
	if dimension < 0 {
		return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidInput, dimension)
	}
	if dimension == 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Embedding{
		Vector:    l.hashTokens(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) hashTokens(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := strings.FieldsFunc(textnorm.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := sha256.Sum256([]byte(tok))
		bucket := binary.LittleEndian.Uint32(h[:4]) % uint32(l.dimension)
		if h[4]&1 == 1 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}
	return vector
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity).
// Zero vectors are returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}

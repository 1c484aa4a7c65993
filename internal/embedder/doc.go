// Package embedder turns catalog text into dense vectors.
//
// Providers implement the Embedder interface. The CachedEncoder sits in front
// of a provider and a DiskCache so that each distinct (model, normalized text)
// pair reaches the provider at most once across runs.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", Model: "text-embedding-3-small"})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	cache := embedder.LoadDiskCache(filepath.Join(dataDir, embedder.DefaultCacheFile), logger)
//	enc, err := embedder.NewCachedEncoder(emb, cache, embedder.WithBatchSize(64))
//	if err != nil {
//	    return err
//	}
//
//	vectors, err := enc.Encode(ctx, []string{"customer postal code", "order date"})
//
// # Provider Selection
//
// New picks a provider from Config.Provider. When it is empty the provider is
// detected from the environment:
//
//  1. KRAKEN_EMBEDDING_PROVIDER, if set
//  2. jina, if JINA_API_KEY is set
//  3. openai, if OPENAI_API_KEY is set
//  4. local otherwise
//
// Providers:
//   - jina: Jina AI /embeddings endpoint, 1024 dimensions by default
//   - openai: OpenAI /embeddings endpoint, 1536 dimensions by default
//   - langchain (alias ollama): any OpenAI-compatible server through langchaingo;
//     the dimension is learned from the first response
//   - local: offline signed feature hashing of normalized tokens, 384 dimensions
//
// # Caching
//
// Cache keys are the SHA-256 of the model ID and the normalized text:
//
//	key := embedder.CacheKey(embedder.ModelID(emb), textnorm.Normalize(text))
//
// Because the model ID is part of the key, changing model never serves stale
// vectors from a previous model. The cache file (emb_cache.bin) is a small
// binary format:
//
//	"KEMC" | uint16 version | uint32 count | { uint16 keyLen | key | uint32 dim | float32[dim] }*
//
// All integers are little-endian. A missing or corrupt file loads as an empty
// cache. Save merges entries written by other processes under an advisory
// file lock and replaces the file atomically.
//
// Encode persists the cache after every call that computed new vectors.
// Persistence errors are logged and never fail the Encode call.
//
// # Error Handling
//
// Provider failures wrap ErrProviderFailed:
//
//	_, err := enc.Encode(ctx, texts)
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // backend unavailable or returned a malformed response
//	}
//
// Requests are attempted once by default. Config.MaxRetries above 1 enables
// exponential backoff between attempts.
package embedder

package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		jina     string
		openai   string
		want     string
	}{
		{"explicit provider wins", "OpenAI", "j", "", "openai"},
		{"jina key", "", "j", "o", ProviderJina},
		{"openai key", "", "", "o", ProviderOpenAI},
		{"nothing set", "", "", "", ProviderLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jina)
			t.Setenv(EnvOpenAIAPIKey, tt.openai)
			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		emb, err := New(Config{Provider: "local", Dimension: 32})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, 32, emb.Dimension())
	})

	t.Run("openai with key", func(t *testing.T) {
		emb, err := New(Config{Provider: " OPENAI ", APIKey: "k", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		assert.Equal(t, "openai:text-embedding-3-large", ModelID(emb))
	})

	t.Run("ollama alias", func(t *testing.T) {
		emb, err := New(Config{Provider: "ollama", Model: "nomic-embed-text", BaseURL: "http://localhost:11434/v1"})
		require.NoError(t, err)
		assert.Equal(t, ProviderLangchain, emb.Provider())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("empty provider detects", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvJinaAPIKey, "")
		t.Setenv(EnvOpenAIAPIKey, "")
		emb, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("retries only above one attempt", func(t *testing.T) {
		assert.Equal(t, 1, Config{MaxRetries: 0}.providerOptions().Retry.MaxRetries)
		assert.Equal(t, 1, Config{MaxRetries: 1}.providerOptions().Retry.MaxRetries)
		assert.Equal(t, 4, Config{MaxRetries: 4}.providerOptions().Retry.MaxRetries)
	})
}

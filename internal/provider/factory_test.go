package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docloom/docloom/internal/config"
	"github.com/docloom/docloom/internal/log"
)

func factoryConfig() *config.Config {
	return &config.Config{
		Provider:            config.ProviderSelfHosted,
		BaseURL:             "http://localhost:11434",
		ChatModel:           "llama3",
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimensions: 768,
	}
}

func TestFactoryEmbedderSingleton(t *testing.T) {
	noContainer(t)
	f, err := NewFactory(factoryConfig(), log.NewNop())
	require.NoError(t, err)

	a, err := f.Embedder()
	require.NoError(t, err)
	b, err := f.Embedder()
	require.NoError(t, err)

	assert.Same(t, a, b, "one embedding configuration maps to one instance")
	assert.Equal(t, 768, a.Dimensions())
	assert.Equal(t, "nomic-embed-text", a.ModelName())
	assert.Equal(t, "self_hosted", a.ProviderName())
}

func TestFactoryChatModelPerSettings(t *testing.T) {
	noContainer(t)
	f, err := NewFactory(factoryConfig(), log.NewNop())
	require.NoError(t, err)

	t.Run("defaults inherit process config", func(t *testing.T) {
		m, err := f.ChatModel(Settings{})
		require.NoError(t, err)
		assert.Equal(t, "llama3", m.ModelName())
	})

	t.Run("same settings share an instance", func(t *testing.T) {
		a, err := f.ChatModel(Settings{Model: "mistral"})
		require.NoError(t, err)
		b, err := f.ChatModel(Settings{Model: "mistral"})
		require.NoError(t, err)
		assert.Same(t, a, b)
	})

	t.Run("distinct settings get distinct instances", func(t *testing.T) {
		a, err := f.ChatModel(Settings{Model: "mistral"})
		require.NoError(t, err)
		b, err := f.ChatModel(Settings{Model: "qwen2"})
		require.NoError(t, err)
		assert.NotSame(t, a, b)
	})

	t.Run("hosted override without credential fails", func(t *testing.T) {
		_, err := f.ChatModel(Settings{Kind: KindHosted, Model: "gpt-4o-mini"})
		assert.ErrorIs(t, err, config.ErrMissingAPIKey)
	})
}

func TestFactoryNilConfig(t *testing.T) {
	_, err := NewFactory(nil, log.NewNop())
	assert.ErrorIs(t, err, config.ErrConfigNil)
}

func TestFactoryMisconfiguredProviderFailsFast(t *testing.T) {
	cfg := factoryConfig()
	cfg.Provider = "hosted"
	cfg.APIKey = ""

	f, err := NewFactory(cfg, log.NewNop())
	require.NoError(t, err)

	_, err = f.Embedder()
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

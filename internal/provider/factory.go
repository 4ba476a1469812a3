package provider

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/docloom/docloom/internal/config"
	"github.com/docloom/docloom/internal/log"
)

// Factory constructs provider instances from configuration. Embedders are
// cached for the process lifetime: every chatbot on one deployment must
// share a vector space, so a given embedding configuration maps to exactly
// one instance. Chat models are cached by their full settings, since each
// chatbot may carry its own model and credentials.
type Factory struct {
	cfg    *config.Config
	opts   Options
	logger log.Logger

	mu        sync.Mutex
	embedders map[string]*OpenAIEmbedder
	chats     map[string]*OpenAIChatModel
}

// NewFactory builds a factory from process configuration. The rate limiter
// is shared across all instances the factory creates.
func NewFactory(cfg *config.Config, logger log.Logger) (*Factory, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.ProviderRatePerSecond > 0 {
		burst := cfg.ProviderRateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRatePerSecond), burst)
	}

	return &Factory{
		cfg: cfg,
		opts: Options{
			Timeout: time.Duration(cfg.ProviderTimeoutSeconds) * time.Second,
			Limiter: limiter,
			Logger:  logger,
		},
		logger:    logger,
		embedders: make(map[string]*OpenAIEmbedder),
		chats:     make(map[string]*OpenAIChatModel),
	}, nil
}

// Embedder returns the process-wide embedder for the configured variant.
func (f *Factory) Embedder() (*OpenAIEmbedder, error) {
	kind, err := ParseKind(f.cfg.Provider)
	if err != nil {
		return nil, err
	}
	s := Settings{
		Kind:       kind,
		Model:      f.cfg.EmbeddingModel,
		APIKey:     f.cfg.APIKey,
		BaseURL:    f.cfg.BaseURL,
		Dimensions: f.cfg.EmbeddingDimensions,
	}

	key := cacheKey(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.embedders[key]; ok {
		return e, nil
	}

	e, err := NewEmbedder(s, f.opts)
	if err != nil {
		return nil, err
	}
	f.embedders[key] = e
	f.logger.Info("embedder initialized",
		"provider", e.ProviderName(),
		"model", e.ModelName(),
		"dimensions", e.Dimensions(),
	)
	return e, nil
}

// ChatModel returns a chat model for the given settings. Settings usually
// come from a chatbot's LLM config; empty credential fields fall back to
// the process configuration so a chatbot can inherit the deployment's
// provider account.
func (f *Factory) ChatModel(s Settings) (*OpenAIChatModel, error) {
	if s.Kind == "" {
		kind, err := ParseKind(f.cfg.Provider)
		if err != nil {
			return nil, err
		}
		s.Kind = kind
	}
	if s.Model == "" {
		s.Model = f.cfg.ChatModel
	}
	if s.APIKey == "" {
		s.APIKey = f.cfg.APIKey
	}
	if s.BaseURL == "" {
		s.BaseURL = f.cfg.BaseURL
	}

	key := cacheKey(s)
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.chats[key]; ok {
		return m, nil
	}

	m, err := NewChatModel(s, f.opts)
	if err != nil {
		return nil, err
	}
	f.chats[key] = m
	return m, nil
}

func cacheKey(s Settings) string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", s.Kind, s.Model, s.BaseURL, s.Dimensions, s.APIKey)
}

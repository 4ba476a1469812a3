// Package provider implements the embedding and chat-model backends.
//
// Two variants exist for each capability, selected by a configuration enum:
// a hosted OpenAI-compatible API and a self-hosted OpenAI-compatible
// endpoint (Ollama, vLLM, llama.cpp server). Both speak the same wire
// protocol; they differ only in endpoint resolution and credential
// requirements. Variants are constructed by the Factory and are
// independently testable against a fake HTTP transport.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/docloom/docloom/internal/config"
)

// Kind identifies a provider variant. The set is closed.
type Kind string

const (
	// KindHosted is the hosted OpenAI-compatible API variant.
	KindHosted Kind = config.ProviderHosted

	// KindSelfHosted is the self-hosted OpenAI-compatible endpoint variant.
	KindSelfHosted Kind = config.ProviderSelfHosted
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindHosted, KindSelfHosted:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", config.ErrInvalidProvider, s)
	}
}

// Message is one turn of chat input, role "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sampling carries caller-supplied generation parameters.
type Sampling struct {
	Temperature float32
	MaxTokens   int
}

// Completion is the result of a generation call, including token usage for
// metering.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Embedder produces fixed-dimension vectors for text.
//
// Dimensions is fixed per instance; all text embedded by one instance lives
// in the same vector space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
	ProviderName() string
}

// ChatModel generates a completion for a message sequence.
type ChatModel interface {
	Generate(ctx context.Context, messages []Message, sampling Sampling) (Completion, error)
	ModelName() string
	ProviderName() string
}

// Settings selects and configures a concrete provider instance. For chat
// models these usually come from a chatbot's LLM config record; for
// embedders from process configuration.
type Settings struct {
	Kind    Kind
	Model   string
	APIKey  string // required for KindHosted
	BaseURL string // required for KindSelfHosted

	// Dimensions is the embedding output dimensionality (embedders only).
	Dimensions int
}

// Validate checks the variant's credential requirements. Configuration
// errors are raised here, before any network call.
func (s Settings) Validate() error {
	switch s.Kind {
	case KindHosted:
		if s.APIKey == "" {
			return fmt.Errorf("%w: hosted provider requires an API key", config.ErrMissingAPIKey)
		}
	case KindSelfHosted:
		if s.BaseURL == "" {
			return fmt.Errorf("%w: self-hosted provider requires a base URL", config.ErrMissingBaseURL)
		}
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidProvider, string(s.Kind))
	}
	if s.Model == "" {
		return fmt.Errorf("%w: model cannot be empty", config.ErrInvalidModelName)
	}
	return nil
}

// ErrEmptyEmbedding indicates the backend returned no embedding data.
var ErrEmptyEmbedding = errors.New("empty embedding returned")

// ErrEmptyCompletion indicates the backend returned no choices.
var ErrEmptyCompletion = errors.New("empty completion returned")

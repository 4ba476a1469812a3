package provider

import (
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// defaultCallTimeout bounds a single provider HTTP call when the caller's
// context carries no deadline.
const defaultCallTimeout = 60 * time.Second

// newClient builds the OpenAI-compatible wire client for a variant. Both
// variants share the protocol; only endpoint and credentials differ.
func newClient(s Settings, timeout time.Duration) *openai.Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	cfg := openai.DefaultConfig(s.APIKey)
	if s.Kind == KindSelfHosted {
		cfg.BaseURL = normalizeBaseURL(ResolveBaseURL(s.BaseURL))
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}

// normalizeBaseURL appends the /v1 path segment self-hosted servers expose
// their OpenAI-compatible API under, unless the operator already included it.
func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimSuffix(raw, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

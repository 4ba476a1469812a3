package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/docloom/docloom/internal/config"
	"github.com/docloom/docloom/internal/log"
)

// ErrDimensionMismatch indicates the backend returned a vector whose length
// does not match the configured dimensionality. Mixing dimensionalities
// would silently corrupt the vector index, so the embedding is rejected.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// OpenAIEmbedder embeds text through an OpenAI-compatible embeddings
// endpoint. One instance is bound to one model and one dimensionality and
// is safe for concurrent use.
type OpenAIEmbedder struct {
	client  *openai.Client
	kind    Kind
	model   string
	dims    int
	limiter *rate.Limiter
	retry   RetryConfig
	logger  log.Logger
}

// NewEmbedder constructs an embedder for the given settings.
func NewEmbedder(s Settings, opts Options) (*OpenAIEmbedder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: %d", config.ErrInvalidDimensions, s.Dimensions)
	}
	return &OpenAIEmbedder{
		client:  newClient(s, opts.Timeout),
		kind:    s.Kind,
		model:   s.Model,
		dims:    s.Dimensions,
		limiter: opts.Limiter,
		retry:   opts.retryOrDefault(),
		logger:  opts.loggerOrNop(),
	}, nil
}

// Embed returns the vector for text. Embedding is idempotent, so transient
// backend failures are retried with exponential backoff.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	// Self-hosted servers commonly reject the dimensions parameter; the
	// response length check below still enforces the configured size.
	if e.kind == KindHosted {
		req.Dimensions = e.dims
	}

	var lastErr error
	delay := time.Duration(e.retry.InitialInterval) * time.Millisecond

	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err == nil {
			return e.extract(resp)
		}
		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("create embedding: %w", err)
		}
		if attempt == e.retry.MaxRetries {
			break
		}

		e.logger.Debug("retrying embedding after transient error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, time.Duration(e.retry.MaxInterval)*time.Millisecond)
		}
	}

	return nil, fmt.Errorf("create embedding after %d retries: %w", e.retry.MaxRetries, lastErr)
}

func (e *OpenAIEmbedder) extract(resp openai.EmbeddingResponse) ([]float32, error) {
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dims {
		return nil, fmt.Errorf("%w: model %s returned %d, configured %d",
			ErrDimensionMismatch, e.model, len(vec), e.dims)
	}
	return vec, nil
}

// Dimensions returns the fixed output dimensionality.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the embedding model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// ProviderName returns the variant name.
func (e *OpenAIEmbedder) ProviderName() string { return string(e.kind) }

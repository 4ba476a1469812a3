package provider

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/docloom/docloom/internal/log"
)

// OpenAIChatModel generates completions through an OpenAI-compatible chat
// endpoint. Safe for concurrent use.
type OpenAIChatModel struct {
	client  *openai.Client
	kind    Kind
	model   string
	limiter *rate.Limiter
	logger  log.Logger
}

// NewChatModel constructs a chat model for the given settings.
func NewChatModel(s Settings, opts Options) (*OpenAIChatModel, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &OpenAIChatModel{
		client:  newClient(s, opts.Timeout),
		kind:    s.Kind,
		model:   s.Model,
		limiter: opts.Limiter,
		logger:  opts.loggerOrNop(),
	}, nil
}

// Generate produces one completion for the message sequence.
//
// Some hosted models reject any temperature other than their default. When
// the backend returns a parameter rejection naming temperature, the request
// is replayed exactly once without it; every other error propagates
// unchanged. Generation is not idempotent and is never retried for
// transient failures.
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []Message, sampling Sampling) (Completion, error) {
	req := m.buildRequest(messages, sampling, true)

	resp, err := m.call(ctx, req)
	if err != nil && temperatureRejected(err) {
		m.logger.Debug("model rejected temperature, retrying without it",
			"model", m.model,
			"temperature", sampling.Temperature,
		)
		resp, err = m.call(ctx, m.buildRequest(messages, sampling, false))
	}
	if err != nil {
		return Completion{}, fmt.Errorf("create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyCompletion
	}
	return Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (m *OpenAIChatModel) call(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return openai.ChatCompletionResponse{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return m.client.CreateChatCompletion(ctx, req)
}

func (m *OpenAIChatModel) buildRequest(messages []Message, sampling Sampling, withTemperature bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	if withTemperature {
		req.Temperature = sampling.Temperature
	}
	if sampling.MaxTokens > 0 {
		req.MaxTokens = sampling.MaxTokens
	}
	return req
}

// ModelName returns the chat model identifier.
func (m *OpenAIChatModel) ModelName() string { return m.model }

// ProviderName returns the variant name.
func (m *OpenAIChatModel) ProviderName() string { return string(m.kind) }

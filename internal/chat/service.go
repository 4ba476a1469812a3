package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/conversation"
	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/provider"
	"github.com/docloom/docloom/internal/rag"
	"github.com/docloom/docloom/internal/usage"
)

// historyLimit caps the messages loaded for prompt context. The engine
// trims further by token budget.
const historyLimit = 50

// Bots resolves chatbots and their model configurations.
type Bots interface {
	Chatbot(ctx context.Context, id uuid.UUID) (Chatbot, error)
	LLMConfig(ctx context.Context, id uuid.UUID) (LLMConfig, error)
}

// Conversations is the history surface a turn needs.
type Conversations interface {
	StartOrGet(ctx context.Context, identity string, chatbotID uuid.UUID) (conversation.Conversation, bool, error)
	Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error)
	AppendTurn(ctx context.Context, conversationID uuid.UUID, userContent, assistantContent string, chunkIDs []string) (conversation.Message, conversation.Message, error)
}

// Answerer runs the retrieval pipeline.
type Answerer interface {
	Answer(ctx context.Context, gen rag.Generator, req rag.Request) (rag.Answer, error)
}

// Generators hands out the chat model for a settings tuple.
type Generators interface {
	Generator(settings provider.Settings) (rag.Generator, error)
}

// GeneratorsFunc adapts a function to Generators.
type GeneratorsFunc func(settings provider.Settings) (rag.Generator, error)

// Generator calls f.
func (f GeneratorsFunc) Generator(settings provider.Settings) (rag.Generator, error) {
	return f(settings)
}

// Recorder accepts usage events.
type Recorder interface {
	Record(ev usage.Event)
}

// TokenCounter estimates embedding spend.
type TokenCounter interface {
	Count(text, modelFamily string) int
}

// TurnRequest is one question from one identity to one chatbot.
type TurnRequest struct {
	Identity  string
	ChatbotID uuid.UUID
	Question  string
}

// Source is a source attribution exposed to the caller. It carries the
// chunk content and position so citations render without another lookup.
type Source struct {
	ChunkID        string    `json:"chunk_id"`
	DocumentID     uuid.UUID `json:"document_id"`
	Content        string    `json:"content"`
	ChunkIndex     int       `json:"chunk_index"`
	CharacterCount int       `json:"character_count"`
	WordCount      int       `json:"word_count"`
	Similarity     float64   `json:"similarity"`
}

// TurnResponse is the committed result of a turn.
type TurnResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	Answer         string    `json:"answer"`

	// Sources is nil when the chatbot does not expose source documents.
	Sources []Source `json:"sources,omitempty"`
}

// ProviderInfo names the provider and models behind a turn, for metering.
type ProviderInfo struct {
	Name           string
	ChatModel      string
	EmbeddingModel string
}

// Service orchestrates chat turns. Stateless apart from its dependencies;
// safe for concurrent use.
type Service struct {
	bots       Bots
	convs      Conversations
	engine     Answerer
	generators Generators
	meter      Recorder
	counter    TokenCounter
	info       ProviderInfo
	logger     log.Logger
}

// NewService wires a turn orchestrator.
func NewService(bots Bots, convs Conversations, engine Answerer, generators Generators,
	meter Recorder, counter TokenCounter, info ProviderInfo, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		bots:       bots,
		convs:      convs,
		engine:     engine,
		generators: generators,
		meter:      meter,
		counter:    counter,
		info:       info,
		logger:     logger,
	}
}

// Turn executes one chat turn. The conversation is created on first
// contact; the user message and assistant reply are committed together only
// after generation succeeds, so a failed turn leaves no trace in history.
func (s *Service) Turn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	bot, err := s.bots.Chatbot(ctx, req.ChatbotID)
	if err != nil {
		return TurnResponse{}, err
	}

	conv, _, err := s.convs.StartOrGet(ctx, req.Identity, bot.ID)
	if err != nil {
		return TurnResponse{}, err
	}

	history, err := s.convs.Messages(ctx, conv.ID, historyLimit)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("load history: %w", err)
	}

	settings, modelName, err := s.modelSettings(ctx, bot)
	if err != nil {
		return TurnResponse{}, err
	}
	gen, err := s.generators.Generator(settings)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("resolve chat model: %w", err)
	}

	answer, err := s.engine.Answer(ctx, gen, rag.Request{
		Question:     req.Question,
		History:      toPromptHistory(history),
		SystemPrompt: bot.SystemPrompt,
		DocumentIDs:  bot.DocumentIDs,
		ModelFamily:  modelName,
		Sampling: provider.Sampling{
			Temperature: bot.Temperature,
			MaxTokens:   bot.MaxTokens,
		},
	})
	if err != nil {
		return TurnResponse{}, err
	}

	_, assistantMsg, err := s.convs.AppendTurn(ctx, conv.ID, req.Question, answer.Text, answer.SourceChunkIDs())
	if err != nil {
		return TurnResponse{}, fmt.Errorf("persist turn: %w", err)
	}

	s.recordUsage(req, modelName, len(bot.DocumentIDs) > 0, answer)

	resp := TurnResponse{
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		Answer:         answer.Text,
	}
	if bot.ViewSourceDocuments {
		resp.Sources = toSources(answer.Sources)
	}
	return resp, nil
}

// modelSettings resolves the chatbot's model configuration. Without an
// explicit config the deployment defaults apply.
func (s *Service) modelSettings(ctx context.Context, bot Chatbot) (provider.Settings, string, error) {
	if bot.LLMConfigID == nil {
		return provider.Settings{}, s.info.ChatModel, nil
	}

	cfg, err := s.bots.LLMConfig(ctx, *bot.LLMConfigID)
	if err != nil {
		return provider.Settings{}, "", err
	}
	kind, err := provider.ParseKind(cfg.Provider)
	if err != nil {
		return provider.Settings{}, "", fmt.Errorf("chatbot %s: %w", bot.ID, err)
	}
	return provider.Settings{
		Kind:    kind,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
	}, cfg.Model, nil
}

// recordUsage meters the turn. Fire and forget; metering never fails a turn.
// The embedding event follows the embedding call, which happens whenever the
// chatbot's scope is non-empty, even if every retrieved chunk was later
// dropped by the context budget.
func (s *Service) recordUsage(req TurnRequest, modelName string, embedded bool, answer rag.Answer) {
	if s.meter == nil {
		return
	}
	s.meter.Record(usage.Event{
		Identity:  req.Identity,
		Provider:  s.info.Name,
		Model:     modelName,
		EventType: usage.EventGeneration,
		Tokens:    answer.PromptTokens + answer.CompletionTokens,
	})
	if s.counter != nil && embedded {
		s.meter.Record(usage.Event{
			Identity:  req.Identity,
			Provider:  s.info.Name,
			Model:     s.info.EmbeddingModel,
			EventType: usage.EventEmbedding,
			Tokens:    s.counter.Count(req.Question, s.info.EmbeddingModel),
		})
	}
}

// History returns a conversation's messages in sequence order.
func (s *Service) History(ctx context.Context, conversationID uuid.UUID) ([]conversation.Message, error) {
	return s.convs.Messages(ctx, conversationID, 0)
}

func toPromptHistory(messages []conversation.Message) []provider.Message {
	out := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, provider.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func toSources(chunks []index.ScoredChunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, Source{
			ChunkID:        c.ID,
			DocumentID:     c.DocumentID,
			Content:        c.Content,
			ChunkIndex:     c.Index,
			CharacterCount: c.CharacterCount,
			WordCount:      c.WordCount,
			Similarity:     c.Similarity,
		})
	}
	return sources
}

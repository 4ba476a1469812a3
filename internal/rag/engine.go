package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/provider"
)

// Budget caps the token cost of prompt sections. Zero fields fall back to
// defaults.
type Budget struct {
	// ContextTokens caps the retrieved chunk content placed in the prompt.
	ContextTokens int

	// HistoryTokens caps prior conversation carried into the prompt.
	HistoryTokens int
}

// Default budgets, conservative for small context windows.
const (
	DefaultContextTokens = 4000
	DefaultHistoryTokens = 2000
)

func (b Budget) withDefaults() Budget {
	if b.ContextTokens <= 0 {
		b.ContextTokens = DefaultContextTokens
	}
	if b.HistoryTokens <= 0 {
		b.HistoryTokens = DefaultHistoryTokens
	}
	return b
}

// ErrEmptyQuestion indicates a request with no question text.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Engine runs the retrieval pipeline. It is stateless: every dependency is
// injected and every call is independent, so one engine serves all chatbots
// concurrently.
type Engine struct {
	embedder Embedder
	searcher Searcher
	counter  TokenCounter
	budget   Budget
	logger   log.Logger
}

// NewEngine creates an engine. The generator is supplied per call because
// each chatbot may speak through a different model.
func NewEngine(embedder Embedder, searcher Searcher, counter TokenCounter, budget Budget, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		embedder: embedder,
		searcher: searcher,
		counter:  counter,
		budget:   budget.withDefaults(),
		logger:   logger,
	}
}

// Answer runs one question through the pipeline: embed, retrieve within the
// request's document scope, fit chunks and history into the token budget,
// generate. The returned sources are exactly the chunks the prompt
// contained.
func (e *Engine) Answer(ctx context.Context, gen Generator, req Request) (Answer, error) {
	if req.Question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	sources, err := e.retrieve(ctx, req)
	if err != nil {
		return Answer{}, err
	}

	messages := e.assemble(req, sources)

	completion, err := gen.Generate(ctx, messages, req.Sampling)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	e.logger.Debug("answer generated",
		"sources", len(sources),
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens,
	)
	return Answer{
		Text:             completion.Text,
		Sources:          sources,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
	}, nil
}

// retrieve embeds the question and returns the budget-fitted chunk set.
func (e *Engine) retrieve(ctx context.Context, req Request) ([]index.ScoredChunk, error) {
	// An empty scope cannot match anything; skip the embedding call.
	if len(req.DocumentIDs) == 0 {
		return []index.ScoredChunk{}, nil
	}

	vec, err := e.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	opts := []index.SearchOption{index.WithDocumentFilter(req.DocumentIDs)}
	if req.TopK > 0 {
		opts = append(opts, index.WithTopK(req.TopK))
	}
	hits, err := e.searcher.Search(ctx, vec, opts...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	return e.fitToBudget(hits, req.ModelFamily), nil
}

// fitToBudget keeps hits best-first while their content fits the context
// budget. A chunk too large for the remaining budget is skipped, not a
// stopping point: a smaller, lower-ranked chunk may still fit.
func (e *Engine) fitToBudget(hits []index.ScoredChunk, modelFamily string) []index.ScoredChunk {
	remaining := e.budget.ContextTokens
	kept := make([]index.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		cost := e.counter.Count(hit.Content, modelFamily)
		if cost > remaining {
			e.logger.Debug("chunk dropped by context budget",
				"chunk_id", hit.ID,
				"cost", cost,
				"remaining", remaining,
			)
			continue
		}
		kept = append(kept, hit)
		remaining -= cost
	}
	return kept
}

// assemble builds the chat messages: a system message carrying the base
// prompt and the context block, trimmed history, then the question.
func (e *Engine) assemble(req Request, sources []index.ScoredChunk) []provider.Message {
	history := trimHistory(req.History, e.budget.HistoryTokens, e.counter, req.ModelFamily)

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: systemPrompt(req.SystemPrompt, sources),
	})
	messages = append(messages, history...)
	messages = append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: req.Question,
	})
	return messages
}

// trimHistory drops oldest messages until the remainder fits the budget.
// The most recent turns carry the conversational state that matters.
func trimHistory(history []provider.Message, budget int, counter TokenCounter, modelFamily string) []provider.Message {
	if len(history) == 0 {
		return history
	}

	total := 0
	costs := make([]int, len(history))
	for i, msg := range history {
		costs[i] = counter.Count(msg.Content, modelFamily)
		total += costs[i]
	}
	if total <= budget {
		return history
	}

	start := 0
	for start < len(history) && total > budget {
		total -= costs[start]
		start++
	}
	return history[start:]
}

// Package rag turns a question into a grounded answer: embed the question,
// retrieve the closest chunks from the caller's document scope, assemble a
// token-budgeted prompt, and generate a reply that carries the IDs of the
// chunks it was grounded on.
package rag

import (
	"context"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/provider"
)

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves scored chunks for a query vector.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, opts ...index.SearchOption) ([]index.ScoredChunk, error)
}

// Generator produces the completion.
type Generator interface {
	Generate(ctx context.Context, messages []provider.Message, sampling provider.Sampling) (provider.Completion, error)
}

// TokenCounter measures prompt pieces against the context budget.
type TokenCounter interface {
	Count(text, modelFamily string) int
}

// Request is one question against one chatbot's knowledge scope.
type Request struct {
	Question     string
	History      []provider.Message
	SystemPrompt string

	// DocumentIDs is the retrieval scope. Retrieval is filtered to these
	// documents inside the search query; an empty scope retrieves nothing.
	DocumentIDs []uuid.UUID

	TopK        int
	ModelFamily string
	Sampling    provider.Sampling
}

// Answer is a generated reply with its grounding.
type Answer struct {
	Text string

	// Sources are exactly the chunks whose content was placed in the
	// prompt, best match first. Retrieved chunks dropped by the token
	// budget are not sources.
	Sources []index.ScoredChunk

	PromptTokens     int
	CompletionTokens int
}

// SourceChunkIDs returns the source chunk IDs in prompt order.
func (a Answer) SourceChunkIDs() []string {
	ids := make([]string, 0, len(a.Sources))
	for _, src := range a.Sources {
		ids = append(ids, src.ID)
	}
	return ids
}

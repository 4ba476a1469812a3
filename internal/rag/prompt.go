package rag

import (
	"strings"

	"github.com/docloom/docloom/internal/index"
)

const defaultSystemPrompt = "You are a helpful assistant that answers questions using the provided knowledge base."

const contextInstructions = "Answer using only the context below. " +
	"If the context does not contain the answer, say you don't know rather than guessing."

const noContextInstructions = "No relevant context was found for this question. " +
	"Say that the knowledge base does not cover it rather than guessing."

// systemPrompt renders the system message: the chatbot's base prompt (or a
// default), grounding instructions, and one tagged block per source chunk.
// The tags match the IDs reported as sources.
func systemPrompt(base string, sources []index.ScoredChunk) string {
	var b strings.Builder
	if base == "" {
		base = defaultSystemPrompt
	}
	b.WriteString(base)
	b.WriteString("\n\n")

	if len(sources) == 0 {
		b.WriteString(noContextInstructions)
		return b.String()
	}

	b.WriteString(contextInstructions)
	b.WriteString("\n\nContext:\n")
	for _, src := range sources {
		b.WriteString("\n[chunk ")
		b.WriteString(src.ID)
		b.WriteString("]\n")
		b.WriteString(src.Content)
		b.WriteString("\n")
	}
	return b.String()
}

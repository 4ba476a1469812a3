// Package tokens approximates token counts for context-budget decisions.
//
// Counting is best-effort: the model-specific tokenizer is tried first, then
// a fixed general-purpose encoding, and finally zero. Counter never fails:
// a wrong count only makes budget trimming more conservative, whereas an
// error here would fail chat turns for no user-visible reason.
package tokens

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// FallbackEncoding is the general-purpose tokenizer used when the model
// family is unknown.
const FallbackEncoding = "cl100k_base"

// Counter counts tokens for a given model family.
// Safe for concurrent use; encodings are cached after first load.
type Counter struct {
	logger *slog.Logger

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
	fallback  *tiktoken.Tiktoken
}

// NewCounter creates a token counter. logger may be nil.
func NewCounter(logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{
		logger:    logger,
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// Count returns the approximate token count of text for the given model
// family. Unknown model families fall back to FallbackEncoding; if that
// also fails, Count returns 0. It never panics and is deterministic for
// identical (text, modelFamily) inputs.
func (c *Counter) Count(text, modelFamily string) int {
	if text == "" {
		return 0
	}

	if enc := c.encodingFor(modelFamily); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return 0
}

// CountMessages sums Count over message contents. perMessageOverhead is
// added for each message to account for role/format framing tokens.
func (c *Counter) CountMessages(contents []string, modelFamily string, perMessageOverhead int) int {
	total := 0
	for _, content := range contents {
		total += c.Count(content, modelFamily) + perMessageOverhead
	}
	return total
}

// encodingFor resolves the tokenizer for a model family, caching results.
// Returns nil only when both the model tokenizer and the fallback fail.
func (c *Counter) encodingFor(modelFamily string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodings[modelFamily]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(modelFamily)
	if err != nil {
		c.logger.Debug("no tokenizer for model family, using fallback",
			"model", modelFamily, "fallback", FallbackEncoding)
		enc = c.fallbackEncoding()
	}

	// Cache nil results too: repeated lookups for a broken model family
	// should not retry the loader on every call.
	c.encodings[modelFamily] = enc
	return enc
}

func (c *Counter) fallbackEncoding() *tiktoken.Tiktoken {
	if c.fallback != nil {
		return c.fallback
	}

	enc, err := tiktoken.GetEncoding(FallbackEncoding)
	if err != nil {
		c.logger.Warn("fallback tokenizer unavailable, token counts will be zero",
			"encoding", FallbackEncoding, "error", err)
		return nil
	}
	c.fallback = enc
	return enc
}

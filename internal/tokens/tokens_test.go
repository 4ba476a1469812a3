package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docloom/docloom/internal/log"
)

func TestCount_EmptyText(t *testing.T) {
	c := NewCounter(log.NewNop())

	assert.Equal(t, 0, c.Count("", "gpt-4"))
	assert.Equal(t, 0, c.Count("", "unknown-model-xyz"))
}

func TestCount_KnownModel(t *testing.T) {
	c := NewCounter(log.NewNop())

	got := c.Count("The quick brown fox jumps over the lazy dog.", "gpt-4")
	assert.Positive(t, got)
}

func TestCount_UnknownModelFallsBack(t *testing.T) {
	c := NewCounter(log.NewNop())

	text := "Retrieval-augmented generation grounds answers in documents."

	// gpt-4 uses cl100k_base, which is also the fallback encoding, so an
	// unknown model family must produce an identical count.
	want := c.Count(text, "gpt-4")
	got := c.Count(text, "unknown-model-xyz")

	require.Positive(t, want)
	assert.Equal(t, want, got)
}

func TestCount_Deterministic(t *testing.T) {
	c := NewCounter(log.NewNop())

	text := "same input, same count"
	first := c.Count(text, "gpt-4o")
	for range 5 {
		assert.Equal(t, first, c.Count(text, "gpt-4o"))
	}
}

func TestCount_NeverPanics(t *testing.T) {
	c := NewCounter(log.NewNop())

	// A grab bag of adversarial inputs; Count must return without panic.
	for _, text := range []string{"", " ", "\x00", "日本語のテキスト", "emoji 🦫🦫"} {
		for _, model := range []string{"", "gpt-4", "not-a-model", "claude-foo"} {
			assert.GreaterOrEqual(t, c.Count(text, model), 0)
		}
	}
}

func TestCountMessages(t *testing.T) {
	c := NewCounter(log.NewNop())

	contents := []string{"hello there", "general kenobi"}
	base := c.Count(contents[0], "gpt-4") + c.Count(contents[1], "gpt-4")

	assert.Equal(t, base, c.CountMessages(contents, "gpt-4", 0))
	assert.Equal(t, base+8, c.CountMessages(contents, "gpt-4", 4))
	assert.Equal(t, 0, c.CountMessages(nil, "gpt-4", 4))
}

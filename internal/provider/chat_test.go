package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatSuccess(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func newChatModel(t *testing.T, baseURL string) *OpenAIChatModel {
	t.Helper()
	noContainer(t)
	m, err := NewChatModel(Settings{
		Kind:    KindSelfHosted,
		Model:   "test-model",
		BaseURL: baseURL,
	}, Options{})
	require.NoError(t, err)
	return m
}

func TestChatModelGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		writeJSON(t, w, http.StatusOK, chatSuccess("hello there", 42, 7))
	}))
	defer srv.Close()

	m := newChatModel(t, srv.URL)
	got, err := m.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are helpful."},
		{Role: RoleUser, Content: "hi"},
	}, Sampling{Temperature: 0.7, MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "hello there", got.Text)
	assert.Equal(t, 42, got.PromptTokens)
	assert.Equal(t, 7, got.CompletionTokens)
}

func TestChatModelShedsRejectedTemperature(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		if strings.Contains(string(body), `"temperature"`) {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{
					"message": "Unsupported value: 'temperature' does not support 0.7 with this model.",
					"type":    "invalid_request_error",
					"param":   "temperature",
					"code":    "unsupported_value",
				},
			})
			return
		}
		writeJSON(t, w, http.StatusOK, chatSuccess("shed ok", 10, 3))
	}))
	defer srv.Close()

	m := newChatModel(t, srv.URL)
	got, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		Sampling{Temperature: 0.7})
	require.NoError(t, err)

	assert.Equal(t, "shed ok", got.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatModelUnrelatedErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"message": "context length exceeded",
				"type":    "invalid_request_error",
			},
		})
	}))
	defer srv.Close()

	m := newChatModel(t, srv.URL)
	_, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		Sampling{Temperature: 0.7})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatModelTransientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]any{"message": "overloaded", "type": "server_error"},
		})
	}))
	defer srv.Close()

	m := newChatModel(t, srv.URL)
	_, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		Sampling{Temperature: 0.7})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "generation must not be replayed on transient failure")
}

func TestChatModelEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion", "choices": []any{},
		})
	}))
	defer srv.Close()

	m := newChatModel(t, srv.URL)
	_, err := m.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Sampling{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

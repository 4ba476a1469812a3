package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docloom/docloom/internal/chat"
	"github.com/docloom/docloom/internal/conversation"
	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/rag"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"name": "docs"}, log.NewNop())

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"name":"docs"}`, rec.Body.String())
}

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, "chatbot_not_found", "chatbot not found", log.NewNop())

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "chatbot_not_found", body.Error.Code)
	assert.Equal(t, "chatbot not found", body.Error.Message)
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"chatbot not found", chat.ErrChatbotNotFound, http.StatusNotFound, "chatbot_not_found"},
		{"wrapped chatbot not found", fmt.Errorf("load bot: %w", chat.ErrChatbotNotFound), http.StatusNotFound, "chatbot_not_found"},
		{"llm config not found", chat.ErrLLMConfigNotFound, http.StatusNotFound, "llm_config_not_found"},
		{"document not found", index.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"},
		{"conversation not found", conversation.ErrConversationNotFound, http.StatusNotFound, "conversation_not_found"},
		{"invalid identity", conversation.ErrInvalidIdentity, http.StatusBadRequest, "invalid_identity"},
		{"empty question", rag.ErrEmptyQuestion, http.StatusBadRequest, "empty_message"},
		{"chunk mismatch", index.ErrEmbeddingCountMismatch, http.StatusBadRequest, "invalid_chunks"},
		{"unknown error", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err, log.NewNop())

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestWriteDomainError_InternalNotEchoed(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, errors.New("pq: password authentication failed"), log.NewNop())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"identity":"user:1","bogus":true}`))

	var req sendRequest
	err := decodeJSON(r, &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestDecodeJSON_Valid(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"identity":"user:1","message":"hi"}`))

	var req sendRequest
	require.NoError(t, decodeJSON(r, &req))
	assert.Equal(t, "user:1", req.Identity)
	assert.Equal(t, "hi", req.Message)
}

// Package api exposes the chat platform over a JSON HTTP API.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/docloom/docloom/internal/chat"
	"github.com/docloom/docloom/internal/config"
	"github.com/docloom/docloom/internal/conversation"
	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/rag"
)

// errorBody is the error envelope every failed request returns.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response. The body is encoded into a buffer first
// so headers are only sent after encoding succeeds.
func WriteJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	WriteJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// writeDomainError maps a domain error to its HTTP status. Internal errors
// are logged but never echoed to the client.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	switch {
	case errors.Is(err, chat.ErrChatbotNotFound):
		WriteError(w, http.StatusNotFound, "chatbot_not_found", "chatbot not found", logger)
	case errors.Is(err, chat.ErrLLMConfigNotFound):
		WriteError(w, http.StatusNotFound, "llm_config_not_found", "llm config not found", logger)
	case errors.Is(err, index.ErrDocumentNotFound):
		WriteError(w, http.StatusNotFound, "document_not_found", "document not found", logger)
	case errors.Is(err, conversation.ErrConversationNotFound):
		WriteError(w, http.StatusNotFound, "conversation_not_found", "conversation not found", logger)
	case errors.Is(err, conversation.ErrInvalidIdentity):
		WriteError(w, http.StatusBadRequest, "invalid_identity", err.Error(), logger)
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, rag.ErrEmptyQuestion):
		WriteError(w, http.StatusBadRequest, "empty_message", "message cannot be empty", logger)
	case errors.Is(err, chat.ErrChatbotNameEmpty):
		WriteError(w, http.StatusBadRequest, "invalid_chatbot", err.Error(), logger)
	case errors.Is(err, index.ErrNoChunks), errors.Is(err, index.ErrEmbeddingCountMismatch):
		WriteError(w, http.StatusBadRequest, "invalid_chunks", err.Error(), logger)
	case errors.Is(err, config.ErrInvalidProvider):
		WriteError(w, http.StatusBadRequest, "invalid_provider", err.Error(), logger)
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}

// decodeJSON parses a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/chat"
	"github.com/docloom/docloom/internal/conversation"
	"github.com/docloom/docloom/internal/log"
)

// maxQuestionBytes bounds a single chat message.
const maxQuestionBytes = 16 * 1024

type chatHandler struct {
	service *chat.Service
	convs   *conversation.Store
	logger  log.Logger
}

type sendRequest struct {
	Identity  string    `json:"identity"`
	ChatbotID uuid.UUID `json:"chatbot_id"`
	Message   string    `json:"message"`
}

// send handles POST /api/v1/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "malformed request body", h.logger)
		return
	}
	if req.ChatbotID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, "missing_chatbot", "chatbot_id is required", h.logger)
		return
	}
	if req.Message == "" {
		WriteError(w, http.StatusBadRequest, "empty_message", "message cannot be empty", h.logger)
		return
	}
	if len(req.Message) > maxQuestionBytes {
		WriteError(w, http.StatusRequestEntityTooLarge, "message_too_long", "message exceeds size limit", h.logger)
		return
	}
	if err := conversation.ValidateIdentity(req.Identity); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	resp, err := h.service.Turn(r.Context(), chat.TurnRequest{
		Identity:  req.Identity,
		ChatbotID: req.ChatbotID,
		Question:  req.Message,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, resp, h.logger)
}

// messages handles GET /api/v1/conversations/{id}/messages.
func (h *chatHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID", h.logger)
		return
	}

	// Distinguish an empty conversation from a missing one.
	if _, err := h.convs.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	messages, err := h.convs.Messages(r.Context(), id, 0)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"messages": messages}, h.logger)
}

// deleteConversation handles DELETE /api/v1/conversations/{id}.
func (h *chatHandler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID", h.logger)
		return
	}
	if err := h.convs.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

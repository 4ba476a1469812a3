package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/chat"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/provider"
)

type chatbotHandler struct {
	store  *chat.Store
	logger log.Logger
}

type createChatbotRequest struct {
	OwnerID             string      `json:"owner_id"`
	Name                string      `json:"name"`
	DocumentIDs         []uuid.UUID `json:"document_ids"`
	LLMConfigID         *uuid.UUID  `json:"llm_config_id"`
	SystemPrompt        string      `json:"system_prompt"`
	Temperature         float32     `json:"temperature"`
	MaxTokens           int         `json:"max_tokens"`
	ViewSourceDocuments bool        `json:"view_source_documents"`
	Visibility          string      `json:"visibility"`
}

// create handles POST /api/v1/chatbots.
func (h *chatbotHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createChatbotRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "malformed request body", h.logger)
		return
	}
	if req.OwnerID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_chatbot", "owner_id is required", h.logger)
		return
	}

	bot, err := h.store.CreateChatbot(r.Context(), chat.Chatbot{
		OwnerID:             req.OwnerID,
		Name:                req.Name,
		DocumentIDs:         req.DocumentIDs,
		LLMConfigID:         req.LLMConfigID,
		SystemPrompt:        req.SystemPrompt,
		Temperature:         req.Temperature,
		MaxTokens:           req.MaxTokens,
		ViewSourceDocuments: req.ViewSourceDocuments,
		Visibility:          req.Visibility,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, bot, h.logger)
}

// get handles GET /api/v1/chatbots/{id}.
func (h *chatbotHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "chatbot id must be a UUID", h.logger)
		return
	}
	bot, err := h.store.Chatbot(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, bot, h.logger)
}

// list handles GET /api/v1/chatbots?owner=...
func (h *chatbotHandler) list(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		WriteError(w, http.StatusBadRequest, "missing_owner", "owner query parameter is required", h.logger)
		return
	}
	bots, err := h.store.ChatbotsByOwner(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"chatbots": bots}, h.logger)
}

type setDocumentsRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

// setDocuments handles PUT /api/v1/chatbots/{id}/documents.
func (h *chatbotHandler) setDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "chatbot id must be a UUID", h.logger)
		return
	}
	var req setDocumentsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "malformed request body", h.logger)
		return
	}
	if err := h.store.SetDocuments(r.Context(), id, req.DocumentIDs); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// remove handles DELETE /api/v1/chatbots/{id}.
func (h *chatbotHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "chatbot id must be a UUID", h.logger)
		return
	}
	if err := h.store.DeleteChatbot(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createLLMConfigRequest struct {
	OwnerID  string `json:"owner_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
}

// createLLMConfig handles POST /api/v1/llm-configs. The stored key is never
// returned.
func (h *chatbotHandler) createLLMConfig(w http.ResponseWriter, r *http.Request) {
	var req createLLMConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "malformed request body", h.logger)
		return
	}
	if req.OwnerID == "" || req.Model == "" {
		WriteError(w, http.StatusBadRequest, "invalid_llm_config", "owner_id and model are required", h.logger)
		return
	}
	kind, err := provider.ParseKind(req.Provider)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if err := (provider.Settings{
		Kind:    kind,
		Model:   req.Model,
		APIKey:  req.APIKey,
		BaseURL: req.BaseURL,
	}).Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_llm_config", err.Error(), h.logger)
		return
	}

	cfg, err := h.store.CreateLLMConfig(r.Context(), chat.LLMConfig{
		OwnerID:  req.OwnerID,
		Provider: req.Provider,
		Model:    req.Model,
		APIKey:   req.APIKey,
		BaseURL:  req.BaseURL,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, cfg, h.logger)
}

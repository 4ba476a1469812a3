// Package chat holds the chatbot domain and orchestrates a full chat turn:
// resolve the chatbot, run retrieval and generation, persist the turn, and
// meter the spend.
package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Chatbot visibility values, shared with documents.
const (
	VisibilityPrivate = "PRIVATE"
	VisibilityShared  = "SHARED"
	VisibilityPublic  = "PUBLIC"
)

// Chatbot is a configured assistant over a set of documents. DocumentIDs is
// its retrieval scope; answers can only be grounded in those documents.
type Chatbot struct {
	ID                  uuid.UUID   `json:"id"`
	OwnerID             string      `json:"owner_id"`
	Name                string      `json:"name"`
	DocumentIDs         []uuid.UUID `json:"document_ids"`
	LLMConfigID         *uuid.UUID  `json:"llm_config_id,omitempty"`
	SystemPrompt        string      `json:"system_prompt,omitempty"`
	Temperature         float32     `json:"temperature"`
	MaxTokens           int         `json:"max_tokens"`
	ViewSourceDocuments bool        `json:"view_source_documents"`
	Visibility          string      `json:"visibility"`
	CreatedAt           time.Time   `json:"created_at"`
}

// LLMConfig is a stored model configuration a chatbot can point at instead
// of the deployment default. APIKey never leaves the server.
type LLMConfig struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	APIKey    string    `json:"-"`
	BaseURL   string    `json:"base_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrChatbotNotFound indicates the chatbot does not exist.
	ErrChatbotNotFound = errors.New("chatbot not found")

	// ErrLLMConfigNotFound indicates the referenced model config does not exist.
	ErrLLMConfigNotFound = errors.New("llm config not found")

	// ErrChatbotNameEmpty indicates a chatbot without a name.
	ErrChatbotNameEmpty = errors.New("chatbot name cannot be empty")
)

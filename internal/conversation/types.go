// Package conversation persists chat history. A conversation is owned by
// one identity on one chatbot; its messages form an append-only, gap-free
// sequence.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Identity prefixes. A stable account maps to "user:<id>"; an anonymous
// visitor to "session:<key>".
const (
	IdentityPrefixUser    = "user:"
	IdentityPrefixSession = "session:"
)

// Conversation is one identity's thread on one chatbot.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	Identity      string     `json:"identity"`
	ChatbotID     uuid.UUID  `json:"chatbot_id"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Message is one turn in a conversation. ChunkIDs records which chunks
// grounded an assistant reply; it is empty for user messages.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ChunkIDs       []string  `json:"chunk_ids,omitempty"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

var (
	// ErrConversationNotFound indicates the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidIdentity indicates a malformed caller identity.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrEmptyMessage indicates a turn with empty content.
	ErrEmptyMessage = errors.New("message content cannot be empty")
)

// ValidateIdentity checks the identity scheme: a known prefix followed by a
// non-empty identifier.
func ValidateIdentity(identity string) error {
	for _, prefix := range []string{IdentityPrefixUser, IdentityPrefixSession} {
		if rest, ok := strings.CutPrefix(identity, prefix); ok {
			if rest == "" {
				return fmt.Errorf("%w: empty identifier after %q", ErrInvalidIdentity, prefix)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %q must start with %q or %q",
		ErrInvalidIdentity, identity, IdentityPrefixUser, IdentityPrefixSession)
}

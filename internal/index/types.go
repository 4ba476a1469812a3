// Package index stores document chunks with their embeddings and serves
// filtered vector similarity search over them, backed by PostgreSQL with
// the pgvector extension.
package index

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Document lifecycle states.
const (
	// StatusPending means the document is registered but has no indexed chunks.
	StatusPending = "pending"

	// StatusIndexed means all chunks are stored with embeddings.
	StatusIndexed = "indexed"

	// StatusFailed means the last indexing attempt did not complete.
	StatusFailed = "failed"
)

// Document visibility values.
const (
	VisibilityPrivate = "PRIVATE"
	VisibilityShared  = "SHARED"
	VisibilityPublic  = "PUBLIC"
)

// Document is a knowledge-base document. Its content lives in chunks; the
// document row carries ownership and lifecycle metadata.
type Document struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Visibility  string    `json:"visibility"`
	Labels      []string  `json:"labels,omitempty"`
	Status      string    `json:"status"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chunk is one retrievable unit of a document. ID is stable across
// re-indexing so stored source attributions stay resolvable.
type Chunk struct {
	ID             string    `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	Content        string    `json:"content"`
	Index          int       `json:"index"`
	CharacterCount int       `json:"character_count"`
	WordCount      int       `json:"word_count"`
}

// ScoredChunk is a search hit with its cosine similarity in [0, 1] for
// normalized embeddings, higher is closer.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

var (
	// ErrNoChunks indicates an indexing request with an empty chunk list.
	ErrNoChunks = errors.New("no chunks to index")

	// ErrEmbeddingCountMismatch indicates the embedding list does not line
	// up one-to-one with the chunk list.
	ErrEmbeddingCountMismatch = errors.New("embedding count does not match chunk count")

	// ErrDocumentNotFound indicates the document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

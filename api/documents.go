package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/usage"
)

// maxChunksPerRequest bounds one ingestion call.
const maxChunksPerRequest = 500

// Embedder produces chunk vectors during ingestion.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	ProviderName() string
}

// TokenCounter estimates embedding spend for metering.
type TokenCounter interface {
	Count(text, modelFamily string) int
}

type documentHandler struct {
	store    *index.Store
	embedder Embedder
	meter    *usage.Meter
	counter  TokenCounter
	logger   log.Logger
}

type createDocumentRequest struct {
	OwnerID     string   `json:"owner_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Visibility  string   `json:"visibility"`
	Labels      []string `json:"labels"`
}

// create handles POST /api/v1/documents.
func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "malformed request body", h.logger)
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "invalid_document", "name is required", h.logger)
		return
	}
	if req.OwnerID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_document", "owner_id is required", h.logger)
		return
	}

	doc := index.Document{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
		Labels:      req.Labels,
	}
	if err := h.store.EnsureDocument(r.Context(), doc); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	created, err := h.store.Document(r.Context(), doc.ID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, created, h.logger)
}

// get handles GET /api/v1/documents/{id}.
func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "document id must be a UUID", h.logger)
		return
	}
	doc, err := h.store.Document(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, doc, h.logger)
}

type ingestRequest struct {
	Chunks []ingestChunk `json:"chunks"`
}

// ingestChunk is the transfer object produced by the external chunking
// step. ID and metadata are optional; index must be 0-based and contiguous.
type ingestChunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Index    int           `json:"index"`
	Metadata chunkMetadata `json:"metadata"`
}

type chunkMetadata struct {
	CharacterCount int `json:"characterCount"`
	WordCount      int `json:"wordCount"`
}

type ingestResponse struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIDs   []string  `json:"chunk_ids"`
	ChunkCount int       `json:"chunk_count"`
}

// ingest handles PUT /api/v1/documents/{id}/chunks. Chunks replace the
// document's previous content as one atomic set.
func (h *documentHandler) ingest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "document id must be a UUID", h.logger)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "malformed request body", h.logger)
		return
	}
	if len(req.Chunks) == 0 {
		WriteError(w, http.StatusBadRequest, "invalid_chunks", "at least one chunk is required", h.logger)
		return
	}
	if len(req.Chunks) > maxChunksPerRequest {
		WriteError(w, http.StatusRequestEntityTooLarge, "too_many_chunks", "too many chunks in one request", h.logger)
		return
	}

	doc, err := h.store.Document(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	chunks := make([]index.Chunk, 0, len(req.Chunks))
	embeddings := make([][]float32, 0, len(req.Chunks))
	embeddedTokens := 0
	for i, c := range req.Chunks {
		if c.Content == "" {
			WriteError(w, http.StatusBadRequest, "invalid_chunks", "chunk content cannot be empty", h.logger)
			return
		}
		if c.Index != i {
			WriteError(w, http.StatusBadRequest, "invalid_chunks", "chunk indexes must be contiguous from 0", h.logger)
			return
		}
		vec, err := h.embedder.Embed(r.Context(), c.Content)
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
		chunks = append(chunks, index.Chunk{
			ID:             c.ID,
			Index:          c.Index,
			Content:        c.Content,
			CharacterCount: c.Metadata.CharacterCount,
			WordCount:      c.Metadata.WordCount,
		})
		embeddings = append(embeddings, vec)
		embeddedTokens += h.counter.Count(c.Content, h.embedder.ModelName())
	}

	ids, err := h.store.IndexChunks(r.Context(), id, chunks, embeddings)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	if h.meter != nil {
		h.meter.Record(usage.Event{
			Identity:  doc.OwnerID,
			Provider:  h.embedder.ProviderName(),
			Model:     h.embedder.ModelName(),
			EventType: usage.EventEmbedding,
			Tokens:    embeddedTokens,
		})
	}

	WriteJSON(w, http.StatusOK, ingestResponse{
		DocumentID: id,
		ChunkIDs:   ids,
		ChunkCount: len(ids),
	}, h.logger)
}

// remove handles DELETE /api/v1/documents/{id}. Deletion is idempotent.
func (h *documentHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "document id must be a UUID", h.logger)
		return
	}
	if _, err := h.store.DeleteDocuments(r.Context(), []uuid.UUID{id}); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package index

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/docloom/docloom/internal/log"
)

// Querier is the database surface Store needs. *pgxpool.Pool satisfies it;
// tests may substitute their own implementation.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists chunks with embeddings and serves similarity search.
// Safe for concurrent use.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a chunk store on the given database.
func NewStore(db Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// EnsureDocument registers a document, or refreshes its metadata if it
// already exists. Indexed content is untouched.
func (s *Store) EnsureDocument(ctx context.Context, doc Document) error {
	if doc.Visibility == "" {
		doc.Visibility = VisibilityPrivate
	}
	if doc.Labels == nil {
		doc.Labels = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, owner_id, name, description, visibility, labels, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    visibility = EXCLUDED.visibility,
		    labels = EXCLUDED.labels,
		    updated_at = now()`,
		doc.ID, doc.OwnerID, doc.Name, doc.Description, doc.Visibility, doc.Labels, StatusPending)
	if err != nil {
		return fmt.Errorf("ensure document %s: %w", doc.ID, err)
	}
	return nil
}

// Document returns the document row, or ErrDocumentNotFound.
func (s *Store) Document(ctx context.Context, id uuid.UUID) (Document, error) {
	var doc Document
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, description, visibility, labels, status, chunk_count, created_at, updated_at
		FROM documents
		WHERE id = $1`,
		id).Scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.Description, &doc.Visibility, &doc.Labels,
		&doc.Status, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// IndexChunks replaces the document's chunks with the given set, all or
// nothing. Embeddings line up one-to-one with chunks. On success the
// document becomes indexed with the new chunk count and the generated chunk
// IDs are returned in chunk order; on failure the document is marked failed
// and no chunks are written.
func (s *Store) IndexChunks(ctx context.Context, documentID uuid.UUID, chunks []Chunk, embeddings [][]float32) ([]string, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: %d chunks, %d embeddings",
			ErrEmbeddingCountMismatch, len(chunks), len(embeddings))
	}

	ids, err := s.indexChunksTx(ctx, documentID, chunks, embeddings)
	if err != nil {
		s.markFailed(ctx, documentID)
		return nil, err
	}

	s.logger.Info("document indexed",
		"document_id", documentID,
		"chunks", len(chunks),
	)
	return ids, nil
}

func (s *Store) indexChunksTx(ctx context.Context, documentID uuid.UUID, chunks []Chunk, embeddings [][]float32) ([]string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin indexing: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE documents SET updated_at = now() WHERE id = $1`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("lock document %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return nil, fmt.Errorf("clear chunks for %s: %w", documentID, err)
	}

	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		id := chunk.ID
		if id == "" {
			id = chunkID(documentID, chunk.Index)
		}
		// Caller-supplied metadata wins; absent values are derived from
		// the content. Characters are runes, not bytes.
		chars := chunk.CharacterCount
		if chars == 0 {
			chars = utf8.RuneCountInString(chunk.Content)
		}
		words := chunk.WordCount
		if words == 0 {
			words = wordCount(chunk.Content)
		}
		vec := pgvector.NewVector(embeddings[i])

		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, content, chunk_index, character_count, word_count, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, documentID, chunk.Content, chunk.Index, chars, words, vec,
		); err != nil {
			return nil, fmt.Errorf("insert chunk %d of %s: %w", chunk.Index, documentID, err)
		}
		ids = append(ids, id)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $2, chunk_count = $3, updated_at = now()
		WHERE id = $1`,
		documentID, StatusIndexed, len(chunks),
	); err != nil {
		return nil, fmt.Errorf("finalize document %s: %w", documentID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit indexing of %s: %w", documentID, err)
	}
	return ids, nil
}

// markFailed is best effort; the original indexing error takes precedence.
func (s *Store) markFailed(ctx context.Context, documentID uuid.UUID) {
	if _, err := s.db.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
		documentID, StatusFailed,
	); err != nil {
		s.logger.Warn("failed to mark document as failed",
			"document_id", documentID,
			"error", err,
		)
	}
}

// Search returns the chunks closest to the query embedding by cosine
// distance, ordered best first.
func (s *Store) Search(ctx context.Context, embedding []float32, opts ...SearchOption) ([]ScoredChunk, error) {
	cfg := buildSearchConfig(opts)

	// An explicit empty filter means the caller's document set is empty;
	// nothing can match.
	if cfg.filterSet && len(cfg.filter) == 0 {
		return []ScoredChunk{}, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec := pgvector.NewVector(embedding)

	var (
		rows pgx.Rows
		err  error
	)
	if cfg.filterSet {
		rows, err = s.db.Query(queryCtx, `
			SELECT c.id, c.document_id, c.content, c.chunk_index, c.character_count, c.word_count,
			       1 - (c.embedding <=> $1) AS similarity
			FROM chunks c
			WHERE c.document_id = ANY($2)
			ORDER BY c.embedding <=> $1
			LIMIT $3`,
			vec, cfg.filter, cfg.topK)
	} else {
		rows, err = s.db.Query(queryCtx, `
			SELECT c.id, c.document_id, c.content, c.chunk_index, c.character_count, c.word_count,
			       1 - (c.embedding <=> $1) AS similarity
			FROM chunks c
			ORDER BY c.embedding <=> $1
			LIMIT $2`,
			vec, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	results := make([]ScoredChunk, 0, cfg.topK)
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Content, &sc.Index,
			&sc.CharacterCount, &sc.WordCount, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read search rows: %w", err)
	}
	return results, nil
}

// DeleteDocuments removes the given documents and their chunks. Unknown IDs
// are ignored; the count of documents actually removed is returned.
func (s *Store) DeleteDocuments(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}

	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("documents deleted", "requested", len(ids), "deleted", n)
	}
	return tag.RowsAffected(), nil
}

// ChunksByDocument returns a document's chunks in chunk order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, content, chunk_index, character_count, word_count
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", documentID, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksByIDs resolves chunk IDs to chunks, preserving the input order.
// IDs whose chunks no longer exist are skipped; stored attributions may
// outlive a re-indexed or deleted document.
func (s *Store) ChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return []Chunk{}, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, content, chunk_index, character_count, word_count
		FROM chunks
		WHERE id = ANY($1)`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks: %w", err)
	}
	defer rows.Close()

	found, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	ordered := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	chunks := make([]Chunk, 0)
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.Index,
			&c.CharacterCount, &c.WordCount); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chunk rows: %w", err)
	}
	return chunks, nil
}

// chunkID derives a stable chunk identifier from document and position.
func chunkID(documentID uuid.UUID, index int) string {
	return fmt.Sprintf("%s:%04d", documentID, index)
}

package index_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docloom/docloom/internal/index"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/testutil"
)

// Axis-aligned test vectors make cosine similarity exact: identical axes
// score 1, orthogonal axes score 0.
var (
	axisX = []float32{1, 0, 0}
	axisY = []float32{0, 1, 0}
	axisZ = []float32{0, 0, 1}
)

func seedDocument(t *testing.T, s *index.Store, name string, chunks []index.Chunk, embeddings [][]float32) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, s.EnsureDocument(ctx, index.Document{ID: id, OwnerID: "user:owner", Name: name}))
	_, err := s.IndexChunks(ctx, id, chunks, embeddings)
	require.NoError(t, err)
	return id
}

func TestStoreIndexAndSearch(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := index.NewStore(pool, log.NewNop())
	ctx := context.Background()

	docA := seedDocument(t, s, "handbook.md",
		[]index.Chunk{
			{Index: 0, Content: "refund policy applies within thirty days"},
			{Index: 1, Content: "shipping typically takes five business days"},
		},
		[][]float32{axisX, axisY},
	)
	docB := seedDocument(t, s, "faq.md",
		[]index.Chunk{{Index: 0, Content: "contact support via email"}},
		[][]float32{axisZ},
	)

	t.Run("document lifecycle", func(t *testing.T) {
		doc, err := s.Document(ctx, docA)
		require.NoError(t, err)
		assert.Equal(t, index.StatusIndexed, doc.Status)
		assert.Equal(t, 2, doc.ChunkCount)
	})

	t.Run("search orders by similarity", func(t *testing.T) {
		hits, err := s.Search(ctx, axisX, index.WithTopK(3))
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, docA, hits[0].DocumentID)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
		assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
	})

	t.Run("filter scopes results in the query", func(t *testing.T) {
		// The closest chunk overall lives in docA; filtering to docB must
		// surface docB's chunk, not a scored-then-dropped list.
		hits, err := s.Search(ctx, axisX,
			index.WithTopK(5),
			index.WithDocumentFilter([]uuid.UUID{docB}),
		)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, docB, hits[0].DocumentID)
	})

	t.Run("empty filter matches nothing", func(t *testing.T) {
		hits, err := s.Search(ctx, axisX, index.WithDocumentFilter(nil))
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("top-k bounds result count", func(t *testing.T) {
		hits, err := s.Search(ctx, axisX, index.WithTopK(1))
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})
}

func TestStoreChunkMetadata(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := index.NewStore(pool, log.NewNop())
	ctx := context.Background()

	docID := seedDocument(t, s, "metadata.md",
		[]index.Chunk{
			// Caller-supplied id and metadata are stored as given.
			{ID: "ext:0", Index: 0, Content: "supplied metadata", CharacterCount: 99, WordCount: 42},
			// Absent metadata is derived; characters count runes.
			{Index: 1, Content: "héllo wörld 日本語"},
		},
		[][]float32{axisX, axisY},
	)

	chunks, err := s.ChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "ext:0", chunks[0].ID)
	assert.Equal(t, 99, chunks[0].CharacterCount)
	assert.Equal(t, 42, chunks[0].WordCount)

	assert.Equal(t, 15, chunks[1].CharacterCount, "multibyte content counts runes, not bytes")
	assert.Equal(t, 3, chunks[1].WordCount)
}

func TestStoreReindexReplacesChunks(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := index.NewStore(pool, log.NewNop())
	ctx := context.Background()

	docID := seedDocument(t, s, "notes.md",
		[]index.Chunk{
			{Index: 0, Content: "first draft"},
			{Index: 1, Content: "second chunk"},
		},
		[][]float32{axisX, axisY},
	)

	ids, err := s.IndexChunks(ctx, docID,
		[]index.Chunk{{Index: 0, Content: "revised draft"}},
		[][]float32{axisZ},
	)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	chunks, err := s.ChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "revised draft", chunks[0].Content)

	doc, err := s.Document(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)
}

func TestStoreIndexChunksValidation(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := index.NewStore(pool, log.NewNop())
	ctx := context.Background()

	docID := uuid.New()
	require.NoError(t, s.EnsureDocument(ctx, index.Document{ID: docID, OwnerID: "user:owner", Name: "doc.md"}))

	t.Run("empty chunk list", func(t *testing.T) {
		_, err := s.IndexChunks(ctx, docID, nil, nil)
		assert.ErrorIs(t, err, index.ErrNoChunks)
	})

	t.Run("embedding count mismatch", func(t *testing.T) {
		_, err := s.IndexChunks(ctx, docID,
			[]index.Chunk{{Index: 0, Content: "a"}, {Index: 1, Content: "b"}},
			[][]float32{axisX},
		)
		assert.ErrorIs(t, err, index.ErrEmbeddingCountMismatch)
	})

	t.Run("unknown document", func(t *testing.T) {
		_, err := s.IndexChunks(ctx, uuid.New(),
			[]index.Chunk{{Index: 0, Content: "a"}},
			[][]float32{axisX},
		)
		assert.ErrorIs(t, err, index.ErrDocumentNotFound)
	})
}

func TestStoreDeleteDocuments(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := index.NewStore(pool, log.NewNop())
	ctx := context.Background()

	docID := seedDocument(t, s, "obsolete.md",
		[]index.Chunk{{Index: 0, Content: "stale content"}},
		[][]float32{axisX},
	)

	n, err := s.DeleteDocuments(ctx, []uuid.UUID{docID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Document(ctx, docID)
	assert.ErrorIs(t, err, index.ErrDocumentNotFound)

	hits, err := s.Search(ctx, axisX)
	require.NoError(t, err)
	assert.Empty(t, hits, "chunks are removed with their document")

	t.Run("idempotent", func(t *testing.T) {
		n, err := s.DeleteDocuments(ctx, []uuid.UUID{docID})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("empty id list", func(t *testing.T) {
		n, err := s.DeleteDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStoreChunksByIDs(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := index.NewStore(pool, log.NewNop())
	ctx := context.Background()

	docID := uuid.New()
	require.NoError(t, s.EnsureDocument(ctx, index.Document{ID: docID, OwnerID: "user:owner", Name: "doc.md"}))
	ids, err := s.IndexChunks(ctx, docID,
		[]index.Chunk{
			{Index: 0, Content: "alpha"},
			{Index: 1, Content: "beta"},
			{Index: 2, Content: "gamma"},
		},
		[][]float32{axisX, axisY, axisZ},
	)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	t.Run("preserves input order", func(t *testing.T) {
		chunks, err := s.ChunksByIDs(ctx, []string{ids[2], ids[0]})
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "gamma", chunks[0].Content)
		assert.Equal(t, "alpha", chunks[1].Content)
	})

	t.Run("missing ids are skipped", func(t *testing.T) {
		chunks, err := s.ChunksByIDs(ctx, []string{ids[1], "gone:0000"})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "beta", chunks[0].Content)
	})

	t.Run("empty input", func(t *testing.T) {
		chunks, err := s.ChunksByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

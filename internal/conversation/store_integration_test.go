package conversation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docloom/docloom/internal/conversation"
	"github.com/docloom/docloom/internal/log"
	"github.com/docloom/docloom/internal/testutil"
)

func TestStoreStartOrGet(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := conversation.NewStore(pool, log.NewNop())
	ctx := context.Background()
	chatbotID := uuid.New()

	t.Run("first contact creates", func(t *testing.T) {
		conv, created, err := s.StartOrGet(ctx, "user:alice", chatbotID)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "user:alice", conv.Identity)
		assert.Equal(t, chatbotID, conv.ChatbotID)
		assert.Zero(t, conv.MessageCount)
		assert.Nil(t, conv.LastMessageAt)
	})

	t.Run("repeat contact returns same conversation", func(t *testing.T) {
		first, _, err := s.StartOrGet(ctx, "user:bob", chatbotID)
		require.NoError(t, err)
		second, created, err := s.StartOrGet(ctx, "user:bob", chatbotID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("distinct chatbots get distinct conversations", func(t *testing.T) {
		a, _, err := s.StartOrGet(ctx, "user:carol", chatbotID)
		require.NoError(t, err)
		b, _, err := s.StartOrGet(ctx, "user:carol", uuid.New())
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("invalid identity rejected", func(t *testing.T) {
		_, _, err := s.StartOrGet(ctx, "nobody", chatbotID)
		assert.ErrorIs(t, err, conversation.ErrInvalidIdentity)
	})

	t.Run("concurrent first contact converges", func(t *testing.T) {
		const goroutines = 8
		ids := make([]uuid.UUID, goroutines)
		var wg sync.WaitGroup
		for i := range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conv, _, err := s.StartOrGet(ctx, "session:race", chatbotID)
				assert.NoError(t, err)
				ids[i] = conv.ID
			}()
		}
		wg.Wait()
		for _, id := range ids[1:] {
			assert.Equal(t, ids[0], id)
		}
	})
}

func TestStoreAppendTurn(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := conversation.NewStore(pool, log.NewNop())
	ctx := context.Background()

	conv, _, err := s.StartOrGet(ctx, "user:alice", uuid.New())
	require.NoError(t, err)

	t.Run("both messages land with sources on the reply", func(t *testing.T) {
		userMsg, assistantMsg, err := s.AppendTurn(ctx, conv.ID,
			"what is the refund policy?",
			"Refunds apply within thirty days.",
			[]string{"doc:0001", "doc:0002"},
		)
		require.NoError(t, err)

		assert.Equal(t, conversation.RoleUser, userMsg.Role)
		assert.Equal(t, 1, userMsg.SequenceNumber)
		assert.Empty(t, userMsg.ChunkIDs)

		assert.Equal(t, conversation.RoleAssistant, assistantMsg.Role)
		assert.Equal(t, 2, assistantMsg.SequenceNumber)
		assert.Equal(t, []string{"doc:0001", "doc:0002"}, assistantMsg.ChunkIDs)

		got, err := s.Get(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.MessageCount)
		assert.NotNil(t, got.LastMessageAt)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		_, _, err := s.AppendTurn(ctx, uuid.New(), "hi", "hello", nil)
		assert.ErrorIs(t, err, conversation.ErrConversationNotFound)
	})

	t.Run("empty content rejected", func(t *testing.T) {
		_, _, err := s.AppendTurn(ctx, conv.ID, "", "hello", nil)
		assert.ErrorIs(t, err, conversation.ErrEmptyMessage)
		_, _, err = s.AppendTurn(ctx, conv.ID, "hi", "", nil)
		assert.ErrorIs(t, err, conversation.ErrEmptyMessage)
	})
}

func TestStoreAppendTurnConcurrent(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := conversation.NewStore(pool, log.NewNop())
	ctx := context.Background()

	conv, _, err := s.StartOrGet(ctx, "user:alice", uuid.New())
	require.NoError(t, err)

	const turns = 10
	var wg sync.WaitGroup
	for i := range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.AppendTurn(ctx, conv.ID,
				fmt.Sprintf("question %d", i),
				fmt.Sprintf("answer %d", i),
				nil,
			)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	messages, err := s.Messages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2*turns)

	// The row lock serializes turns: sequence numbers are gap-free and each
	// user message is directly followed by its reply.
	for i, m := range messages {
		assert.Equal(t, i+1, m.SequenceNumber)
		if i%2 == 0 {
			assert.Equal(t, conversation.RoleUser, m.Role)
		} else {
			assert.Equal(t, conversation.RoleAssistant, m.Role)
		}
	}

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*turns, got.MessageCount)
}

func TestStoreMessagesLimit(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := conversation.NewStore(pool, log.NewNop())
	ctx := context.Background()

	conv, _, err := s.StartOrGet(ctx, "user:alice", uuid.New())
	require.NoError(t, err)
	for i := range 3 {
		_, _, err := s.AppendTurn(ctx, conv.ID,
			fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), nil)
		require.NoError(t, err)
	}

	recent, err := s.Messages(ctx, conv.ID, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, 3, recent[0].SequenceNumber, "limit keeps the most recent messages")
	assert.Equal(t, 6, recent[3].SequenceNumber)
}

func TestStoreDelete(t *testing.T) {
	pool := testutil.StartPostgres(t)
	s := conversation.NewStore(pool, log.NewNop())
	ctx := context.Background()

	conv, _, err := s.StartOrGet(ctx, "user:alice", uuid.New())
	require.NoError(t, err)
	_, _, err = s.AppendTurn(ctx, conv.ID, "hi", "hello", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, conv.ID))

	_, err = s.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, conversation.ErrConversationNotFound)

	messages, err := s.Messages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages, "messages are removed with their conversation")

	assert.ErrorIs(t, s.Delete(ctx, conv.ID), conversation.ErrConversationNotFound)
}

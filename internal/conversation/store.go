package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docloom/docloom/internal/log"
)

// Querier is the database surface Store needs. *pgxpool.Pool satisfies it.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists conversations and messages. Safe for concurrent use.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a conversation store on the given database.
func NewStore(db Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

const conversationColumns = `id, identity, chatbot_id, message_count, last_message_at, created_at`

// StartOrGet returns the conversation for (identity, chatbot), creating it
// on first contact. Concurrent first requests converge on one row through
// the unique pair constraint. The second return value reports whether the
// conversation was created by this call.
func (s *Store) StartOrGet(ctx context.Context, identity string, chatbotID uuid.UUID) (Conversation, bool, error) {
	if err := ValidateIdentity(identity); err != nil {
		return Conversation{}, false, err
	}

	var conv Conversation
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, identity, chatbot_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity, chatbot_id) DO NOTHING
		RETURNING `+conversationColumns,
		uuid.New(), identity, chatbotID).
		Scan(&conv.ID, &conv.Identity, &conv.ChatbotID, &conv.MessageCount, &conv.LastMessageAt, &conv.CreatedAt)
	if err == nil {
		s.logger.Info("conversation started",
			"conversation_id", conv.ID,
			"chatbot_id", chatbotID,
		)
		return conv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, fmt.Errorf("start conversation: %w", err)
	}

	// Lost the insert race or the conversation already existed.
	err = s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE identity = $1 AND chatbot_id = $2`,
		identity, chatbotID).
		Scan(&conv.ID, &conv.Identity, &conv.ChatbotID, &conv.MessageCount, &conv.LastMessageAt, &conv.CreatedAt)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("get conversation: %w", err)
	}
	return conv, false, nil
}

// Get retrieves a conversation by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1`,
		id).
		Scan(&conv.ID, &conv.Identity, &conv.ChatbotID, &conv.MessageCount, &conv.LastMessageAt, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return conv, nil
}

// AppendTurn atomically appends a user message and the assistant reply.
// The conversation row is locked for the duration so concurrent turns
// serialize and sequence numbers stay gap-free. Either both messages land
// or neither does.
func (s *Store) AppendTurn(ctx context.Context, conversationID uuid.UUID, userContent, assistantContent string, chunkIDs []string) (Message, Message, error) {
	if userContent == "" || assistantContent == "" {
		return Message{}, Message{}, ErrEmptyMessage
	}
	if chunkIDs == nil {
		chunkIDs = []string{}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM conversations WHERE id = $1 FOR UPDATE`,
		conversationID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, Message{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("lock conversation %s: %w", conversationID, err)
	}

	var maxSeq int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0)
		FROM messages
		WHERE conversation_id = $1`,
		conversationID).Scan(&maxSeq)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("current sequence for %s: %w", conversationID, err)
	}

	userMsg, err := insertMessage(ctx, tx, conversationID, RoleUser, userContent, nil, maxSeq+1)
	if err != nil {
		return Message{}, Message{}, err
	}
	assistantMsg, err := insertMessage(ctx, tx, conversationID, RoleAssistant, assistantContent, chunkIDs, maxSeq+2)
	if err != nil {
		return Message{}, Message{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 2, last_message_at = now()
		WHERE id = $1`,
		conversationID,
	); err != nil {
		return Message{}, Message{}, fmt.Errorf("update conversation metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, Message{}, fmt.Errorf("commit turn: %w", err)
	}

	s.logger.Debug("turn appended",
		"conversation_id", conversationID,
		"sequence", assistantMsg.SequenceNumber,
		"sources", len(chunkIDs),
	)
	return userMsg, assistantMsg, nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID, role, content string, chunkIDs []string, seq int) (Message, error) {
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	msg := Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ChunkIDs:       chunkIDs,
		SequenceNumber: seq,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, chunk_ids, sequence_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		msg.ID, conversationID, role, content, chunkIDs, seq).
		Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert %s message at %d: %w", role, seq, err)
	}
	return msg, nil
}

// Messages returns a conversation's messages in sequence order. A positive
// limit returns only the most recent messages, still in ascending order.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, chunk_ids, sequence_number, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sequence_number`
	args := []any{conversationID}
	if limit > 0 {
		query = `
			SELECT * FROM (
				SELECT id, conversation_id, role, content, chunk_ids, sequence_number, created_at
				FROM messages
				WHERE conversation_id = $1
				ORDER BY sequence_number DESC
				LIMIT $2
			) recent ORDER BY sequence_number`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&m.ChunkIDs, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read message rows: %w", err)
	}
	return messages, nil
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, conversationID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	s.logger.Info("conversation deleted", "conversation_id", conversationID)
	return nil
}

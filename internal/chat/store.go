package chat

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
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists chatbots and model configurations. Safe for concurrent use.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a chatbot store on the given database.
func NewStore(db Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

const chatbotColumns = `id, owner_id, name, document_ids, llm_config_id, system_prompt,
	temperature, max_tokens, view_source_documents, visibility, created_at`

// CreateChatbot stores a new chatbot and returns it with generated fields.
func (s *Store) CreateChatbot(ctx context.Context, bot Chatbot) (Chatbot, error) {
	if bot.Name == "" {
		return Chatbot{}, ErrChatbotNameEmpty
	}
	if bot.ID == uuid.Nil {
		bot.ID = uuid.New()
	}
	if bot.DocumentIDs == nil {
		bot.DocumentIDs = []uuid.UUID{}
	}
	if bot.Visibility == "" {
		bot.Visibility = VisibilityPrivate
	}
	if bot.MaxTokens <= 0 {
		bot.MaxTokens = 2048
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO chatbots (id, owner_id, name, document_ids, llm_config_id, system_prompt,
			temperature, max_tokens, view_source_documents, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		bot.ID, bot.OwnerID, bot.Name, bot.DocumentIDs, bot.LLMConfigID, bot.SystemPrompt,
		bot.Temperature, bot.MaxTokens, bot.ViewSourceDocuments, bot.Visibility).
		Scan(&bot.CreatedAt)
	if err != nil {
		return Chatbot{}, fmt.Errorf("create chatbot: %w", err)
	}

	s.logger.Info("chatbot created",
		"chatbot_id", bot.ID,
		"documents", len(bot.DocumentIDs),
	)
	return bot, nil
}

// Chatbot retrieves a chatbot by ID.
func (s *Store) Chatbot(ctx context.Context, id uuid.UUID) (Chatbot, error) {
	var bot Chatbot
	err := s.db.QueryRow(ctx, `
		SELECT `+chatbotColumns+`
		FROM chatbots
		WHERE id = $1`,
		id).
		Scan(&bot.ID, &bot.OwnerID, &bot.Name, &bot.DocumentIDs, &bot.LLMConfigID, &bot.SystemPrompt,
			&bot.Temperature, &bot.MaxTokens, &bot.ViewSourceDocuments, &bot.Visibility, &bot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chatbot{}, fmt.Errorf("%w: %s", ErrChatbotNotFound, id)
	}
	if err != nil {
		return Chatbot{}, fmt.Errorf("get chatbot %s: %w", id, err)
	}
	return bot, nil
}

// ChatbotsByOwner lists an owner's chatbots, newest first.
func (s *Store) ChatbotsByOwner(ctx context.Context, ownerID string) ([]Chatbot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+chatbotColumns+`
		FROM chatbots
		WHERE owner_id = $1
		ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chatbots for %s: %w", ownerID, err)
	}
	defer rows.Close()

	bots := make([]Chatbot, 0)
	for rows.Next() {
		var bot Chatbot
		if err := rows.Scan(&bot.ID, &bot.OwnerID, &bot.Name, &bot.DocumentIDs, &bot.LLMConfigID,
			&bot.SystemPrompt, &bot.Temperature, &bot.MaxTokens, &bot.ViewSourceDocuments,
			&bot.Visibility, &bot.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chatbot row: %w", err)
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chatbot rows: %w", err)
	}
	return bots, nil
}

// SetDocuments replaces a chatbot's retrieval scope.
func (s *Store) SetDocuments(ctx context.Context, id uuid.UUID, documentIDs []uuid.UUID) error {
	if documentIDs == nil {
		documentIDs = []uuid.UUID{}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE chatbots SET document_ids = $2 WHERE id = $1`,
		id, documentIDs)
	if err != nil {
		return fmt.Errorf("set documents for chatbot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrChatbotNotFound, id)
	}
	return nil
}

// DeleteChatbot removes a chatbot. Conversations keep their history.
func (s *Store) DeleteChatbot(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chatbots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chatbot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrChatbotNotFound, id)
	}
	return nil
}

// CreateLLMConfig stores a model configuration.
func (s *Store) CreateLLMConfig(ctx context.Context, cfg LLMConfig) (LLMConfig, error) {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO llm_configs (id, owner_id, provider, model, api_key, base_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		cfg.ID, cfg.OwnerID, cfg.Provider, cfg.Model, cfg.APIKey, cfg.BaseURL).
		Scan(&cfg.CreatedAt)
	if err != nil {
		return LLMConfig{}, fmt.Errorf("create llm config: %w", err)
	}
	return cfg, nil
}

// LLMConfig retrieves a model configuration by ID.
func (s *Store) LLMConfig(ctx context.Context, id uuid.UUID) (LLMConfig, error) {
	var cfg LLMConfig
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, provider, model, api_key, base_url, created_at
		FROM llm_configs
		WHERE id = $1`,
		id).
		Scan(&cfg.ID, &cfg.OwnerID, &cfg.Provider, &cfg.Model, &cfg.APIKey, &cfg.BaseURL, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LLMConfig{}, fmt.Errorf("%w: %s", ErrLLMConfigNotFound, id)
	}
	if err != nil {
		return LLMConfig{}, fmt.Errorf("get llm config %s: %w", id, err)
	}
	return cfg, nil
}

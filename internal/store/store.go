package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages persistence with a PostgreSQL backend.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Ping verifies database connectivity (readiness probe).
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- users ---

const userColumns = `id, name, premium, credits_used, default_model_id, preferences, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Premium, &u.CreditsUsed, &u.DefaultModelID, &u.Preferences, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// CreateUser inserts a user record. Used by seeding and tests.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, premium, credits_used, default_model_id, preferences, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Premium, u.CreditsUsed, u.DefaultModelID, u.Preferences, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// AddCreditsUsed atomically increments a user's consumed credits.
func (s *Store) AddCreditsUsed(ctx context.Context, id uuid.UUID, delta int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET credits_used = credits_used + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("incrementing credits for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// --- models ---

const modelColumns = `id, slug, display_name, provider, model_id, capabilities, cost_weight, premium, enabled`

func scanModel(row pgx.Row) (*Model, error) {
	var m Model
	err := row.Scan(&m.ID, &m.Slug, &m.DisplayName, &m.Provider, &m.ModelID, &m.Capabilities, &m.CostWeight, &m.Premium, &m.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning model: %w", err)
	}
	return &m, nil
}

// GetModel retrieves a model by id.
func (s *Store) GetModel(ctx context.Context, id uuid.UUID) (*Model, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE id = $1`, id)
	return scanModel(row)
}

// GetModelBySlug retrieves a model by its catalog slug.
func (s *Store) GetModelBySlug(ctx context.Context, slug string) (*Model, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE slug = $1`, slug)
	return scanModel(row)
}

// ListModels returns all enabled catalog entries.
func (s *Store) ListModels(ctx context.Context) ([]*Model, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+modelColumns+` FROM models WHERE enabled ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// CreateModel inserts a catalog entry. Used by seeding and tests.
func (s *Store) CreateModel(ctx context.Context, m *Model) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO models (id, slug, display_name, provider, model_id, capabilities, cost_weight, premium, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Slug, m.DisplayName, m.Provider, m.ModelID, m.Capabilities, m.CostWeight, m.Premium, m.Enabled)
	if err != nil {
		return fmt.Errorf("inserting model: %w", err)
	}
	return nil
}

// --- chats ---

const chatColumns = `id, owner_id, title, public, status, parent_chat_id, parent_message_id, last_message_at, created_at`

func scanChat(row pgx.Row) (*Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Public, &c.Status, &c.ParentChatID, &c.ParentMessageID, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chat: %w", err)
	}
	return &c, nil
}

// CreateChat inserts a chat. Missing id/status/timestamps are filled in.
func (s *Store) CreateChat(ctx context.Context, c *Chat) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusSubmitted
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.LastMessageAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, owner_id, title, public, status, parent_chat_id, parent_message_id, last_message_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.OwnerID, c.Title, c.Public, c.Status, c.ParentChatID, c.ParentMessageID, c.LastMessageAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chat: %w", err)
	}
	s.logger.Debug("created chat", "id", c.ID, "owner", c.OwnerID)
	return nil
}

// GetChat retrieves a chat by id.
func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (*Chat, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id)
	return scanChat(row)
}

// ListChats returns a user's chats ordered by recency.
func (s *Store) ListChats(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE owner_id = $1 ORDER BY last_message_at DESC LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// UpdateChatStatus sets a chat's lifecycle status in one atomic statement.
func (s *Store) UpdateChatStatus(ctx context.Context, id uuid.UUID, status ChatStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("updating chat %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}
	return nil
}

// SetChatTitle sets a chat's title.
func (s *Store) SetChatTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("updating chat %s title: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}
	return nil
}

// DeleteChat removes a chat; owned messages cascade at the database level.
func (s *Store) DeleteChat(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}
	return nil
}

// --- messages ---

const messageColumns = `id, chat_id, owner_id, prompt, model_id, tool, files, stream_id, parts, content, error,
	prompt_tokens, completion_tokens, total_tokens, tool_cost, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ChatID, &m.OwnerID, &m.Prompt, &m.ModelID, &m.Tool, &m.Files, &m.StreamID,
		&m.Parts, &m.Content, &m.Error,
		&m.PromptTokens, &m.CompletionTokens, &m.TotalTokens, &m.ToolCost, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	return &m, nil
}

// CreateMessage inserts a message. The stream id is minted here, at insert
// time, exactly once per message, and never reused.
func (s *Store) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.StreamID == uuid.Nil {
		m.StreamID = uuid.New()
	}
	if m.Files == nil {
		m.Files = []string{}
	}
	m.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, owner_id, prompt, model_id, tool, files, stream_id, parts, content, error,
			prompt_tokens, completion_tokens, total_tokens, tool_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		m.ID, m.ChatID, m.OwnerID, m.Prompt, m.ModelID, m.Tool, m.Files, m.StreamID, m.Parts, m.Content, m.Error,
		m.PromptTokens, m.CompletionTokens, m.TotalTokens, m.ToolCost, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	s.logger.Debug("created message", "id", m.ID, "chat", m.ChatID, "stream", m.StreamID)
	return nil
}

// CopyMessagesUpTo copies every message of a chat created at or before
// cutoff into another chat, assigning the given owner. Copies get fresh
// ids and stream ids; original creation times are preserved so ordering
// is stable. Returns the number of messages copied.
func (s *Store) CopyMessagesUpTo(ctx context.Context, srcChatID, dstChatID, ownerID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, owner_id, prompt, model_id, tool, files, stream_id, parts, content, error,
			prompt_tokens, completion_tokens, total_tokens, tool_cost, created_at)
		 SELECT gen_random_uuid(), $2, $3, prompt, model_id, tool, files, gen_random_uuid(), parts, content, error,
			prompt_tokens, completion_tokens, total_tokens, tool_cost, created_at
		 FROM messages WHERE chat_id = $1 AND created_at <= $4`,
		srcChatID, dstChatID, ownerID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("copying messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetMessage retrieves a message by id.
func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// ListChatMessages returns a chat's messages oldest first.
func (s *Store) ListChatMessages(ctx context.Context, chatID uuid.UUID) ([]*Message, error) {
	return s.listMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = $1 ORDER BY created_at, id`, chatID)
}

// ListMessagesUpTo returns a chat's messages with creation time at or
// before cutoff, oldest first. Used when branching at a message.
func (s *Store) ListMessagesUpTo(ctx context.Context, chatID uuid.UUID, cutoff time.Time) ([]*Message, error) {
	return s.listMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = $1 AND created_at <= $2 ORDER BY created_at, id`,
		chatID, cutoff)
}

func (s *Store) listMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SetMessageParts persists the structured UI event sequence.
func (s *Store) SetMessageParts(ctx context.Context, id uuid.UUID, parts []byte) error {
	return s.updateMessage(ctx, id, `UPDATE messages SET parts = $2 WHERE id = $1`, parts)
}

// SetMessageContent persists the finalized plain text, independent of the
// structured parse (fallback if structured parsing fails later).
func (s *Store) SetMessageContent(ctx context.Context, id uuid.UUID, content string) error {
	return s.updateMessage(ctx, id, `UPDATE messages SET content = $2 WHERE id = $1`, content)
}

// SetMessageError marks the message as failed.
func (s *Store) SetMessageError(ctx context.Context, id uuid.UUID, msg string) error {
	return s.updateMessage(ctx, id, `UPDATE messages SET error = $2 WHERE id = $1`, msg)
}

// SetMessageUsage flushes the per-turn accounting onto the message row.
func (s *Store) SetMessageUsage(ctx context.Context, id uuid.UUID, promptTokens, completionTokens, totalTokens, toolCost int) error {
	return s.updateMessage(ctx, id,
		`UPDATE messages SET prompt_tokens = $2, completion_tokens = $3, total_tokens = $4, tool_cost = $5 WHERE id = $1`,
		promptTokens, completionTokens, totalTokens, toolCost)
}

func (s *Store) updateMessage(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("updating message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

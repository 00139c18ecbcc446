package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/huddle-chat/huddle/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL DEFAULT '',
			email TEXT UNIQUE NOT NULL,
			token_hash TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS assistants (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			model_provider TEXT NOT NULL,
			model_name TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
			max_tokens INTEGER NOT NULL DEFAULT 1024,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS channels (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			key_hash TEXT,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			message_count BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			channel_id UUID NOT NULL REFERENCES channels(id),
			author_id TEXT NOT NULL,
			author_type TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			mentions TEXT[] NOT NULL DEFAULT '{}',
			counts_toward_limit BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_users_token_hash ON users(token_hash);
		CREATE INDEX IF NOT EXISTS idx_channels_last_active ON channels(last_active_at);
		CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at DESC);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email, tokenHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, token_hash)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, token_hash, created_at
	`, name, email, tokenHash).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.TokenHash,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id, name, email, token_hash, created_at
		FROM users WHERE email = $1
	`, email))
}

// GetUserByTokenHash retrieves a user by API token hash.
func (s *PostgresStore) GetUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `
		SELECT id, name, email, token_hash, created_at
		FROM users WHERE token_hash = $1
	`, tokenHash))
}

func (s *PostgresStore) scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.TokenHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateAssistant creates a new assistant configuration, filling in the
// generated id and timestamp.
func (s *PostgresStore) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO assistants (name, system_prompt, model_provider, model_name, temperature, max_tokens, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, a.Name, a.SystemPrompt, a.ModelProvider, a.ModelName, a.Temperature, a.MaxTokens, a.CreatedBy).Scan(
		&a.ID,
		&a.CreatedAt,
	)
}

// GetAssistant retrieves an assistant configuration by ID.
func (s *PostgresStore) GetAssistant(ctx context.Context, id uuid.UUID) (*models.Assistant, error) {
	a := &models.Assistant{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, system_prompt, model_provider, model_name, temperature, max_tokens, created_by, created_at
		FROM assistants WHERE id = $1
	`, id).Scan(
		&a.ID,
		&a.Name,
		&a.SystemPrompt,
		&a.ModelProvider,
		&a.ModelName,
		&a.Temperature,
		&a.MaxTokens,
		&a.CreatedBy,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListAssistants retrieves assistant configurations with pagination.
func (s *PostgresStore) ListAssistants(ctx context.Context, limit, offset int) ([]models.Assistant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, system_prompt, model_provider, model_name, temperature, max_tokens, created_by, created_at
		FROM assistants
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assistants []models.Assistant
	for rows.Next() {
		var a models.Assistant
		err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.SystemPrompt,
			&a.ModelProvider,
			&a.ModelName,
			&a.Temperature,
			&a.MaxTokens,
			&a.CreatedBy,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		assistants = append(assistants, a)
	}
	return assistants, rows.Err()
}

// CreateChannel creates a new channel.
func (s *PostgresStore) CreateChannel(ctx context.Context, name string, isPrivate bool, keyHash string, createdBy *uuid.UUID) (*models.Channel, error) {
	ch := &models.Channel{}
	var keyHashPtr *string
	if keyHash != "" {
		keyHashPtr = &keyHash
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO channels (name, is_private, key_hash, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, is_private, created_by, created_at, last_active_at, message_count
	`, name, isPrivate, keyHashPtr, createdBy).Scan(
		&ch.ID,
		&ch.Name,
		&ch.IsPrivate,
		&ch.CreatedBy,
		&ch.CreatedAt,
		&ch.LastActiveAt,
		&ch.MessageCount,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// GetChannel retrieves a channel by ID.
func (s *PostgresStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	ch := &models.Channel{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_active_at, message_count
		FROM channels WHERE id = $1
	`, id).Scan(
		&ch.ID,
		&ch.Name,
		&ch.IsPrivate,
		&ch.CreatedBy,
		&ch.CreatedAt,
		&ch.LastActiveAt,
		&ch.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

// GetChannelKeyHash retrieves the key hash for a private channel.
func (s *PostgresStore) GetChannelKeyHash(ctx context.Context, id uuid.UUID) (string, error) {
	var keyHash *string
	err := s.pool.QueryRow(ctx, `
		SELECT key_hash FROM channels WHERE id = $1
	`, id).Scan(&keyHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if keyHash == nil {
		return "", nil
	}
	return *keyHash, nil
}

// ListChannels retrieves channels with pagination, most recently active first.
func (s *PostgresStore) ListChannels(ctx context.Context, limit, offset int) ([]models.Channel, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_active_at, message_count
		FROM channels
		ORDER BY last_active_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		err := rows.Scan(
			&ch.ID,
			&ch.Name,
			&ch.IsPrivate,
			&ch.CreatedBy,
			&ch.CreatedAt,
			&ch.LastActiveAt,
			&ch.MessageCount,
		)
		if err != nil {
			return nil, 0, err
		}
		channels = append(channels, ch)
	}
	return channels, total, rows.Err()
}

// IncrementMessageCount increments the message count and updates activity.
func (s *PostgresStore) IncrementMessageCount(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE channels
		SET message_count = message_count + 1, last_active_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// CreateMessage appends a message to the ledger, assigning a ULID and
// timestamp when unset.
func (s *PostgresStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	mentions := m.Mentions
	if mentions == nil {
		mentions = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, author_id, author_type, content, mentions, counts_toward_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ChannelID, m.AuthorID, m.AuthorType, m.Content, mentions, m.CountsTowardLimit, m.CreatedAt)
	return err
}

// UpdateMessageContent replaces a message's content. The streaming path
// calls this exactly once per placeholder.
func (s *PostgresStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET content = $2 WHERE id = $1
	`, id, content)
	return err
}

// GetRecentMessages retrieves the newest messages in a channel, newest first.
func (s *PostgresStore) GetRecentMessages(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, channel_id, author_id, author_type, content, mentions, counts_toward_limit, created_at
		FROM messages
		WHERE channel_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, channelID, limit)
}

// GetChannelMessages retrieves messages newest first, optionally before a
// Unix-millisecond cursor (exclusive).
func (s *PostgresStore) GetChannelMessages(ctx context.Context, channelID uuid.UUID, limit int, before int64) ([]models.Message, error) {
	if before <= 0 {
		return s.GetRecentMessages(ctx, channelID, limit)
	}
	return s.queryMessages(ctx, `
		SELECT id, channel_id, author_id, author_type, content, mentions, counts_toward_limit, created_at
		FROM messages
		WHERE channel_id = $1 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $2
	`, channelID, limit, time.UnixMilli(before).UTC())
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.ChannelID,
			&m.AuthorID,
			&m.AuthorType,
			&m.Content,
			&m.Mentions,
			&m.CountsTowardLimit,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

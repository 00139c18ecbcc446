package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/huddle-chat/huddle/internal/models"
)

// SQLiteStore handles SQLite database operations, used as a development
// fallback when no Postgres is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/huddle.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/huddle.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. Mentions are stored as a
// JSON array since SQLite has no array type.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT UNIQUE NOT NULL,
		token_hash TEXT UNIQUE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS assistants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		system_prompt TEXT NOT NULL DEFAULT '',
		model_provider TEXT NOT NULL,
		model_name TEXT NOT NULL,
		temperature REAL NOT NULL DEFAULT 0.7,
		max_tokens INTEGER NOT NULL DEFAULT 1024,
		created_by TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_private INTEGER DEFAULT 0,
		key_hash TEXT,
		created_by TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_active_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		message_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		mentions TEXT NOT NULL DEFAULT '[]',
		counts_toward_limit INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_token_hash ON users(token_hash);
	CREATE INDEX IF NOT EXISTS idx_channels_last_active ON channels(last_active_at);
	CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, tokenHash string) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, token_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), name, email, tokenHash, now)
	if err != nil {
		return nil, err
	}

	return &models.User{ID: id, Name: name, Email: email, TokenHash: tokenHash, CreatedAt: now}, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, token_hash, created_at FROM users WHERE email = ?
	`, email))
}

// GetUserByTokenHash retrieves a user by API token hash.
func (s *SQLiteStore) GetUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, token_hash, created_at FROM users WHERE token_hash = ?
	`, tokenHash))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(&idStr, &user.Name, &user.Email, &user.TokenHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateAssistant creates a new assistant configuration.
func (s *SQLiteStore) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()

	var createdBy *string
	if a.CreatedBy != nil {
		v := a.CreatedBy.String()
		createdBy = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assistants (id, name, system_prompt, model_provider, model_name, temperature, max_tokens, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.Name, a.SystemPrompt, a.ModelProvider, a.ModelName, a.Temperature, a.MaxTokens, createdBy, a.CreatedAt)
	return err
}

// GetAssistant retrieves an assistant configuration by ID.
func (s *SQLiteStore) GetAssistant(ctx context.Context, id uuid.UUID) (*models.Assistant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, system_prompt, model_provider, model_name, temperature, max_tokens, created_by, created_at
		FROM assistants WHERE id = ?
	`, id.String())

	a, err := scanAssistant(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListAssistants retrieves assistant configurations with pagination.
func (s *SQLiteStore) ListAssistants(ctx context.Context, limit, offset int) ([]models.Assistant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, system_prompt, model_provider, model_name, temperature, max_tokens, created_by, created_at
		FROM assistants
		ORDER BY created_at
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assistants []models.Assistant
	for rows.Next() {
		a, err := scanAssistant(rows.Scan)
		if err != nil {
			return nil, err
		}
		assistants = append(assistants, *a)
	}
	return assistants, rows.Err()
}

func scanAssistant(scan func(...any) error) (*models.Assistant, error) {
	a := &models.Assistant{}
	var idStr string
	var createdBy *string
	err := scan(&idStr, &a.Name, &a.SystemPrompt, &a.ModelProvider, &a.ModelName, &a.Temperature, &a.MaxTokens, &createdBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if a.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if createdBy != nil {
		id, err := uuid.Parse(*createdBy)
		if err == nil {
			a.CreatedBy = &id
		}
	}
	return a, nil
}

// CreateChannel creates a new channel.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name string, isPrivate bool, keyHash string, createdBy *uuid.UUID) (*models.Channel, error) {
	id := uuid.New()
	now := time.Now().UTC()

	var keyHashPtr *string
	if keyHash != "" {
		keyHashPtr = &keyHash
	}
	var createdByStr *string
	if createdBy != nil {
		v := createdBy.String()
		createdByStr = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, name, is_private, key_hash, created_by, created_at, last_active_at, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, id.String(), name, isPrivate, keyHashPtr, createdByStr, now, now)
	if err != nil {
		return nil, err
	}

	return &models.Channel{
		ID:           id,
		Name:         name,
		IsPrivate:    isPrivate,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

// GetChannel retrieves a channel by ID.
func (s *SQLiteStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	ch := &models.Channel{}
	var idStr string
	var createdBy *string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_active_at, message_count
		FROM channels WHERE id = ?
	`, id.String()).Scan(&idStr, &ch.Name, &ch.IsPrivate, &createdBy, &ch.CreatedAt, &ch.LastActiveAt, &ch.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if ch.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if createdBy != nil {
		if cid, err := uuid.Parse(*createdBy); err == nil {
			ch.CreatedBy = &cid
		}
	}
	return ch, nil
}

// GetChannelKeyHash retrieves the key hash for a private channel.
func (s *SQLiteStore) GetChannelKeyHash(ctx context.Context, id uuid.UUID) (string, error) {
	var keyHash *string
	err := s.db.QueryRowContext(ctx, `
		SELECT key_hash FROM channels WHERE id = ?
	`, id.String()).Scan(&keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) ListChannels(ctx context.Context, limit, offset int) ([]models.Channel, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_private, created_by, created_at, last_active_at, message_count
		FROM channels
		ORDER BY last_active_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		var idStr string
		var createdBy *string
		err := rows.Scan(&idStr, &ch.Name, &ch.IsPrivate, &createdBy, &ch.CreatedAt, &ch.LastActiveAt, &ch.MessageCount)
		if err != nil {
			return nil, 0, err
		}
		if ch.ID, err = uuid.Parse(idStr); err != nil {
			return nil, 0, err
		}
		if createdBy != nil {
			if cid, err := uuid.Parse(*createdBy); err == nil {
				ch.CreatedBy = &cid
			}
		}
		channels = append(channels, ch)
	}
	return channels, total, rows.Err()
}

// IncrementMessageCount increments the message count and updates activity.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels
		SET message_count = message_count + 1, last_active_at = ?
		WHERE id = ?
	`, time.Now().UTC(), id.String())
	return err
}

// CreateMessage appends a message to the ledger.
func (s *SQLiteStore) CreateMessage(ctx context.Context, m *models.Message) error {
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
	mentionsJSON, err := json.Marshal(mentions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, author_id, author_type, content, mentions, counts_toward_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ChannelID.String(), m.AuthorID, m.AuthorType, m.Content, string(mentionsJSON), m.CountsTowardLimit, m.CreatedAt)
	return err
}

// UpdateMessageContent replaces a message's content.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ? WHERE id = ?
	`, content, id)
	return err
}

// GetRecentMessages retrieves the newest messages in a channel, newest first.
func (s *SQLiteStore) GetRecentMessages(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, channel_id, author_id, author_type, content, mentions, counts_toward_limit, created_at
		FROM messages
		WHERE channel_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, channelID.String(), limit)
}

// GetChannelMessages retrieves messages newest first, optionally before a
// Unix-millisecond cursor (exclusive).
func (s *SQLiteStore) GetChannelMessages(ctx context.Context, channelID uuid.UUID, limit int, before int64) ([]models.Message, error) {
	if before <= 0 {
		return s.GetRecentMessages(ctx, channelID, limit)
	}
	return s.queryMessages(ctx, `
		SELECT id, channel_id, author_id, author_type, content, mentions, counts_toward_limit, created_at
		FROM messages
		WHERE channel_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?
	`, channelID.String(), time.UnixMilli(before).UTC(), limit)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var channelIDStr, mentionsJSON string
		err := rows.Scan(&m.ID, &channelIDStr, &m.AuthorID, &m.AuthorType, &m.Content, &mentionsJSON, &m.CountsTowardLimit, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		if m.ChannelID, err = uuid.Parse(channelIDStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(mentionsJSON), &m.Mentions); err != nil {
			m.Mentions = nil
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/huddle-chat/huddle/internal/models"
)

// DataStore defines the interface for persistent storage of users,
// assistants, channels and the message ledger. Both PostgresStore and
// SQLiteStore implement this interface. Reads return (nil, nil) when the
// entity does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, email, tokenHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error)

	// Assistant operations
	CreateAssistant(ctx context.Context, a *models.Assistant) error
	GetAssistant(ctx context.Context, id uuid.UUID) (*models.Assistant, error)
	ListAssistants(ctx context.Context, limit, offset int) ([]models.Assistant, error)

	// Channel operations
	CreateChannel(ctx context.Context, name string, isPrivate bool, keyHash string, createdBy *uuid.UUID) (*models.Channel, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	GetChannelKeyHash(ctx context.Context, id uuid.UUID) (string, error)
	ListChannels(ctx context.Context, limit, offset int) ([]models.Channel, int, error)
	IncrementMessageCount(ctx context.Context, id uuid.UUID) error

	// Message ledger operations. CreateMessage assigns a ULID and
	// timestamp when unset. UpdateMessageContent is the single permitted
	// mutation of an existing row, used by the streaming path to land the
	// final text on its placeholder.
	CreateMessage(ctx context.Context, m *models.Message) error
	UpdateMessageContent(ctx context.Context, id, content string) error
	GetRecentMessages(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Message, error)
	GetChannelMessages(ctx context.Context, channelID uuid.UUID, limit int, before int64) ([]models.Message, error)
}

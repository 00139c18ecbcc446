package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel represents a chat channel. Private channels are gated by a
// bcrypt-hashed shared key.
type Channel struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	IsPrivate    bool       `json:"is_private"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	MessageCount int64      `json:"message_count"`
}

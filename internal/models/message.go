package models

import (
	"time"

	"github.com/google/uuid"
)

// Author types for messages.
const (
	AuthorHuman     = "human"
	AuthorAssistant = "assistant"
)

// Message is one entry in a channel's message ledger.
//
// Assistant-authored messages always carry empty Mentions and
// CountsTowardLimit=false, so a reply can never trigger further dispatch
// or billing. Streamed replies are created with empty Content and updated
// exactly once when the stream finishes.
type Message struct {
	ID                string    `json:"id"` // ULID
	ChannelID         uuid.UUID `json:"channel_id"`
	AuthorID          string    `json:"author_id"`
	AuthorType        string    `json:"author_type"` // human | assistant
	Content           string    `json:"content"`
	Mentions          []string  `json:"mentions,omitempty"` // assistant UUIDs
	CountsTowardLimit bool      `json:"counts_toward_limit"`
	CreatedAt         time.Time `json:"created_at"`
}

// Timestamp returns the message creation time in Unix milliseconds, the
// unit used for pagination cursors in the API.
func (m *Message) Timestamp() int64 {
	return m.CreatedAt.UnixMilli()
}

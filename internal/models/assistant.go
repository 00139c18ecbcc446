package models

import (
	"time"

	"github.com/google/uuid"
)

// Model provider identifiers. An assistant is pinned to exactly one.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Assistant is the configuration for one AI assistant. It is owned by the
// persistence layer and read-only to the completion pipeline.
type Assistant struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	SystemPrompt  string     `json:"system_prompt"`
	ModelProvider string     `json:"model_provider"` // openai | anthropic | google
	ModelName     string     `json:"model_name"`
	Temperature   float64    `json:"temperature"`
	MaxTokens     int        `json:"max_tokens"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// KnownProvider reports whether p is a provider this server can dispatch to.
func KnownProvider(p string) bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return true
	}
	return false
}

// Package llm implements the streaming multi-provider AI response
// pipeline: one adapter per vendor wire contract (OpenAI-, Anthropic- and
// Google-compatible), plus a completion service that dispatches to them.
//
// Adapters translate a generic {role, content} history plus an assistant
// configuration into a vendor HTTP request, and the vendor response or
// stream back into plain text. The rest of the server never sees a
// vendor-specific type.
package llm

import (
	"context"

	"github.com/huddle-chat/huddle/internal/models"
)

// Turn is one entry of a generic conversation history.
type Turn struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// Callbacks receive streaming events from an adapter.
//
// Exactly one of OnComplete or OnError fires per Stream invocation, after
// all OnToken calls. OnToken may fire zero or more times before it.
type Callbacks struct {
	OnToken    func(token string)
	OnComplete func(fullText string)
	OnError    func(err error)
}

// normalized returns a copy with nil members replaced by no-ops.
func (c Callbacks) normalized() Callbacks {
	if c.OnToken == nil {
		c.OnToken = func(string) {}
	}
	if c.OnComplete == nil {
		c.OnComplete = func(string) {}
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}

// Provider is a single vendor adapter.
type Provider interface {
	Name() string

	// Complete performs a non-streaming call and returns the full reply.
	Complete(ctx context.Context, assistant models.Assistant, userMsg string, history []Turn) (string, error)

	// Stream performs a streaming call, firing cb as tokens arrive. It
	// returns when the vendor stream ends; the returned error mirrors
	// what was passed to OnError (nil when OnComplete fired).
	Stream(ctx context.Context, assistant models.Assistant, userMsg string, history []Turn, cb Callbacks) error
}

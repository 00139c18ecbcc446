// Package chat resolves assistant mentions on inbound human messages and
// dispatches completion calls for each of them.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/huddle-chat/huddle/internal/llm"
	"github.com/huddle-chat/huddle/internal/metrics"
	"github.com/huddle-chat/huddle/internal/models"
)

// historyWindow bounds the conversation replay fed to an assistant.
const historyWindow = 20

// ErrAssistantNotFound is returned when a mentioned assistant id does not
// resolve to a stored configuration.
var ErrAssistantNotFound = errors.New("assistant not found")

// Completer is the non-streaming completion dependency.
type Completer interface {
	Complete(ctx context.Context, assistant models.Assistant, userMsg string, history []llm.Turn) (string, error)
}

// Store is the slice of the data store the orchestrator needs.
type Store interface {
	GetAssistant(ctx context.Context, id uuid.UUID) (*models.Assistant, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	GetRecentMessages(ctx context.Context, channelID uuid.UUID, limit int) ([]models.Message, error)
	IncrementMessageCount(ctx context.Context, id uuid.UUID) error
}

// Orchestrator fans an inbound human message out to its mentioned
// assistants, one at a time.
type Orchestrator struct {
	store       Store
	completions Completer
	logger      zerolog.Logger
}

func NewOrchestrator(store Store, completions Completer, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		completions: completions,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Result is the outcome of one dispatch run.
type Result struct {
	Replies []*models.Message // successfully persisted, in mention order
	Failed  int               // mentioned assistants that produced no reply
}

// Dispatch invokes every assistant mentioned by msg, strictly
// sequentially: assistant N+1's vendor call does not start until
// assistant N's reply write has completed. This bounds outbound LLM
// concurrency to one per inbound message and keeps reply order matching
// mention order.
//
// A failure of any single assistant (unknown id, provider error,
// persistence error) is logged and counted but never aborts the loop or
// the triggering message.
func (o *Orchestrator) Dispatch(ctx context.Context, msg *models.Message) Result {
	mentions := dedupe(msg.Mentions)
	if dropped := len(msg.Mentions) - len(mentions); dropped > 0 {
		o.logger.Debug().
			Str("message_id", msg.ID).
			Int("dropped", dropped).
			Msg("duplicate mentions dropped")
	}

	var res Result
	for _, raw := range mentions {
		reply, provider, err := o.dispatchOne(ctx, msg, raw)
		if err != nil {
			res.Failed++
			metrics.AssistantFailures.WithLabelValues(provider, llm.ErrorReason(err)).Inc()
			o.logger.Error().
				Err(err).
				Str("message_id", msg.ID).
				Str("assistant_id", raw).
				Msg("assistant invocation failed")
			continue
		}
		res.Replies = append(res.Replies, reply)
	}
	return res
}

// dispatchOne runs the full round trip for a single mentioned assistant:
// config lookup, history replay, completion call, reply persistence. The
// provider label is returned for metrics even on failure.
func (o *Orchestrator) dispatchOne(ctx context.Context, msg *models.Message, rawID string) (*models.Message, string, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, "unknown", fmt.Errorf("%w: invalid id %q", ErrAssistantNotFound, rawID)
	}

	assistant, err := o.store.GetAssistant(ctx, id)
	if err != nil {
		return nil, "unknown", fmt.Errorf("assistant lookup: %w", err)
	}
	if assistant == nil {
		return nil, "unknown", fmt.Errorf("%w: %s", ErrAssistantNotFound, rawID)
	}

	history, err := o.History(ctx, msg.ChannelID, msg.ID)
	if err != nil {
		return nil, assistant.ModelProvider, fmt.Errorf("history replay: %w", err)
	}

	text, err := o.completions.Complete(ctx, *assistant, msg.Content, history)
	if err != nil {
		return nil, assistant.ModelProvider, err
	}

	reply := &models.Message{
		ChannelID:         msg.ChannelID,
		AuthorID:          assistant.ID.String(),
		AuthorType:        models.AuthorAssistant,
		Content:           text,
		Mentions:          nil, // replies never trigger further dispatch
		CountsTowardLimit: false,
	}
	if err := o.store.CreateMessage(ctx, reply); err != nil {
		return nil, assistant.ModelProvider, fmt.Errorf("persist reply: %w", err)
	}
	metrics.MessagesPosted.WithLabelValues(models.AuthorAssistant).Inc()

	if err := o.store.IncrementMessageCount(ctx, msg.ChannelID); err != nil {
		o.logger.Warn().Err(err).Str("channel_id", msg.ChannelID.String()).Msg("activity bump failed")
	}
	return reply, assistant.ModelProvider, nil
}

// History replays the channel ledger as generic conversation turns,
// oldest-first, bounded to the most recent historyWindow messages. The
// store returns newest-first; the order is reversed here.
//
// The message identified by excludeID is skipped: the triggering message
// travels separately as the adapters' final user turn, and replaying it
// here would send it to the vendor twice.
func (o *Orchestrator) History(ctx context.Context, channelID uuid.UUID, excludeID string) ([]llm.Turn, error) {
	recent, err := o.store.GetRecentMessages(ctx, channelID, historyWindow)
	if err != nil {
		return nil, err
	}
	turns := make([]llm.Turn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		if excludeID != "" && recent[i].ID == excludeID {
			continue
		}
		role := "user"
		if recent[i].AuthorType == models.AuthorAssistant {
			role = "assistant"
		}
		turns = append(turns, llm.Turn{Role: role, Content: recent[i].Content})
	}
	return turns, nil
}

// dedupe removes duplicate mention ids while preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

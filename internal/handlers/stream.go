package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/huddle-chat/huddle/internal/api/middleware"
	"github.com/huddle-chat/huddle/internal/llm"
	"github.com/huddle-chat/huddle/internal/metrics"
	"github.com/huddle-chat/huddle/internal/models"
)

// StreamRequest represents the streaming completion request: one message
// addressed to one assistant.
type StreamRequest struct {
	AssistantID string `json:"assistant_id"`
	Message     string `json:"message"`
}

// streamEvent payloads. Every event on the wire is one of these.
type messageCreatedEvent struct {
	Message *models.Message `json:"message"`
	ReplyID string          `json:"reply_id"`
}

type tokenEvent struct {
	Token string `json:"token"`
}

type completeEvent struct {
	Message *models.Message `json:"message"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// StreamReply streams an assistant's reply over server-sent events
// (authenticated). The human message and an empty placeholder reply are
// persisted up front; tokens flush as they arrive, and the placeholder
// content is updated exactly once when the stream ends. On provider
// failure the tokens seen so far are kept as partial content.
func (h *Handler) StreamReply(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	channel, ok := h.authorizeChannel(w, r)
	if !ok {
		return
	}

	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		h.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLen {
		h.Error(w, http.StatusBadRequest, "message too long")
		return
	}

	assistantID, err := uuid.Parse(req.AssistantID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid assistant_id format")
		return
	}
	assistant, err := h.db.GetAssistant(r.Context(), assistantID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if assistant == nil {
		h.Error(w, http.StatusNotFound, "assistant not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// History is loaded before persisting the inbound message so the
	// user's text is not replayed twice; it travels as the userMsg
	// argument instead.
	history, err := h.orch.History(r.Context(), channel.ID, "")
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	msg := &models.Message{
		ChannelID:         channel.ID,
		AuthorID:          user.ID.String(),
		AuthorType:        models.AuthorHuman,
		Content:           req.Message,
		Mentions:          []string{assistant.ID.String()},
		CountsTowardLimit: true,
	}
	if err := h.db.CreateMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to persist message")
		return
	}
	metrics.MessagesPosted.WithLabelValues(models.AuthorHuman).Inc()

	if err := h.db.IncrementMessageCount(r.Context(), channel.ID); err != nil {
		h.logger.Warn().Err(err).Str("channel_id", channel.ID.String()).Msg("activity bump failed")
	}

	placeholder := &models.Message{
		ChannelID:  channel.ID,
		AuthorID:   assistant.ID.String(),
		AuthorType: models.AuthorAssistant,
	}
	if err := h.db.CreateMessage(r.Context(), placeholder); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create reply placeholder")
		return
	}

	// The lock pins the single permitted writer of the placeholder. Redis
	// is optional in development; without it the placeholder is only ever
	// reachable from this request anyway.
	if h.redis != nil {
		locked, err := h.redis.AcquireStreamLock(r.Context(), placeholder.ID)
		if err != nil || !locked {
			h.Error(w, http.StatusConflict, "reply already streaming")
			return
		}
		defer h.redis.ReleaseStreamLock(context.WithoutCancel(r.Context()), placeholder.ID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(event string, payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	emit("message_created", messageCreatedEvent{Message: msg, ReplyID: placeholder.ID})

	// Persistence after the stream ends must survive client disconnect,
	// hence the detached context.
	detached := context.WithoutCancel(r.Context())
	var partial strings.Builder

	cb := llm.Callbacks{
		OnToken: func(token string) {
			partial.WriteString(token)
			emit("token", tokenEvent{Token: token})
		},
		OnComplete: func(full string) {
			if err := h.db.UpdateMessageContent(detached, placeholder.ID, full); err != nil {
				h.logger.Error().Err(err).Str("message_id", placeholder.ID).Msg("final content write failed")
				emit("error", errorEvent{Error: "failed to persist reply"})
				return
			}
			placeholder.Content = full
			if err := h.db.IncrementMessageCount(detached, channel.ID); err != nil {
				h.logger.Warn().Err(err).Str("channel_id", channel.ID.String()).Msg("activity bump failed")
			}
			metrics.MessagesPosted.WithLabelValues(models.AuthorAssistant).Inc()
			emit("complete", completeEvent{Message: placeholder})
		},
		OnError: func(streamErr error) {
			// Keep whatever arrived before the failure.
			if partial.Len() > 0 {
				if err := h.db.UpdateMessageContent(detached, placeholder.ID, partial.String()); err != nil {
					h.logger.Error().Err(err).Str("message_id", placeholder.ID).Msg("partial content write failed")
				}
			}
			metrics.AssistantFailures.WithLabelValues(assistant.ModelProvider, llm.ErrorReason(streamErr)).Inc()
			h.logger.Error().
				Err(streamErr).
				Str("assistant_id", assistant.ID.String()).
				Str("message_id", placeholder.ID).
				Msg("stream failed")
			emit("error", errorEvent{Error: publicStreamError(streamErr)})
		},
	}

	// The returned error mirrors what OnError already sent to the client.
	_ = h.completions.Stream(r.Context(), *assistant, req.Message, history, cb)
}

// publicStreamError maps provider failures to client-safe strings. Raw
// vendor error bodies stay in the logs.
func publicStreamError(err error) string {
	switch llm.ErrorReason(err) {
	case "auth":
		return "provider credentials missing or rejected"
	case "timeout":
		return "provider timed out"
	case "unsupported_provider":
		return "unsupported model provider"
	case "canceled":
		return "request canceled"
	default:
		return "provider request failed"
	}
}

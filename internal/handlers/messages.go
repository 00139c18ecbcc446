package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/huddle-chat/huddle/internal/api/middleware"
	"github.com/huddle-chat/huddle/internal/metrics"
	"github.com/huddle-chat/huddle/internal/models"
)

// Message bounds.
const (
	maxMessageLen = 8192
	maxMentions   = 10
)

// PostMessageRequest represents the post message request. Mentions are
// assistant ids to invoke in order.
type PostMessageRequest struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

// PostMessageResponse carries the persisted message plus any assistant
// replies produced by it.
type PostMessageResponse struct {
	Message *models.Message   `json:"message"`
	Replies []*models.Message `json:"replies,omitempty"`
	Failed  int               `json:"failed,omitempty"`
}

// PostMessage handles posting a message to a channel (authenticated).
// When the message mentions assistants, their replies are generated
// before the response returns, so the caller sees the full exchange.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	channel, ok := h.authorizeChannel(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxMessageLen {
		h.Error(w, http.StatusBadRequest, "content too long")
		return
	}
	if len(req.Mentions) > maxMentions {
		h.Error(w, http.StatusBadRequest, "too many mentions")
		return
	}
	for _, m := range req.Mentions {
		if _, err := uuid.Parse(m); err != nil {
			h.Error(w, http.StatusBadRequest, "mentions must be assistant ids")
			return
		}
	}

	msg := &models.Message{
		ChannelID:         channel.ID,
		AuthorID:          user.ID.String(),
		AuthorType:        models.AuthorHuman,
		Content:           req.Content,
		Mentions:          req.Mentions,
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

	res := h.orch.Dispatch(r.Context(), msg)

	h.JSON(w, http.StatusCreated, PostMessageResponse{
		Message: msg,
		Replies: res.Replies,
		Failed:  res.Failed,
	})
}

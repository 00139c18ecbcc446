package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/huddle-chat/huddle/internal/api/middleware"
	"github.com/huddle-chat/huddle/internal/models"
)

// Channel name validation: alphanumeric, hyphens, underscores, 1-50 chars
var channelNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// ChannelKeyHeader carries the shared key for private channels.
const ChannelKeyHeader = "X-Huddle-Channel-Key"

// CreateChannelRequest represents the channel creation request.
type CreateChannelRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	Key       string `json:"key,omitempty"` // Shared secret for private channels
}

// CreateChannelResponse represents the channel creation response.
type CreateChannelResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// ChannelInfo represents a channel in the list response.
type ChannelInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsPrivate    bool   `json:"is_private"`
	MessageCount int64  `json:"message_count"`
	LastActive   string `json:"last_active"`
}

// ChannelListResponse represents the channels list response.
type ChannelListResponse struct {
	Channels []ChannelInfo `json:"channels"`
	Total    int           `json:"total"`
}

// ChannelMessagesResponse represents the get channel messages response.
type ChannelMessagesResponse struct {
	Channel  ChannelInfo      `json:"channel"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// CreateChannel handles channel creation (authenticated).
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !channelNameRegex.MatchString(req.Name) {
		h.Error(w, http.StatusBadRequest, "name must be 1-50 characters, alphanumeric with hyphens and underscores only")
		return
	}

	var keyHash string
	if req.IsPrivate {
		if req.Key == "" || len(req.Key) < 16 {
			h.Error(w, http.StatusBadRequest, "private channels require key (min 16 chars)")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Key), bcrypt.DefaultCost)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to hash channel key")
			return
		}
		keyHash = string(hash)
	}

	channel, err := h.db.CreateChannel(r.Context(), req.Name, req.IsPrivate, keyHash, &user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create channel")
		return
	}

	h.JSON(w, http.StatusCreated, CreateChannelResponse{
		ID:        channel.ID.String(),
		Name:      channel.Name,
		IsPrivate: channel.IsPrivate,
	})
}

// ListChannels handles listing channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 100)
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	channels, total, err := h.db.ListChannels(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	infos := make([]ChannelInfo, len(channels))
	for i, c := range channels {
		infos[i] = channelInfo(&c)
	}

	h.JSON(w, http.StatusOK, ChannelListResponse{
		Channels: infos,
		Total:    total,
	})
}

// GetChannelMessages handles paging through a channel's message ledger,
// newest first.
func (h *Handler) GetChannelMessages(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.authorizeChannel(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50, 200)

	var before int64
	if b, err := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64); err == nil {
		before = b
	}

	// Fetch one extra row for the has_more check.
	messages, err := h.db.GetChannelMessages(r.Context(), channel.ID, limit+1, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	h.JSON(w, http.StatusOK, ChannelMessagesResponse{
		Channel:  channelInfo(channel),
		Messages: messages,
		HasMore:  hasMore,
	})
}

// authorizeChannel resolves the {id} URL param and, for private channels,
// verifies the shared key header against the stored bcrypt hash. On
// failure the response has already been written.
func (h *Handler) authorizeChannel(w http.ResponseWriter, r *http.Request) (*models.Channel, bool) {
	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return nil, false
	}

	channel, err := h.db.GetChannel(r.Context(), channelID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if channel == nil {
		h.Error(w, http.StatusNotFound, "channel not found")
		return nil, false
	}

	if channel.IsPrivate {
		providedKey := r.Header.Get(ChannelKeyHeader)
		if providedKey == "" {
			h.Error(w, http.StatusForbidden, "channel key required for private channels")
			return nil, false
		}

		keyHash, err := h.db.GetChannelKeyHash(r.Context(), channelID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return nil, false
		}

		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(providedKey)); err != nil {
			h.Error(w, http.StatusForbidden, "invalid channel key")
			return nil, false
		}
	}

	return channel, true
}

func channelInfo(c *models.Channel) ChannelInfo {
	return ChannelInfo{
		ID:           c.ID.String(),
		Name:         c.Name,
		IsPrivate:    c.IsPrivate,
		MessageCount: c.MessageCount,
		LastActive:   c.LastActiveAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// queryInt parses a positive integer query param with a default and cap.
func queryInt(r *http.Request, name string, def, max int) int {
	v := def
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			v = n
		}
	}
	if v > max {
		v = max
	}
	return v
}

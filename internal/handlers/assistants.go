package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/huddle-chat/huddle/internal/api/middleware"
	"github.com/huddle-chat/huddle/internal/models"
)

// Assistant validation bounds.
const (
	maxSystemPromptLen = 8192
	maxAssistantTokens = 32768
)

// CreateAssistantRequest represents the assistant creation request.
type CreateAssistantRequest struct {
	Name          string  `json:"name"`
	SystemPrompt  string  `json:"system_prompt"`
	ModelProvider string  `json:"model_provider"`
	ModelName     string  `json:"model_name"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
}

// AssistantListResponse represents the assistants list response.
type AssistantListResponse struct {
	Assistants []models.Assistant `json:"assistants"`
}

// CreateAssistant handles assistant creation (authenticated).
func (h *Handler) CreateAssistant(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateAssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !models.KnownProvider(req.ModelProvider) {
		h.Error(w, http.StatusBadRequest, "model_provider must be one of: openai, anthropic, google")
		return
	}
	if req.ModelName == "" {
		h.Error(w, http.StatusBadRequest, "model_name is required")
		return
	}
	if len(req.SystemPrompt) > maxSystemPromptLen {
		h.Error(w, http.StatusBadRequest, "system_prompt too long")
		return
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		h.Error(w, http.StatusBadRequest, "temperature must be between 0 and 2")
		return
	}
	if req.MaxTokens < 0 || req.MaxTokens > maxAssistantTokens {
		h.Error(w, http.StatusBadRequest, "max_tokens out of range")
		return
	}

	assistant := &models.Assistant{
		Name:          name,
		SystemPrompt:  req.SystemPrompt,
		ModelProvider: req.ModelProvider,
		ModelName:     req.ModelName,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		CreatedBy:     &user.ID,
	}
	if err := h.db.CreateAssistant(r.Context(), assistant); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create assistant")
		return
	}

	h.JSON(w, http.StatusCreated, assistant)
}

// GetAssistant handles fetching a single assistant configuration.
func (h *Handler) GetAssistant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid assistant ID format")
		return
	}

	assistant, err := h.db.GetAssistant(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if assistant == nil {
		h.Error(w, http.StatusNotFound, "assistant not found")
		return
	}

	h.JSON(w, http.StatusOK, assistant)
}

// ListAssistants handles listing assistant configurations.
func (h *Handler) ListAssistants(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	assistants, err := h.db.ListAssistants(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if assistants == nil {
		assistants = []models.Assistant{}
	}

	h.JSON(w, http.StatusOK, AssistantListResponse{Assistants: assistants})
}

package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/huddle-chat/huddle/internal/api/middleware"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterResponse represents the registration response. Token is the
// bearer credential for all authenticated endpoints; it is returned
// exactly once and only its hash is stored.
type RegisterResponse struct {
	ID    string `json:"id"`
	Token string `json:"token,omitempty"`
}

// Register handles user registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Email == "" || !isValidEmail(req.Email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	// Idempotent on email: re-registering an existing address returns the
	// stored id without minting a new token.
	existing, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.JSON(w, http.StatusOK, RegisterResponse{ID: existing.ID.String()})
		return
	}

	token, err := newToken()
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	user, err := h.db.CreateUser(r.Context(), name, req.Email, middleware.TokenHash(token))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:    user.ID.String(),
		Token: token,
	})
}

// newToken mints a 256-bit hex bearer token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

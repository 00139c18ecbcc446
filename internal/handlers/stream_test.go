package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/huddle-chat/huddle/internal/api/middleware"
	"github.com/huddle-chat/huddle/internal/chat"
	"github.com/huddle-chat/huddle/internal/llm"
	"github.com/huddle-chat/huddle/internal/models"
	"github.com/huddle-chat/huddle/internal/store"
)

// fakeStore stubs the slices of the data store the streaming path touches.
// The embedded interface panics on anything unexpected.
type fakeStore struct {
	store.DataStore
	channel   *models.Channel
	assistant *models.Assistant
	created   []*models.Message
	updates   map[string]string
}

func (s *fakeStore) GetChannel(_ context.Context, id uuid.UUID) (*models.Channel, error) {
	if s.channel != nil && s.channel.ID == id {
		return s.channel, nil
	}
	return nil, nil
}

func (s *fakeStore) GetAssistant(_ context.Context, id uuid.UUID) (*models.Assistant, error) {
	if s.assistant != nil && s.assistant.ID == id {
		return s.assistant, nil
	}
	return nil, nil
}

func (s *fakeStore) CreateMessage(_ context.Context, m *models.Message) error {
	m.ID = fmt.Sprintf("msg-%d", len(s.created))
	m.CreatedAt = time.Now().UTC()
	s.created = append(s.created, m)
	return nil
}

func (s *fakeStore) UpdateMessageContent(_ context.Context, id, content string) error {
	if s.updates == nil {
		s.updates = make(map[string]string)
	}
	s.updates[id] = content
	return nil
}

// GetRecentMessages mirrors the real stores: everything persisted so far
// comes back, newest-first.
func (s *fakeStore) GetRecentMessages(_ context.Context, channelID uuid.UUID, limit int) ([]models.Message, error) {
	var out []models.Message
	for i := len(s.created) - 1; i >= 0 && len(out) < limit; i-- {
		if s.created[i].ChannelID == channelID {
			out = append(out, *s.created[i])
		}
	}
	return out, nil
}

func (s *fakeStore) IncrementMessageCount(_ context.Context, _ uuid.UUID) error {
	return nil
}

// newStreamHarness wires a handler against a fake OpenAI endpoint and
// returns a router with an authenticated user pre-injected.
func newStreamHarness(t *testing.T, vendor http.HandlerFunc) (*chi.Mux, *fakeStore) {
	t.Helper()

	srv := httptest.NewServer(vendor)
	t.Cleanup(srv.Close)

	db := &fakeStore{
		channel: &models.Channel{ID: uuid.New(), Name: "general"},
		assistant: &models.Assistant{
			ID:            uuid.New(),
			Name:          "helper",
			SystemPrompt:  "You are terse.",
			ModelProvider: models.ProviderOpenAI,
			ModelName:     "gpt-4o",
			Temperature:   0.5,
			MaxTokens:     128,
		},
	}

	completions := llm.NewService(
		llm.Keys{OpenAI: "test-key"},
		llm.BaseURLs{OpenAI: srv.URL},
		time.Minute,
		zerolog.Nop(),
	)
	orch := chat.NewOrchestrator(db, completions, zerolog.Nop())
	h := NewHandler(db, nil, completions, orch, zerolog.Nop())

	user := &models.User{ID: uuid.New(), Name: "tester"}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserContextKey, user)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/channels/{id}/stream", h.StreamReply)
	r.Post("/channels/{id}/messages", h.PostMessage)
	return r, db
}

func streamRequest(db *fakeStore) *http.Request {
	body := fmt.Sprintf(`{"assistant_id":%q,"message":"hi there"}`, db.assistant.ID)
	req := httptest.NewRequest("POST", "/channels/"+db.channel.ID.String()+"/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStreamReplyFraming(t *testing.T) {
	router, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, streamRequest(db))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected no-cache, got %q", cc)
	}
	if conn := rec.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("expected keep-alive, got %q", conn)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatal("body must end with a blank line")
	}
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames (created, 3 tokens, complete), got %d:\n%s", len(frames), body)
	}

	if !strings.HasPrefix(frames[0], "event: message_created\ndata: {") {
		t.Errorf("bad first frame: %q", frames[0])
	}
	if !strings.Contains(frames[0], `"reply_id":"msg-1"`) {
		t.Errorf("message_created must carry the placeholder id: %q", frames[0])
	}

	wantTokens := []string{
		"event: token\ndata: {\"token\":\"Hel\"}",
		"event: token\ndata: {\"token\":\"lo\"}",
		"event: token\ndata: {\"token\":\"!\"}",
	}
	for i, want := range wantTokens {
		if frames[i+1] != want {
			t.Errorf("token frame %d = %q, want %q", i, frames[i+1], want)
		}
	}

	if !strings.HasPrefix(frames[4], "event: complete\ndata: {") {
		t.Errorf("bad terminal frame: %q", frames[4])
	}
	if !strings.Contains(frames[4], `"content":"Hello!"`) {
		t.Errorf("complete frame must carry the full text: %q", frames[4])
	}

	// Human message then placeholder, and exactly one content update.
	if len(db.created) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(db.created))
	}
	if db.created[0].AuthorType != models.AuthorHuman || !db.created[0].CountsTowardLimit {
		t.Error("human message invariants broken")
	}
	if db.created[1].AuthorType != models.AuthorAssistant || db.created[1].CountsTowardLimit {
		t.Error("placeholder invariants broken")
	}
	if len(db.updates) != 1 || db.updates["msg-1"] != "Hello!" {
		t.Errorf("expected exactly one final content write, got %v", db.updates)
	}
}

func TestStreamReplyProviderFailure(t *testing.T) {
	router, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "vendor down", http.StatusBadGateway)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, streamRequest(db))

	if rec.Code != http.StatusOK {
		t.Fatalf("failure after headers must still stream, got %d", rec.Code)
	}

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected created + error frames, got %d:\n%s", len(frames), body)
	}
	if !strings.HasPrefix(frames[0], "event: message_created\n") {
		t.Errorf("bad first frame: %q", frames[0])
	}
	if !strings.HasPrefix(frames[1], "event: error\ndata: {") {
		t.Errorf("bad terminal frame: %q", frames[1])
	}
	if strings.Contains(frames[1], "vendor down") {
		t.Error("raw vendor error body leaked to the client")
	}

	// No tokens arrived, so the placeholder keeps its empty content.
	if len(db.updates) != 0 {
		t.Errorf("expected no content writes, got %v", db.updates)
	}
}

func TestStreamReplyPartialKeptOnError(t *testing.T) {
	router, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, streamRequest(db))

	body := rec.Body.String()
	if !strings.Contains(body, "event: token\ndata: {\"token\":\"par\"}\n\n") {
		t.Fatalf("expected the delivered token frame, got:\n%s", body)
	}
	if !strings.Contains(body, "event: error\n") {
		t.Fatalf("expected an error frame, got:\n%s", body)
	}
	if strings.Contains(body, "event: complete\n") {
		t.Fatal("complete and error must be mutually exclusive")
	}
	if db.updates["msg-1"] != "par" {
		t.Errorf("expected partial content kept, got %v", db.updates)
	}
}

func TestStreamReplyUnknownAssistant(t *testing.T) {
	router, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	body := fmt.Sprintf(`{"assistant_id":%q,"message":"hi"}`, uuid.New())
	req := httptest.NewRequest("POST", "/channels/"+db.channel.ID.String()+"/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(db.created) != 0 {
		t.Error("nothing should persist when the assistant is unknown")
	}
}

func TestStreamReplyRequiresAuth(t *testing.T) {
	_, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	// Route without the user-injecting middleware.
	h := NewHandler(db, nil, nil, nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Post("/channels/{id}/stream", h.StreamReply)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, streamRequest(db))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

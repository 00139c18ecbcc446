package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/huddle-chat/huddle/internal/models"
)

func TestPostMessageWithMention(t *testing.T) {
	router, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"assistant says hi"}}]}`)
	})
	rec := httptest.NewRecorder()
	body := fmt.Sprintf(`{"content":"hello","mentions":[%q]}`, db.assistant.ID)
	req := httptest.NewRequest("POST", "/channels/"+db.channel.ID.String()+"/messages", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PostMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Failed != 0 {
		t.Fatalf("expected no failures, got %d", resp.Failed)
	}
	if len(resp.Replies) != 1 || resp.Replies[0].Content != "assistant says hi" {
		t.Fatalf("unexpected replies: %+v", resp.Replies)
	}
	if resp.Message == nil || !resp.Message.CountsTowardLimit {
		t.Fatal("human message must count toward the limit")
	}
	if resp.Replies[0].AuthorType != models.AuthorAssistant {
		t.Fatal("reply author type wrong")
	}

	// Human message persisted before the reply.
	if len(db.created) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(db.created))
	}
}

// The human message is persisted before dispatch, so the store already
// holds it when the history replay is built. The vendor must still see
// the user's text exactly once, as the final user turn.
func TestPostMessageSendsUserContentOnce(t *testing.T) {
	var captured struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	router, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode vendor body: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})

	rec := httptest.NewRecorder()
	body := fmt.Sprintf(`{"content":"hi there","mentions":[%q]}`, db.assistant.ID)
	req := httptest.NewRequest("POST", "/channels/"+db.channel.ID.String()+"/messages", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	seen := 0
	for _, m := range captured.Messages {
		if m.Role == "user" && m.Content == "hi there" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("user message must reach the vendor exactly once, saw it %d times in %+v", seen, captured.Messages)
	}
	last := captured.Messages[len(captured.Messages)-1]
	if last.Role != "user" || last.Content != "hi there" {
		t.Fatalf("user message must be the final turn, got %+v", last)
	}
}

func TestPostMessageValidation(t *testing.T) {
	router, db := newStreamHarness(t, func(w http.ResponseWriter, r *http.Request) {})

	cases := []struct {
		name string
		body string
	}{
		{"empty content", `{"content":"  "}`},
		{"bad mention", `{"content":"hi","mentions":["nope"]}`},
		{"not json", `{{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/channels/"+db.channel.ID.String()+"/messages", strings.NewReader(tc.body))
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
	if len(db.created) != 0 {
		t.Fatal("invalid requests must not persist messages")
	}
}

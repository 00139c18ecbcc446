package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/huddle-chat/huddle/internal/models"
)

func testAssistant(provider, model string) models.Assistant {
	return models.Assistant{
		Name:          "helper",
		SystemPrompt:  "You are terse.",
		ModelProvider: provider,
		ModelName:     model,
		Temperature:   0.7,
		MaxTokens:     256,
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return body
}

func TestIsReasoningModel(t *testing.T) {
	cases := []struct {
		model string
		want  bool
	}{
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
		{"o1", true},
		{"o1-preview", true},
		{"o3-mini", true},
		{"gpt-5.1", true},
		{"gpt-5.1-mini", true},
		{"claude-thinking-xl", true},
		{"gpt-3.5-turbo", false},
	}
	for _, tc := range cases {
		if got := isReasoningModel(tc.model); got != tc.want {
			t.Errorf("isReasoningModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func TestOpenAICompleteRequestShape(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hi"}}]}`)
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	text, err := p.Complete(context.Background(), testAssistant("openai", "gpt-4o"), "hello", []Turn{
		{Role: "user", Content: "earlier"},
		{Role: "assistant", Content: "reply"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "hi" {
		t.Fatalf("expected %q, got %q", "hi", text)
	}

	if _, ok := captured["temperature"]; !ok {
		t.Error("expected temperature for non-reasoning model")
	}
	if _, ok := captured["max_tokens"]; !ok {
		t.Error("expected max_tokens for non-reasoning model")
	}
	if _, ok := captured["max_completion_tokens"]; ok {
		t.Error("max_completion_tokens must be absent for non-reasoning model")
	}

	messages := captured["messages"].([]interface{})
	if len(messages) != 4 {
		t.Fatalf("expected system + 2 history + user = 4 messages, got %d", len(messages))
	}
	first := messages[0].(map[string]interface{})
	if first["role"] != "system" || first["content"] != "You are terse." {
		t.Errorf("unexpected system message: %v", first)
	}
	last := messages[3].(map[string]interface{})
	if last["role"] != "user" || last["content"] != "hello" {
		t.Errorf("unexpected final message: %v", last)
	}
}

func TestOpenAIReasoningModelRequestShape(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"thought"}}]}`)
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	if _, err := p.Complete(context.Background(), testAssistant("openai", "gpt-5.1"), "hello", nil); err != nil {
		t.Fatal(err)
	}

	if _, ok := captured["temperature"]; ok {
		t.Error("temperature must be absent for reasoning model")
	}
	if _, ok := captured["max_tokens"]; ok {
		t.Error("max_tokens must be absent for reasoning model")
	}
	if got, ok := captured["max_completion_tokens"]; !ok || got.(float64) != 256 {
		t.Errorf("expected max_completion_tokens=256, got %v", got)
	}
}

func TestOpenAICompleteMissingKey(t *testing.T) {
	p := newOpenAIProvider("", "http://unused.invalid")
	_, err := p.Complete(context.Background(), testAssistant("openai", "gpt-4o"), "hi", nil)
	if !errors.Is(err, ErrProviderAuth) {
		t.Fatalf("expected ErrProviderAuth, got %v", err)
	}
}

func TestOpenAICompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	_, err := p.Complete(context.Background(), testAssistant("openai", "gpt-4o"), "hi", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", httpErr.Status)
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	_, err := p.Complete(context.Background(), testAssistant("openai", "gpt-4o"), "hi", nil)
	if !errors.Is(err, ErrResponseShape) {
		t.Fatalf("expected ErrResponseShape, got %v", err)
	}
}

// collectCallbacks records every callback invocation for termination checks.
type collectCallbacks struct {
	tokens    []string
	completes []string
	errs      []error
}

func (c *collectCallbacks) callbacks() Callbacks {
	return Callbacks{
		OnToken:    func(tok string) { c.tokens = append(c.tokens, tok) },
		OnComplete: func(full string) { c.completes = append(c.completes, full) },
		OnError:    func(err error) { c.errs = append(c.errs, err) },
	}
}

// checkTerminal asserts exactly one terminal callback fired.
func (c *collectCallbacks) checkTerminal(t *testing.T, wantErr bool) {
	t.Helper()
	if wantErr {
		if len(c.errs) != 1 || len(c.completes) != 0 {
			t.Fatalf("expected exactly one OnError, got %d errors and %d completes", len(c.errs), len(c.completes))
		}
		return
	}
	if len(c.completes) != 1 || len(c.errs) != 0 {
		t.Fatalf("expected exactly one OnComplete, got %d completes and %d errors", len(c.completes), len(c.errs))
	}
}

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if body["stream"] != true {
			t.Error("expected stream=true in request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		io.WriteString(w, "data: not json at all\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	var c collectCallbacks
	if err := p.Stream(context.Background(), testAssistant("openai", "gpt-4o"), "hi", nil, c.callbacks()); err != nil {
		t.Fatal(err)
	}

	if len(c.tokens) != 2 || c.tokens[0] != "Hel" || c.tokens[1] != "lo" {
		t.Fatalf("unexpected tokens: %v", c.tokens)
	}
	c.checkTerminal(t, false)
	if c.completes[0] != "Hello" {
		t.Fatalf("expected full text %q, got %q", "Hello", c.completes[0])
	}
}

func TestOpenAIStreamEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	var c collectCallbacks
	if err := p.Stream(context.Background(), testAssistant("openai", "gpt-4o"), "hi", nil, c.callbacks()); err != nil {
		t.Fatal(err)
	}

	if len(c.tokens) != 0 {
		t.Fatalf("expected no tokens, got %v", c.tokens)
	}
	c.checkTerminal(t, false)
	if c.completes[0] != "" {
		t.Fatalf("expected empty full text, got %q", c.completes[0])
	}
}

func TestOpenAIStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	var c collectCallbacks
	err := p.Stream(context.Background(), testAssistant("openai", "gpt-4o"), "hi", nil, c.callbacks())
	if err == nil {
		t.Fatal("expected error")
	}
	c.checkTerminal(t, true)
	if len(c.tokens) != 0 {
		t.Fatalf("expected no tokens before HTTP error, got %v", c.tokens)
	}
}

func TestOpenAIStreamAbortMidway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Drop the connection without a terminator frame.
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	p := newOpenAIProvider("key", srv.URL)
	var c collectCallbacks
	err := p.Stream(context.Background(), testAssistant("openai", "gpt-4o"), "hi", nil, c.callbacks())
	if err == nil {
		t.Fatal("expected error from aborted stream")
	}
	if len(c.tokens) != 1 || c.tokens[0] != "par" {
		t.Fatalf("expected the delivered token to survive, got %v", c.tokens)
	}
	c.checkTerminal(t, true)
}

func TestOpenAITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"late"}}]}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := newOpenAIProvider("key", srv.URL)
	_, err := p.Complete(ctx, testAssistant("openai", "gpt-4o"), "hi", nil)
	if !errors.Is(err, ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
	if ErrorReason(err) != "timeout" {
		t.Fatalf("expected reason timeout, got %q", ErrorReason(err))
	}
}

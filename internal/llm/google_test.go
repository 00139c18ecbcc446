package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGoogleCompleteRequestShape(t *testing.T) {
	var captured map[string]interface{}
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		captured = decodeBody(t, r)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"pong"}]}}]}`)
	}))
	defer srv.Close()

	p := newGoogleProvider("gkey", srv.URL)
	text, err := p.Complete(context.Background(), testAssistant("google", "gemini-pro"), "ping", []Turn{
		{Role: "user", Content: "this history is not representable"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "pong" {
		t.Fatalf("expected %q, got %q", "pong", text)
	}

	if gotPath != "/v1beta/models/gemini-pro:generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "gkey" {
		t.Errorf("expected key query param, got %q", gotKey)
	}

	// The whole prompt collapses into a single text part: system prompt,
	// blank line, user message. History never appears.
	contents := captured["contents"].([]interface{})
	if len(contents) != 1 {
		t.Fatalf("expected exactly one content block, got %d", len(contents))
	}
	parts := contents[0].(map[string]interface{})["parts"].([]interface{})
	if len(parts) != 1 {
		t.Fatalf("expected exactly one part, got %d", len(parts))
	}
	got := parts[0].(map[string]interface{})["text"].(string)
	if got != "You are terse.\n\nping" {
		t.Fatalf("expected system + blank line + user, got %q", got)
	}
	if strings.Contains(got, "not representable") {
		t.Error("history leaked into the google request body")
	}

	genCfg := captured["generationConfig"].(map[string]interface{})
	if genCfg["temperature"].(float64) != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", genCfg["temperature"])
	}
	if genCfg["maxOutputTokens"].(float64) != 256 {
		t.Errorf("expected maxOutputTokens 256, got %v", genCfg["maxOutputTokens"])
	}
}

func TestGoogleStream(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		// Newline-delimited JSON objects, with blanks and garbage mixed in.
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"to"}]}}]}`+"\n")
		io.WriteString(w, "\n")
		io.WriteString(w, "not json\n")
		io.WriteString(w, `{"candidates":[]}`+"\n")
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ken"}]}}]}`+"\n")
	}))
	defer srv.Close()

	p := newGoogleProvider("gkey", srv.URL)
	var c collectCallbacks
	if err := p.Stream(context.Background(), testAssistant("google", "gemini-pro"), "hi", nil, c.callbacks()); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/v1beta/models/gemini-pro:streamGenerateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if len(c.tokens) != 2 || c.tokens[0] != "to" || c.tokens[1] != "ken" {
		t.Fatalf("unexpected tokens: %v", c.tokens)
	}
	c.checkTerminal(t, false)
	if c.completes[0] != "token" {
		t.Fatalf("expected full text %q, got %q", "token", c.completes[0])
	}
}

func TestGoogleCompleteMissingKey(t *testing.T) {
	p := newGoogleProvider("", "http://unused.invalid")
	_, err := p.Complete(context.Background(), testAssistant("google", "gemini-pro"), "hi", nil)
	if !errors.Is(err, ErrProviderAuth) {
		t.Fatalf("expected ErrProviderAuth, got %v", err)
	}
}

func TestGoogleCompleteNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	p := newGoogleProvider("gkey", srv.URL)
	_, err := p.Complete(context.Background(), testAssistant("google", "gemini-pro"), "hi", nil)
	if !errors.Is(err, ErrResponseShape) {
		t.Fatalf("expected ErrResponseShape, got %v", err)
	}
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testService() *Service {
	return NewService(Keys{OpenAI: "k", Anthropic: "k", Google: "k"}, BaseURLs{}, time.Minute, zerolog.Nop())
}

func TestServiceUnsupportedProviderComplete(t *testing.T) {
	svc := testService()
	a := testAssistant("mistral", "mistral-large")
	a.ModelProvider = "mistral"

	_, err := svc.Complete(context.Background(), a, "hi", nil)
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestServiceUnsupportedProviderStream(t *testing.T) {
	svc := testService()
	a := testAssistant("mistral", "mistral-large")
	a.ModelProvider = "mistral"

	var c collectCallbacks
	err := svc.Stream(context.Background(), a, "hi", nil, c.callbacks())
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	c.checkTerminal(t, true)
	if !errors.Is(c.errs[0], ErrUnsupportedProvider) {
		t.Fatalf("OnError got %v", c.errs[0])
	}
	if len(c.tokens) != 0 {
		t.Fatalf("expected no tokens, got %v", c.tokens)
	}
}

func TestServiceKnownProvidersRegistered(t *testing.T) {
	svc := testService()
	for _, name := range []string{"openai", "anthropic", "google"} {
		if _, err := svc.provider(name); err != nil {
			t.Errorf("provider %q not registered: %v", name, err)
		}
	}
}

func TestErrorReasonLabels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{ErrProviderAuth, "auth"},
		{ErrProviderTimeout, "timeout"},
		{ErrResponseShape, "shape"},
		{ErrUnsupportedProvider, "unsupported_provider"},
		{&HTTPError{Status: 500, Message: "x"}, "http"},
		{context.Canceled, "canceled"},
		{errors.New("mystery"), "other"},
	}
	for _, tc := range cases {
		if got := ErrorReason(tc.err); got != tc.want {
			t.Errorf("ErrorReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

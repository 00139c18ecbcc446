package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddle-chat/huddle/internal/metrics"
	"github.com/huddle-chat/huddle/internal/models"
)

// Keys holds the per-provider API keys read from the environment. An empty
// key is not an error here; it surfaces as ErrProviderAuth when an
// assistant pinned to that provider is invoked.
type Keys struct {
	OpenAI    string
	Anthropic string
	Google    string
}

// BaseURLs overrides the vendor endpoints, primarily for tests. Zero
// values mean the real vendor hosts.
type BaseURLs struct {
	OpenAI    string
	Anthropic string
	Google    string
}

// Service dispatches completion calls to the provider adapter selected by
// an assistant's configuration. It applies a bounded per-call timeout and
// records pipeline metrics; it never retries.
type Service struct {
	providers map[string]Provider
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewService builds a Service with all known provider adapters registered.
func NewService(keys Keys, urls BaseURLs, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		providers: map[string]Provider{
			models.ProviderOpenAI:    newOpenAIProvider(keys.OpenAI, urls.OpenAI),
			models.ProviderAnthropic: newAnthropicProvider(keys.Anthropic, urls.Anthropic),
			models.ProviderGoogle:    newGoogleProvider(keys.Google, urls.Google),
		},
		timeout: timeout,
		logger:  logger.With().Str("component", "llm").Logger(),
	}
}

func (s *Service) provider(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return p, nil
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Complete performs a non-streaming completion and returns the full reply
// text. Adapter errors propagate unchanged.
func (s *Service) Complete(ctx context.Context, assistant models.Assistant, userMsg string, history []Turn) (string, error) {
	p, err := s.provider(assistant.ModelProvider)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	text, err := p.Complete(ctx, assistant, userMsg, history)
	metrics.ProviderRequestDuration.WithLabelValues(p.Name(), "complete").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("provider", p.Name()).
			Str("model", assistant.ModelName).
			Msg("completion failed")
		return "", err
	}
	metrics.AssistantReplies.WithLabelValues(p.Name(), "complete").Inc()
	return text, nil
}

// Stream performs a streaming completion. Exactly one of cb.OnComplete or
// cb.OnError fires, after all cb.OnToken calls; an unknown provider value
// fires cb.OnError immediately.
func (s *Service) Stream(ctx context.Context, assistant models.Assistant, userMsg string, history []Turn, cb Callbacks) error {
	cb = cb.normalized()

	p, err := s.provider(assistant.ModelProvider)
	if err != nil {
		cb.OnError(err)
		return err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	counted := cb
	counted.OnToken = func(token string) {
		metrics.StreamTokens.WithLabelValues(p.Name()).Inc()
		cb.OnToken(token)
	}
	counted.OnComplete = func(full string) {
		metrics.AssistantReplies.WithLabelValues(p.Name(), "stream").Inc()
		cb.OnComplete(full)
	}

	start := time.Now()
	err = p.Stream(ctx, assistant, userMsg, history, counted)
	metrics.ProviderRequestDuration.WithLabelValues(p.Name(), "stream").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("provider", p.Name()).
			Str("model", assistant.ModelName).
			Msg("stream failed")
	}
	return err
}

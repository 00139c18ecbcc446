package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/huddle-chat/huddle/internal/models"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"

	// Anthropic requires max_tokens; used when an assistant leaves it unset.
	anthropicDefaultMaxTokens = 1024
)

type anthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newAnthropicProvider(apiKey, baseURL string) *anthropicProvider {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &anthropicProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (p *anthropicProvider) Name() string { return models.ProviderAnthropic }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model string `json:"model"`
	// The system prompt is a top-level field, not a message; Messages
	// holds only user/assistant turns.
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

func (p *anthropicProvider) buildRequest(a models.Assistant, userMsg string, history []Turn, stream bool) anthropicRequest {
	messages := make([]anthropicMessage, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, anthropicMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, anthropicMessage{Role: "user", Content: userMsg})

	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	temp := a.Temperature
	return anthropicRequest{
		Model:       a.ModelName,
		System:      a.SystemPrompt,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: &temp,
		Stream:      stream,
	}
}

func (p *anthropicProvider) post(ctx context.Context, payload anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(ctx, p.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func (p *anthropicProvider) Complete(ctx context.Context, a models.Assistant, userMsg string, history []Turn) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: %s", ErrProviderAuth, p.Name())
	}

	resp, err := p.post(ctx, p.buildRequest(a, userMsg, history, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrResponseShape, p.Name(), err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("%w: %s: empty content", ErrResponseShape, p.Name())
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (p *anthropicProvider) Stream(ctx context.Context, a models.Assistant, userMsg string, history []Turn, cb Callbacks) error {
	cb = cb.normalized()
	full, err := p.stream(ctx, a, userMsg, history, cb.OnToken)
	if err != nil {
		cb.OnError(err)
		return err
	}
	cb.OnComplete(full)
	return nil
}

// stream reads SSE frames discriminated by a type field. Only
// content_block_delta events carry text; every other event type
// (message_start, ping, message_stop, ...) is ignored.
func (p *anthropicProvider) stream(ctx context.Context, a models.Assistant, userMsg string, history []Turn, onToken func(string)) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: %s", ErrProviderAuth, p.Name())
	}

	resp, err := p.post(ctx, p.buildRequest(a, userMsg, history, true))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if event.Type != "content_block_delta" {
			continue
		}
		if token := event.Delta.Text; token != "" {
			full.WriteString(token)
			onToken(token)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", transportErr(ctx, p.Name(), err)
	}
	return full.String(), nil
}

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

const defaultOpenAIBaseURL = "https://api.openai.com"

type openAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenAIProvider(apiKey, baseURL string) *openAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (p *openAIProvider) Name() string { return models.ProviderOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	// Reasoning models reject temperature and rename the token cap, so
	// both fields are pointers and set conditionally.
	Temperature         *float64 `json:"temperature,omitempty"`
	MaxTokens           *int     `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int     `json:"max_completion_tokens,omitempty"`
	Stream              bool     `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// isReasoningModel reports whether the model identifier names a reasoning
// model. These reject the temperature field and take max_completion_tokens
// instead of max_tokens.
func isReasoningModel(model string) bool {
	return strings.Contains(model, "o1") ||
		strings.Contains(model, "o3") ||
		strings.HasPrefix(model, "gpt-5.1") ||
		strings.Contains(model, "thinking")
}

func (p *openAIProvider) buildRequest(a models.Assistant, userMsg string, history []Turn, stream bool) openAIRequest {
	messages := make([]openAIMessage, 0, len(history)+2)
	messages = append(messages, openAIMessage{Role: "system", Content: a.SystemPrompt})
	for _, t := range history {
		messages = append(messages, openAIMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: userMsg})

	req := openAIRequest{
		Model:    a.ModelName,
		Messages: messages,
		Stream:   stream,
	}
	maxTokens := a.MaxTokens
	if isReasoningModel(a.ModelName) {
		req.MaxCompletionTokens = &maxTokens
	} else {
		temp := a.Temperature
		req.Temperature = &temp
		req.MaxTokens = &maxTokens
	}
	return req
}

func (p *openAIProvider) post(ctx context.Context, payload openAIRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
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

func (p *openAIProvider) Complete(ctx context.Context, a models.Assistant, userMsg string, history []Turn) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: %s", ErrProviderAuth, p.Name())
	}

	resp, err := p.post(ctx, p.buildRequest(a, userMsg, history, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrResponseShape, p.Name(), err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: no choices", ErrResponseShape, p.Name())
	}
	return parsed.Choices[0].Message.Content, nil
}

func (p *openAIProvider) Stream(ctx context.Context, a models.Assistant, userMsg string, history []Turn, cb Callbacks) error {
	cb = cb.normalized()
	full, err := p.stream(ctx, a, userMsg, history, cb.OnToken)
	if err != nil {
		cb.OnError(err)
		return err
	}
	cb.OnComplete(full)
	return nil
}

// stream reads newline-delimited "data: {...}" SSE frames. A literal
// "data: [DONE]" terminates the stream; malformed JSON lines are skipped.
func (p *openAIProvider) stream(ctx context.Context, a models.Assistant, userMsg string, history []Turn, onToken func(string)) (string, error) {
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
		if data == "[DONE]" {
			break
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if token := chunk.Choices[0].Delta.Content; token != "" {
			full.WriteString(token)
			onToken(token)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", transportErr(ctx, p.Name(), err)
	}
	return full.String(), nil
}

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/huddle-chat/huddle/internal/models"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com"

type googleProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newGoogleProvider(apiKey, baseURL string) *googleProvider {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &googleProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (p *googleProvider) Name() string { return models.ProviderGoogle }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	Contents         []googleContent        `json:"contents"`
	GenerationConfig googleGenerationConfig `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

// buildRequest folds system prompt and user message into the single text
// block the Gemini API takes; there is no chat-role concept, so prior
// turns are not representable and are not sent.
func (p *googleProvider) buildRequest(a models.Assistant, userMsg string) googleRequest {
	return googleRequest{
		Contents: []googleContent{
			{Parts: []googlePart{{Text: a.SystemPrompt + "\n\n" + userMsg}}},
		},
		GenerationConfig: googleGenerationConfig{
			Temperature:     a.Temperature,
			MaxOutputTokens: a.MaxTokens,
		},
	}
}

// endpoint builds the model URL; non-streaming and streaming calls differ
// only in the method suffix.
func (p *googleProvider) endpoint(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s",
		p.baseURL, url.PathEscape(model), method, url.QueryEscape(p.apiKey))
}

func (p *googleProvider) post(ctx context.Context, endpoint string, payload googleRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal google request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
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

func (p *googleProvider) Complete(ctx context.Context, a models.Assistant, userMsg string, _ []Turn) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: %s", ErrProviderAuth, p.Name())
	}

	resp, err := p.post(ctx, p.endpoint(a.ModelName, "generateContent"), p.buildRequest(a, userMsg))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrResponseShape, p.Name(), err)
	}
	text, ok := candidateText(parsed)
	if !ok {
		return "", fmt.Errorf("%w: %s: no candidates", ErrResponseShape, p.Name())
	}
	return text, nil
}

func (p *googleProvider) Stream(ctx context.Context, a models.Assistant, userMsg string, history []Turn, cb Callbacks) error {
	cb = cb.normalized()
	full, err := p.stream(ctx, a, userMsg, cb.OnToken)
	if err != nil {
		cb.OnError(err)
		return err
	}
	cb.OnComplete(full)
	return nil
}

// stream reads the streamGenerateContent body: a sequence of JSON objects
// separated by newlines, not SSE-prefixed. Objects without candidate text
// and unparseable lines are skipped.
func (p *googleProvider) stream(ctx context.Context, a models.Assistant, userMsg string, onToken func(string)) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: %s", ErrProviderAuth, p.Name())
	}

	resp, err := p.post(ctx, p.endpoint(a.ModelName, "streamGenerateContent"), p.buildRequest(a, userMsg))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk googleResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if token, ok := candidateText(chunk); ok && token != "" {
			full.WriteString(token)
			onToken(token)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", transportErr(ctx, p.Name(), err)
	}
	return full.String(), nil
}

func candidateText(r googleResponse) (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return r.Candidates[0].Content.Parts[0].Text, true
}

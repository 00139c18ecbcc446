// Package huddle provides a client for the huddle team-chat API.
package huddle

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Client is a huddle API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	UserID     string
	Token      string
	HTTPClient *http.Client
}

// Config holds saved credentials.
type Config struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// NewClient creates a new huddle client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("HUDDLE_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".huddle")
	}

	c := &Client{
		BaseURL:   baseURL,
		ConfigDir: configDir,
		// No client-side timeout; streaming responses are open-ended.
		HTTPClient: &http.Client{},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads credentials from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "credentials.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.UserID = config.ID
	c.Token = config.Token
	return nil
}

// SaveConfig saves credentials to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{ID: c.UserID, Token: c.Token}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "credentials.json"), data, 0600)
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte, authed bool) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("huddle error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterResponse is the response from registration.
type RegisterResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Register creates a user and saves the credentials locally.
func (c *Client) Register(name, email string) (*RegisterResponse, error) {
	body, _ := json.Marshal(RegisterRequest{Name: name, Email: email})
	respBody, err := c.doRequest("POST", "/register", body, false)
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("email already registered, no token issued")
	}

	c.UserID = resp.ID
	c.Token = resp.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Channel represents a channel.
type Channel struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsPrivate    bool   `json:"is_private"`
	MessageCount int64  `json:"message_count"`
	LastActive   string `json:"last_active"`
}

// ChannelsResponse is the response from listing channels.
type ChannelsResponse struct {
	Channels []Channel `json:"channels"`
	Total    int       `json:"total"`
}

// ListChannels lists channels.
func (c *Client) ListChannels() (*ChannelsResponse, error) {
	respBody, err := c.doRequest("GET", "/channels", nil, false)
	if err != nil {
		return nil, err
	}

	var resp ChannelsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateChannelRequest is the request body for channel creation.
type CreateChannelRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	Key       string `json:"key,omitempty"`
}

// CreateChannel creates a channel.
func (c *Client) CreateChannel(name string, isPrivate bool, key string) (*Channel, error) {
	body, _ := json.Marshal(CreateChannelRequest{Name: name, IsPrivate: isPrivate, Key: key})
	respBody, err := c.doRequest("POST", "/channel", body, true)
	if err != nil {
		return nil, err
	}

	var resp Channel
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message represents a chat message.
type Message struct {
	ID         string   `json:"id"`
	ChannelID  string   `json:"channel_id"`
	AuthorID   string   `json:"author_id"`
	AuthorType string   `json:"author_type"`
	Content    string   `json:"content"`
	Mentions   []string `json:"mentions,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// MessagesResponse is the response from getting channel messages.
type MessagesResponse struct {
	Channel  Channel   `json:"channel"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// Messages retrieves messages from a channel, newest first.
func (c *Client) Messages(channelID string, limit int, before int64) (*MessagesResponse, error) {
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", channelID, limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}

	respBody, err := c.doRequest("GET", path, nil, false)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

// PostMessageResponse is the response from posting a message.
type PostMessageResponse struct {
	Message *Message  `json:"message"`
	Replies []Message `json:"replies,omitempty"`
	Failed  int       `json:"failed,omitempty"`
}

// PostMessage posts a message, optionally mentioning assistants by id.
func (c *Client) PostMessage(channelID, content string, mentions []string) (*PostMessageResponse, error) {
	body, _ := json.Marshal(PostMessageRequest{Content: content, Mentions: mentions})
	respBody, err := c.doRequest("POST", "/channels/"+channelID+"/messages", body, true)
	if err != nil {
		return nil, err
	}

	var resp PostMessageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamCallbacks receives server-sent events from a streaming reply.
// Nil members are skipped.
type StreamCallbacks struct {
	OnCreated  func(message *Message, replyID string)
	OnToken    func(token string)
	OnComplete func(message *Message)
	OnError    func(message string)
}

// StreamReply asks one assistant for a streamed reply in a channel and
// feeds the events to cb as they arrive. It returns once the stream has
// ended, with a non-nil error only for transport-level failures.
func (c *Client) StreamReply(ctx context.Context, channelID, assistantID, message string, cb StreamCallbacks) error {
	body, _ := json.Marshal(map[string]string{
		"assistant_id": assistantID,
		"message":      message,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/channels/"+channelID+"/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return fmt.Errorf("huddle error %d: %s", resp.StatusCode, errResp.Error)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dispatchEvent(event, []byte(strings.TrimPrefix(line, "data: ")), cb)
		}
	}
	return scanner.Err()
}

func dispatchEvent(event string, data []byte, cb StreamCallbacks) {
	switch event {
	case "message_created":
		if cb.OnCreated == nil {
			return
		}
		var payload struct {
			Message *Message `json:"message"`
			ReplyID string   `json:"reply_id"`
		}
		if json.Unmarshal(data, &payload) == nil {
			cb.OnCreated(payload.Message, payload.ReplyID)
		}
	case "token":
		if cb.OnToken == nil {
			return
		}
		var payload struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(data, &payload) == nil {
			cb.OnToken(payload.Token)
		}
	case "complete":
		if cb.OnComplete == nil {
			return
		}
		var payload struct {
			Message *Message `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			cb.OnComplete(payload.Message)
		}
	case "error":
		if cb.OnError == nil {
			return
		}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			cb.OnError(payload.Error)
		}
	}
}

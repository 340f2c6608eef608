// Package apiclient is the web client's HTTP client for the chat API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the chat API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("chat api status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat api status %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL. A zero timeout means
// requests wait as long as the server takes.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type RegisterResponse struct {
	Message    string `json:"message"`
	DebugToken string `json:"debug_token,omitempty"`
}

type User struct {
	Email string `json:"email"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type ConversationSummary struct {
	ID          string `json:"id"`
	CreatedAt   Time   `json:"created_at"`
	LastMessage string `json:"last_message"`
}

type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp Time   `json:"timestamp"`
}

type Conversation struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"user_email"`
	CreatedAt Time      `json:"created_at"`
	Messages  []Message `json:"messages"`
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Timestamp      Time   `json:"timestamp"`
}

// Register calls POST /register.
func (c *Client) Register(ctx context.Context, email string) (*RegisterResponse, error) {
	var out RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/register", "", map[string]string{"email": email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login calls POST /login.
func (c *Client) Login(ctx context.Context, email, token string) (*LoginResponse, error) {
	var out LoginResponse
	body := map[string]string{"email": email, "token": token}
	if err := c.do(ctx, http.MethodPost, "/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations calls GET /conversations.
func (c *Client) ListConversations(ctx context.Context, accessToken string) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/conversations", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation calls GET /conversations/{id}.
func (c *Client) GetConversation(ctx context.Context, accessToken, id string) (*Conversation, error) {
	var out Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat calls POST /chat. An empty conversation id starts a new conversation.
func (c *Client) Chat(ctx context.Context, accessToken string, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", accessToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation calls DELETE /conversations/{id}.
func (c *Client) DeleteConversation(ctx context.Context, accessToken, id string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), accessToken, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: detailOf(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// detailOf extracts a string "detail" from an error body. Structured details
// such as validation lists are not shown to users.
func detailOf(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &body) != nil || len(body.Detail) == 0 {
		return ""
	}
	var detail string
	if json.Unmarshal(body.Detail, &detail) != nil {
		return ""
	}
	return detail
}

// Package exchangelog is the HTTP client for the server-side exchange log
// and the account endpoints the chat client needs.
package exchangelog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/locale"
	"github.com/transport-university/chatbot/backend/internal/model/user"
)

const (
	defaultTimeout = 60 * time.Second

	opSend = "send"
)

// Client talks to the chat backend.
type Client struct {
	baseURL  string
	http     *http.Client
	language string
	logger   *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLanguage sets the Accept-Language header sent with every request.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the backend at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts one user message and returns the stored exchange's reply.
func (c *Client) Send(ctx context.Context, token, text string) (chat.SendResponse, error) {
	var out chat.SendResponse
	err := c.do(ctx, opSend, http.MethodPost, "/api/chat/send", token, chat.SendRequest{Message: text, Role: "user"}, &out)
	return out, err
}

// FetchHistory returns one page of exchanges, oldest first. Offset counts
// back from the newest exchange.
func (c *Client) FetchHistory(ctx context.Context, token string, limit, offset int) (chat.HistoryPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out chat.HistoryPage
	err := c.do(ctx, "fetch history", http.MethodGet, "/api/chat/history?"+q.Encode(), token, nil, &out)
	return out, err
}

// DeleteExchange removes one exchange owned by the token's user.
func (c *Client) DeleteExchange(ctx context.Context, token string, id int64) error {
	path := "/api/chat/history/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "delete exchange", http.MethodDelete, path, token, nil, nil)
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req user.RegisterRequest) (user.Public, error) {
	var out user.Public
	err := c.do(ctx, "register", http.MethodPost, "/api/auth/register", "", req, &out)
	return out, err
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (user.Token, error) {
	var out user.Token
	err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", "", user.LoginRequest{Username: username, Password: password}, &out)
	return out, err
}

// Me returns the account behind a token.
func (c *Client) Me(ctx context.Context, token string) (user.Public, error) {
	var out user.Public
	err := c.do(ctx, "me", http.MethodGet, "/api/auth/me", token, nil, &out)
	return out, err
}

// Catalog fetches the server's sentences for the client's language.
func (c *Client) Catalog(ctx context.Context) (locale.Catalog, error) {
	var out locale.Catalog
	err := c.do(ctx, "catalog", http.MethodGet, "/api/locales/current", "", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("exchangelog request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Error
		if msg == "" {
			msg = apiErr.Detail
		}
		return &ServerError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServerError{Op: op, Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

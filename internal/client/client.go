// Package client talks to a running wishlist server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
	"github.com/oss-wishlist/wishlist/internal/workflow"
)

// RepositoryTimeout caps the repository listing call.
const RepositoryTimeout = 10 * time.Second

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

// Client implements workflow.API over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

var _ workflow.API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger for diagnostics such as malformed responses.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// New returns a client for the server at baseURL. token is the session id
// sent as a bearer token; it may be empty for anonymous calls.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a failure reported by the server.
type APIError struct {
	Status  int
	Message string
	Field   string
	Details any
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server returned %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// FieldPath returns the form field the failure refers to, if any.
func (e *APIError) FieldPath() string { return e.Field }

// UserMessage returns the server's message for display.
func (e *APIError) UserMessage() string { return e.Message }

// FriendlyField maps a server field path to its display label.
func FriendlyField(field string) string {
	return submission.FriendlyField(field)
}

// envelope is the common shape of write responses.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Issue   json.RawMessage `json:"issue"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
	Details any             `json:"details"`
}

// Session reports the identity behind the token.
func (c *Client) Session(ctx context.Context) (*wishlist.SessionInfo, error) {
	var out wishlist.SessionInfo
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Repositories lists the authenticated user's repositories.
func (c *Client) Repositories(ctx context.Context) ([]wishlist.RepositoryCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, RepositoryTimeout)
	defer cancel()

	var out struct {
		Repositories []wishlist.RepositoryCandidate `json:"repositories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/repositories", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Repositories, nil
}

// CheckExisting looks up wishlists for many repository URLs at once.
func (c *Client) CheckExisting(ctx context.Context, urls []string) (map[string]wishlist.ExistenceResult, error) {
	body := map[string]any{"repositoryUrls": urls}
	out := make(map[string]wishlist.ExistenceResult)
	if err := c.do(ctx, http.MethodPost, "/api/wishlists/check", nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Wishlist fetches a stored wishlist, bypassing every HTTP cache.
func (c *Client) Wishlist(ctx context.Context, number int) (*wishlist.StoredRecord, error) {
	q := url.Values{}
	q.Set("_", strconv.FormatInt(c.now().UnixNano(), 10))
	headers := http.Header{}
	headers.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	headers.Set("Pragma", "no-cache")

	var out wishlist.StoredRecord
	path := "/api/wishlists/" + strconv.Itoa(number) + "?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, headers, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit creates or updates a wishlist.
func (c *Client) Submit(ctx context.Context, p *submission.Payload) (*wishlist.SubmitResult, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/wishlists", nil, p, &env); err != nil {
		return nil, err
	}
	if env.Success == nil || !*env.Success {
		return nil, envelopeError(http.StatusOK, env)
	}
	var out wishlist.SubmitResult
	if err := c.decode(env.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close closes a wishlist. Closing an already-closed wishlist succeeds.
func (c *Client) Close(ctx context.Context, number int) (*wishlist.CloseResult, error) {
	var env envelope
	body := map[string]any{"issueNumber": number}
	if err := c.do(ctx, http.MethodPost, "/api/wishlists/close", nil, body, &env); err != nil {
		return nil, err
	}
	if env.Success == nil || !*env.Success {
		return nil, envelopeError(http.StatusOK, env)
	}
	out := wishlist.CloseResult{}
	if err := c.decode(env.Issue, &out.Issue); err != nil {
		return nil, err
	}
	if len(env.Data) > 0 {
		var extra struct {
			AlreadyClosed bool `json:"alreadyClosed"`
		}
		_ = json.Unmarshal(env.Data, &extra)
		out.AlreadyClosed = extra.AlreadyClosed
	}
	return &out, nil
}

// do sends one request and decodes a 2xx JSON body into out.
// Non-2xx replies become *APIError.
func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		if json.Unmarshal(raw, &env) != nil {
			c.logger.Error("undecodable error response",
				zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return envelopeError(resp.StatusCode, env)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error("malformed response",
			zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return fmt.Errorf("%s %s: %w", method, path, workflow.ErrMalformedResponse)
	}
	return nil
}

func (c *Client) decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		c.logger.Error("response missing payload")
		return workflow.ErrMalformedResponse
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error("malformed response payload", zap.ByteString("body", raw))
		return workflow.ErrMalformedResponse
	}
	return nil
}

func envelopeError(status int, env envelope) *APIError {
	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg, Field: env.Field, Details: env.Details}
}

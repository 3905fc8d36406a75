// Package httpapi implements the remote service ports over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

const DefaultTimeout = 30 * time.Second

// Client is the shared transport for the service clients. Cookies persist
// across calls so the refresh session survives between requests.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens ports.TokenSource
	logger *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the instrumented default client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client rooted at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Jar:       jar,
			Timeout:   DefaultTimeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UseTokens sets where bearer tokens come from. It is separate from New
// because the token source itself usually depends on this client.
func (c *Client) UseTokens(tokens ports.TokenSource) {
	c.tokens = tokens
}

// HTTPError is a non-2xx response
type HTTPError struct {
	Status int
	Code   string
	Reason string
}

func (e *HTTPError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Reason, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Code, e.Status)
}

// errorBody covers the error shapes the services answer with
type errorBody struct {
	MessageCode string `json:"messageCode"`
	Error       string `json:"error"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
	token  string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// doWithToken sends r authenticated with an explicit access token
func (c *Client) doWithToken(ctx context.Context, r request, token string, out any) error {
	r.auth = false
	r.token = token
	return c.do(ctx, r, out)
}

// do sends r and decodes a 2xx body into out. Non-2xx responses become *HTTPError.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth {
		if c.tokens == nil {
			return core.ErrInvalidToken
		}
		cred, ok := c.tokens.GetValidAccessToken(ctx)
		if !ok {
			return core.ErrTokenExpired
		}
		r.token = cred.Token
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("Service request failed",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("status", resp.StatusCode))
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) *HTTPError {
	e := &HTTPError{Status: status, Code: http.StatusText(status)}
	var b errorBody
	if json.Unmarshal(data, &b) != nil {
		return e
	}
	switch {
	case b.MessageCode != "":
		e.Code = b.MessageCode
	case b.Error != "":
		e.Code = b.Error
	}
	e.Reason = b.Reason
	if e.Reason == "" {
		e.Reason = b.Message
	}
	return e
}

// serviceError maps a failed call onto the core error vocabulary
func serviceError(err error) error {
	var he *HTTPError
	if !errors.As(err, &he) {
		return err
	}
	return &core.ServiceError{Status: he.Status, Code: he.Code}
}

// Package client sends tenant-scoped resource calls with a fresh bearer
// token and retries a rejected call once after a refresh.
package client

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

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-access/internal/config"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HeaderTenantID  = "x-tenant-id"
	HeaderRequestID = "x-request-id"
)

// TokenProvider is the part of the refresh coordinator the client needs.
type TokenProvider interface {
	EnsureFresh(ctx context.Context, window time.Duration) (token.Token, error)
	RefreshRejected(ctx context.Context, rejectedAccess string) (token.Token, error)
}

type Request struct {
	Method   string
	Path     string
	TenantID string
	Body     any
	Query    url.Values
}

// Response is a completed call. Non-2xx statuses other than a final 401
// are returned here untouched.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Decode unmarshals the body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokens        TokenProvider
	refreshWindow time.Duration
	logger        zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRefreshWindow sets how close to expiry a token is renewed before use.
func WithRefreshWindow(window time.Duration) Option {
	return func(c *Client) {
		c.refreshWindow = window
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, tokens TokenProvider, options ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tokens:        tokens,
		refreshWindow: config.DefaultRefreshWindow,
		logger:        log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Do sends req for req.TenantID. A 401 triggers one refresh and one retry;
// a second 401 returns ErrUnauthorized.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, errors.ErrTenantRequired
	}

	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	tok, err := c.tokens.EnsureFresh(ctx, c.refreshWindow)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req, body, tok, 0)
}

// GetJSON fetches path for tenantID into out.
func (c *Client) GetJSON(ctx context.Context, tenantID, path string, out any) error {
	return c.SendJSON(ctx, http.MethodGet, tenantID, path, nil, out)
}

// SendJSON sends in and decodes the reply into out. Non-2xx replies are
// returned as *errors.HTTPError.
func (c *Client) SendJSON(ctx context.Context, method, tenantID, path string, in, out any) error {
	resp, err := c.Do(ctx, Request{Method: method, Path: path, TenantID: tenantID, Body: in})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &errors.HTTPError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: resp.Body}
	}
	return resp.Decode(out)
}

func (c *Client) send(ctx context.Context, req Request, body []byte, tok token.Token, attempt int) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, req, body, tok)
	if err != nil {
		return nil, err
	}
	requestID := httpReq.Header.Get(HeaderRequestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("tenant", req.TenantID).
			Str("path", req.Path).
			Str("request_id", requestID).
			Msg("Client: transport failure")
		return nil, fmt.Errorf("%w: %s %s: %w", errors.ErrNetwork, httpReq.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", errors.ErrNetwork, req.Path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if attempt > 0 {
			c.logger.Info().Str("tenant", req.TenantID).Str("path", req.Path).Msg("Client: rejected after refresh")
			return nil, fmt.Errorf("%s %s: %w", httpReq.Method, req.Path, errors.ErrUnauthorized)
		}
		c.logger.Debug().Str("tenant", req.TenantID).Str("path", req.Path).Msg("Client: 401, refreshing and retrying")
		fresh, err := c.tokens.RefreshRejected(ctx, tok.AccessToken)
		if err != nil {
			return nil, err
		}
		return c.send(ctx, req, body, fresh, attempt+1)
	}

	c.logger.Debug().
		Str("tenant", req.TenantID).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Msg("Client: request complete")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		RequestID:  requestID,
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, body []byte, tok token.Token) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	httpReq.Header.Set(HeaderTenantID, req.TenantID)
	httpReq.Header.Set(HeaderRequestID, uuid.New().String())
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

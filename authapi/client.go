// Package authapi talks to the backend's /auth endpoints. It holds no token
// state; callers pass the bearer token explicitly.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-tenant-access/refresh"
	"github.com/jrsteele09/go-tenant-access/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	accesserrors "github.com/jrsteele09/go-tenant-access/internal/errors"
)

const (
	PathLogin          = "/auth/login"
	PathValidate       = "/auth/validate"
	PathRefreshToken   = "/auth/refresh-token"
	PathLogout         = "/auth/logout"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
	PathChangePassword = "/auth/change-password"
)

// LoginResult is the body of a successful /auth/login.
type LoginResult struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         users.Profile `json:"user"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ refresh.Refresher = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.call(ctx, PathLogin, "", map[string]string{"email": email, "password": password}, &result)
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.Wrap(accesserrors.ErrMalformedToken, "login response has no accessToken")
	}
	return &result, nil
}

// Validate returns the profile behind accessToken. Both {"user": {...}} and
// a bare profile body are accepted.
func (c *Client) Validate(ctx context.Context, accessToken string) (users.Profile, error) {
	var raw json.RawMessage
	if err := c.call(ctx, PathValidate, accessToken, struct{}{}, &raw); err != nil {
		return users.Profile{}, err
	}

	var wrapped struct {
		User *users.Profile `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return users.Profile{}, errors.Wrap(err, "failed to decode validate response")
	}
	if wrapped.User != nil {
		return *wrapped.User, nil
	}

	var profile users.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return users.Profile{}, errors.Wrap(err, "failed to decode validate response")
	}
	return profile, nil
}

// RefreshToken exchanges refreshToken for a new pair. The refresh token is
// sent both as the bearer credential and in the body.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	var result struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.call(ctx, PathRefreshToken, refreshToken, map[string]string{"refreshToken": refreshToken}, &result); err != nil {
		return "", "", err
	}
	if result.AccessToken == "" {
		return "", "", errors.Wrap(accesserrors.ErrMalformedToken, "refresh response has no accessToken")
	}
	return result.AccessToken, result.RefreshToken, nil
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.call(ctx, PathLogout, accessToken, struct{}{}, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.call(ctx, PathForgotPassword, "", map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, resetToken, password string) error {
	return c.call(ctx, PathResetPassword, "", map[string]string{"token": resetToken, "password": password}, nil)
}

func (c *Client) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	body := map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}
	return c.call(ctx, PathChangePassword, accessToken, body, nil)
}

// call POSTs payload to path and decodes a 2xx body into out. Non-2xx
// responses come back as *errors.HTTPError, transport failures wrap
// ErrNetwork.
func (c *Client) call(ctx context.Context, path, bearer string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %w", accesserrors.ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", accesserrors.ErrNetwork, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("Auth API: request rejected")
		return &accesserrors.HTTPError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodPost,
			Path:       path,
			Body:       body,
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}

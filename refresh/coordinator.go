// Package refresh funnels every token renewal, whether triggered by an
// approaching expiry or by a rejected call, through one outstanding refresh.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// Refresher exchanges a refresh token for a new pair. An empty
// newRefreshToken means the backend kept the old one.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, err error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (string, string, error)

func (f RefresherFunc) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	return f(ctx, refreshToken)
}

type Coordinator struct {
	store     *token.Store
	refresher Refresher
	group     singleflight.Group
	logger    zerolog.Logger
	refreshes atomic.Int64

	hooksMu   sync.RWMutex
	onStart   []func()
	onDone    []func(err error)
	onExpired []func(err error)
}

type Option func(*Coordinator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func New(store *token.Store, refresher Refresher, options ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// OnRefreshStart registers fn to run when a refresh call begins.
func (c *Coordinator) OnRefreshStart(fn func()) {
	c.hooksMu.Lock()
	c.onStart = append(c.onStart, fn)
	c.hooksMu.Unlock()
}

// OnRefreshDone registers fn to run after every refresh attempt.
func (c *Coordinator) OnRefreshDone(fn func(err error)) {
	c.hooksMu.Lock()
	c.onDone = append(c.onDone, fn)
	c.hooksMu.Unlock()
}

// OnExpired registers fn to run after a failed refresh has cleared the
// token store.
func (c *Coordinator) OnExpired(fn func(err error)) {
	c.hooksMu.Lock()
	c.onExpired = append(c.onExpired, fn)
	c.hooksMu.Unlock()
}

// Refreshes is the number of refresh calls made to the backend.
func (c *Coordinator) Refreshes() int64 {
	return c.refreshes.Load()
}

// EnsureFresh returns the stored token, refreshing it first when it
// expires within window.
func (c *Coordinator) EnsureFresh(ctx context.Context, window time.Duration) (token.Token, error) {
	t, ok := c.store.Get()
	if !ok {
		return token.Token{}, errors.ErrNoToken
	}
	if !t.ExpiresWithin(c.store.Now(), window) {
		return t, nil
	}
	c.logger.Debug().Time("expires_at", t.ExpiresAt).Msg("Refresh: token expiring, refreshing")
	return c.Refresh(ctx)
}

// RefreshRejected is called after the backend rejected rejectedAccess. If
// the store already holds a different access token another caller has
// refreshed in the meantime and that token is returned as is.
func (c *Coordinator) RefreshRejected(ctx context.Context, rejectedAccess string) (token.Token, error) {
	t, ok := c.store.Get()
	if !ok {
		return token.Token{}, errors.ErrNoToken
	}
	if t.AccessToken != rejectedAccess {
		return t, nil
	}
	return c.Refresh(ctx)
}

// Refresh renews the token. Concurrent callers share one backend call and
// all observe its result. ctx only bounds this caller's wait; the shared
// call carries on for the other waiters.
func (c *Coordinator) Refresh(ctx context.Context) (token.Token, error) {
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return token.Token{}, res.Err
		}
		return res.Val.(token.Token), nil
	case <-ctx.Done():
		return token.Token{}, ctx.Err()
	}
}

// TokenSource exposes the coordinator to oauth2-based transports. Each
// Token call goes through EnsureFresh.
func (c *Coordinator) TokenSource(ctx context.Context, window time.Duration) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, coordinator: c, window: window}
}

// refresh writes its result back only while the token it started from is
// still current. A logout or a new login during the exchange wins and the
// refreshed token is dropped.
func (c *Coordinator) refresh(ctx context.Context) (token.Token, error) {
	current, gen, ok := c.store.Snapshot()
	if !ok {
		return token.Token{}, errors.ErrNoToken
	}

	c.refreshes.Add(1)
	c.fireStart()
	c.logger.Info().Msg("Refresh: refreshing access token")

	t, err := c.exchange(ctx, current)
	if err != nil {
		expired := fmt.Errorf("%w: %w", errors.ErrSessionExpired, err)
		cleared, clearErr := c.store.ClearIfCurrent(gen)
		if clearErr != nil {
			c.logger.Err(clearErr).Msg("Refresh: failed to clear token store")
		}
		c.fireDone(expired)
		if !cleared {
			c.logger.Info().Err(err).Msg("Refresh: refresh failed after the session changed, leaving it alone")
			return token.Token{}, expired
		}
		c.logger.Err(err).Msg("Refresh: refresh failed, ending session")
		c.fireExpired(expired)
		return token.Token{}, expired
	}

	stored, err := c.store.SetIfCurrent(gen, t)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Refresh: refreshed token not persisted")
	}
	if !stored {
		replaced := fmt.Errorf("%w: session ended while refreshing", errors.ErrSessionExpired)
		c.logger.Info().Msg("Refresh: session changed during refresh, dropping refreshed token")
		c.fireDone(replaced)
		return token.Token{}, replaced
	}
	c.logger.Info().Time("expires_at", t.ExpiresAt).Msg("Refresh: access token refreshed")
	c.fireDone(nil)
	return t, nil
}

func (c *Coordinator) exchange(ctx context.Context, current token.Token) (token.Token, error) {
	if current.RefreshToken == "" {
		return token.Token{}, errors.Wrapf(errors.ErrNoToken, "no refresh token")
	}
	access, refreshToken, err := c.refresher.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return token.Token{}, err
	}
	if refreshToken == "" {
		refreshToken = current.RefreshToken
	}
	return token.Decode(access, refreshToken)
}

func (c *Coordinator) fireStart() {
	c.hooksMu.RLock()
	hooks := append([]func(){}, c.onStart...)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Coordinator) fireDone(err error) {
	c.hooksMu.RLock()
	hooks := append([]func(error){}, c.onDone...)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (c *Coordinator) fireExpired(err error) {
	c.hooksMu.RLock()
	hooks := append([]func(error){}, c.onExpired...)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

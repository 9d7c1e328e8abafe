package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-tenant-access/authapi"
	"github.com/jrsteele09/go-tenant-access/cache"
	"github.com/jrsteele09/go-tenant-access/internal/config"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/refresh"
	"github.com/jrsteele09/go-tenant-access/tenants"
	"github.com/jrsteele09/go-tenant-access/token"
	"github.com/jrsteele09/go-tenant-access/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AuthAPI is the subset of the /auth client the lifecycle drives.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*authapi.LoginResult, error)
	Validate(ctx context.Context, accessToken string) (users.Profile, error)
	Logout(ctx context.Context, accessToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, password string) error
	ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error
}

var _ AuthAPI = (*authapi.Client)(nil)

type Lifecycle struct {
	api           AuthAPI
	store         *token.Store
	coordinator   *refresh.Coordinator
	cache         *cache.Cache
	roles         users.RoleLookup
	refreshWindow time.Duration
	logger        zerolog.Logger

	mu      sync.RWMutex
	state   State
	session *Session

	subsMu    sync.Mutex
	subs      map[int]func(Event)
	nextSubID int
}

type Option func(*Lifecycle)

// WithRoleLookup sets the external role table consulted on tenant switch.
func WithRoleLookup(roles users.RoleLookup) Option {
	return func(l *Lifecycle) {
		l.roles = roles
	}
}

func WithRefreshWindow(window time.Duration) Option {
	return func(l *Lifecycle) {
		l.refreshWindow = window
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

// New wires the lifecycle to the coordinator's refresh hooks so that a
// failed refresh ends the session.
func New(api AuthAPI, store *token.Store, coordinator *refresh.Coordinator, c *cache.Cache, options ...Option) *Lifecycle {
	l := &Lifecycle{
		api:           api,
		store:         store,
		coordinator:   coordinator,
		cache:         c,
		refreshWindow: config.DefaultRefreshWindow,
		logger:        log.Logger,
		state:         Anonymous,
		subs:          make(map[int]func(Event)),
	}
	for _, opt := range options {
		opt(l)
	}

	coordinator.OnRefreshStart(func() {
		l.transitionFrom(Authenticated, Refreshing, "refresh started", nil)
	})
	coordinator.OnRefreshDone(func(err error) {
		if err == nil {
			l.transitionFrom(Refreshing, Authenticated, "refresh succeeded", nil)
		}
	})
	coordinator.OnExpired(func(err error) {
		l.Expire("refresh failed", err)
	})
	return l
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Current returns the active session, if any.
func (l *Lifecycle) Current() (Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.session == nil {
		return Session{}, false
	}
	return l.session.clone(), true
}

// Scope is the current session's tenant scope; empty when anonymous.
func (l *Lifecycle) Scope() tenants.Scope {
	s, ok := l.Current()
	if !ok {
		return tenants.NewScope()
	}
	return s.Scope()
}

// Subscribe registers fn for state transitions. fn runs synchronously on
// the goroutine that caused the transition. The returned func removes it.
func (l *Lifecycle) Subscribe(fn func(Event)) func() {
	l.subsMu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subs[id] = fn
	l.subsMu.Unlock()

	return func() {
		l.subsMu.Lock()
		delete(l.subs, id)
		l.subsMu.Unlock()
	}
}

// Login authenticates with the backend, stores the token pair and starts a
// session in the user's home tenant. It is only valid while anonymous; an
// existing session must be logged out first. Credentials the backend
// rejects with 400, 401 or 403 yield ErrInvalidCredentials.
func (l *Lifecycle) Login(ctx context.Context, email, password string) (Session, error) {
	if !l.transitionFrom(Anonymous, Authenticating, "login", nil) {
		return Session{}, errors.ErrAlreadyAuthenticated
	}
	l.cache.Clear()

	res, err := l.api.Login(ctx, email, password)
	if err != nil {
		switch errors.StatusCode(err) {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			err = fmt.Errorf("%w: %w", errors.ErrInvalidCredentials, err)
		}
		l.logger.Info().Err(err).Str("email", email).Msg("Session: login failed")
		l.clearStore()
		l.setState(Anonymous, "login failed", err, nil, true)
		return Session{}, err
	}

	t, err := token.Decode(res.AccessToken, res.RefreshToken)
	if err != nil {
		l.logger.Warn().Err(err).Str("email", email).Msg("Session: login returned an unusable token")
		l.clearStore()
		l.setState(Anonymous, "login returned an unusable token", err, nil, true)
		return Session{}, err
	}
	if err := l.store.Set(t); err != nil {
		l.logger.Warn().Err(err).Msg("Session: token not persisted")
	}

	s := newSession(res.User)
	l.setState(Authenticated, "login", nil, &s, false)
	l.logger.Info().Str("user", string(s.UserID)).Str("tenant", s.TenantID).Msg("Session: logged in")
	return s.clone(), nil
}

// Restore rehydrates a session from a persisted token by validating it with
// the backend. Any failure clears the token and leaves the lifecycle
// anonymous.
func (l *Lifecycle) Restore(ctx context.Context) (Session, error) {
	if _, ok := l.store.Get(); !ok {
		return Session{}, errors.ErrNoToken
	}
	l.setState(Authenticating, "restore", nil, nil, false)

	profile, err := l.validate(ctx)
	if err != nil {
		l.logger.Info().Err(err).Msg("Session: stored token rejected")
		l.clearStore()
		l.setState(Anonymous, "restore failed", err, nil, true)
		return Session{}, err
	}

	s := newSession(profile)
	l.setState(Authenticated, "restore", nil, &s, false)
	l.logger.Info().Str("user", string(s.UserID)).Str("tenant", s.TenantID).Msg("Session: restored")
	return s.clone(), nil
}

func (l *Lifecycle) validate(ctx context.Context) (users.Profile, error) {
	t, err := l.coordinator.EnsureFresh(ctx, l.refreshWindow)
	if err != nil {
		return users.Profile{}, err
	}
	profile, err := l.api.Validate(ctx, t.AccessToken)
	if errors.StatusCode(err) != http.StatusUnauthorized {
		return profile, err
	}
	if t, err = l.coordinator.RefreshRejected(ctx, t.AccessToken); err != nil {
		return users.Profile{}, err
	}
	return l.api.Validate(ctx, t.AccessToken)
}

// Expire force-ends the session: token and cache are cleared and
// subscribers are told why.
func (l *Lifecycle) Expire(reason string, cause error) {
	l.clearStore()
	l.cache.Clear()
	l.setState(Anonymous, reason, cause, nil, true)
	l.logger.Warn().Err(cause).Str("reason", reason).Msg("Session: expired")
}

// Logout tells the backend on a best-effort basis and always clears the
// local token, session and cache.
func (l *Lifecycle) Logout(ctx context.Context) {
	if t, ok := l.store.Get(); ok {
		if err := l.api.Logout(ctx, t.AccessToken); err != nil {
			l.logger.Warn().Err(err).Msg("Session: backend logout failed")
		}
	}
	l.clearStore()
	l.cache.Clear()
	l.setState(Anonymous, "logout", nil, nil, true)
	l.logger.Info().Msg("Session: logged out")
}

// SwitchTenant makes tenantID the active tenant. The tenant must be one of
// the session's memberships. With a role lookup configured and a non-empty
// requiredRole, a different role for the new tenant ends the session with
// ErrRoleMismatch.
func (l *Lifecycle) SwitchTenant(ctx context.Context, tenantID string, requiredRole users.RoleType) (Session, error) {
	s, ok := l.Current()
	if !ok {
		return Session{}, errors.ErrNotAuthenticated
	}
	if err := s.Scope().Check(tenantID); err != nil {
		return Session{}, err
	}

	role := s.Role
	if l.roles != nil {
		looked, err := l.roles.RoleFor(s.UserID, tenantID)
		if err != nil {
			return Session{}, fmt.Errorf("role lookup for tenant %s: %w", tenantID, err)
		}
		role = looked
	}
	if requiredRole != "" && role != requiredRole {
		err := fmt.Errorf("%w: tenant %s has role %q, want %q", errors.ErrRoleMismatch, tenantID, role, requiredRole)
		l.Expire("role mismatch", err)
		return Session{}, err
	}

	l.mu.Lock()
	if l.session == nil {
		l.mu.Unlock()
		return Session{}, errors.ErrNotAuthenticated
	}
	l.session.TenantID = tenantID
	l.session.Role = role
	updated := l.session.clone()
	l.mu.Unlock()

	l.logger.Info().Str("tenant", tenantID).Str("role", string(role)).Msg("Session: switched tenant")
	return updated, nil
}

func (l *Lifecycle) ForgotPassword(ctx context.Context, email string) error {
	return l.api.ForgotPassword(ctx, email)
}

func (l *Lifecycle) ResetPassword(ctx context.Context, resetToken, password string) error {
	return l.api.ResetPassword(ctx, resetToken, password)
}

// ChangePassword changes the signed-in user's password.
func (l *Lifecycle) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if _, ok := l.Current(); !ok {
		return errors.ErrNotAuthenticated
	}
	t, err := l.coordinator.EnsureFresh(ctx, l.refreshWindow)
	if err != nil {
		return err
	}
	return l.api.ChangePassword(ctx, t.AccessToken, currentPassword, newPassword)
}

// setState moves to state. The session is replaced when s is non-nil or
// dropSession is set.
func (l *Lifecycle) setState(state State, reason string, cause error, s *Session, dropSession bool) {
	l.mu.Lock()
	from := l.state
	l.state = state
	if s != nil {
		l.session = s
	} else if dropSession {
		l.session = nil
	}
	l.mu.Unlock()

	if from != state {
		l.publish(Event{From: from, To: state, Reason: reason, Err: cause})
	}
}

// transitionFrom moves from -> to and reports false, changing nothing, when
// the lifecycle is in any other state.
func (l *Lifecycle) transitionFrom(from, to State, reason string, cause error) bool {
	l.mu.Lock()
	if l.state != from {
		l.mu.Unlock()
		return false
	}
	l.state = to
	l.mu.Unlock()
	l.publish(Event{From: from, To: to, Reason: reason, Err: cause})
	return true
}

func (l *Lifecycle) clearStore() {
	if err := l.store.Clear(); err != nil {
		l.logger.Err(err).Msg("Session: failed to clear token store")
	}
}

func (l *Lifecycle) publish(e Event) {
	l.subsMu.Lock()
	subs := make([]func(Event), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.subsMu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

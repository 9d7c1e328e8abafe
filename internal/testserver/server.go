// Package testserver is an in-process HR backend exposing the /auth API and
// tenant-scoped resource collections. It is used by the package tests and by
// `hrctl serve-fake` for local development.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RecordedRequest is what the server saw for one inbound call.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	TenantID      string
	RequestID     string
}

type Server struct {
	mux       *http.ServeMux
	routes    []string
	signer    *HMACSigner
	users     *userDirectory
	refresh   *refreshTokens
	resources *resourceStore
	accessTTL time.Duration
	nowFunc   func() time.Time
	logger    zerolog.Logger

	mu           sync.Mutex
	generation   int64
	failRefresh  bool
	failLogout   bool
	refreshDelay time.Duration
	deniedPaths  map[string]struct{}
	resetTokens  map[string]int64
	requests     []RecordedRequest
	counts       map[string]int
}

type Option func(*Server)

func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithSecret(secret string) Option {
	return func(s *Server) {
		s.signer = NewHMACSigner(secret)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(options ...Option) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		signer:      NewHMACSigner("test-secret"),
		users:       newUserDirectory(),
		refresh:     newRefreshTokens(),
		resources:   newResourceStore(),
		accessTTL:   15 * time.Minute,
		nowFunc:     time.Now,
		logger:      log.Logger,
		deniedPaths: make(map[string]struct{}),
		resetTokens: make(map[string]int64),
		counts:      make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}
	s.initRoutes()
	return s
}

// Start serves s on a loopback listener. Callers must Close the result.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// AddUser registers an account; the password is hashed on insert.
func (s *Server) AddUser(user User) error {
	return s.users.upsert(user)
}

// SetResource replaces a tenant's collection.
func (s *Server) SetResource(tenantID, resource string, items ...any) {
	s.resources.set(tenantID, resource, items)
}

// RevokeAccessTokens makes every access token issued so far fail with 401
// while refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// FailRefresh makes /auth/refresh-token reject every call.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	s.failRefresh = fail
	s.mu.Unlock()
}

// FailLogout makes /auth/logout answer 500.
func (s *Server) FailLogout(fail bool) {
	s.mu.Lock()
	s.failLogout = fail
	s.mu.Unlock()
}

// SetRefreshDelay holds refresh responses for d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// DenyPath makes path answer 401 even for valid tokens.
func (s *Server) DenyPath(path string) {
	s.mu.Lock()
	s.deniedPaths[path] = struct{}{}
	s.mu.Unlock()
}

// IssueAccessToken mints an access token for a registered user that
// expires after ttl, bypassing login.
func (s *Server) IssueAccessToken(userID int64, ttl time.Duration) (string, error) {
	user, err := s.users.getByID(userID)
	if err != nil {
		return "", err
	}
	return s.signer.CreateAccessToken(user, s.currentGeneration(), s.nowFunc(), ttl)
}

// ResetTokenFor returns the last password reset token issued for email.
func (s *Server) ResetTokenFor(email string) string {
	user, err := s.users.getByEmail(email)
	if err != nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, id := range s.resetTokens {
		if id == user.ID {
			return token
		}
	}
	return ""
}

// Count returns how many requests hit "METHOD /path".
func (s *Server) Count(methodPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[methodPath]
}

// Requests returns a copy of every request seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request to path.
func (s *Server) LastRequest(path string) (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

func (s *Server) currentGeneration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		TenantID:      r.Header.Get(HeaderTenantID),
		RequestID:     r.Header.Get("x-request-id"),
	})
	s.counts[r.Method+" "+r.URL.Path]++
}

func (s *Server) isDenied(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deniedPaths[path]
	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package token

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store holds the current Token and mirrors it to a Persister so a session
// survives restarts. It never performs network calls.
type Store struct {
	mu        sync.RWMutex
	persister Persister
	current   *Token
	loaded    bool
	gen       uint64
	maxAge    time.Duration
	nowFunc   func() time.Time
	logger    zerolog.Logger
}

type StoreOption func(*Store)

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithMaxAge makes persisted tokens older than maxAge load as absent.
func WithMaxAge(maxAge time.Duration) StoreOption {
	return func(s *Store) {
		s.maxAge = maxAge
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(persister Persister, options ...StoreOption) *Store {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	s := &Store{
		persister: persister,
		nowFunc:   time.Now,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Get returns the current token. A persisted value that cannot be decoded,
// or that is older than the max-age, is discarded and reported as absent.
func (s *Store) Get() (Token, bool) {
	t, _, ok := s.Snapshot()
	return t, ok
}

// Snapshot returns the current token together with its generation. The
// generation advances on every Set and Clear, so it identifies one login.
func (s *Store) Snapshot() (Token, uint64, bool) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.snapshotLocked()
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.current, s.loaded = s.load()
	}
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() (Token, uint64, bool) {
	if s.current == nil {
		return Token{}, s.gen, false
	}
	return *s.current, s.gen, true
}

// Set replaces the current token and starts a new generation. The in-memory
// value is always updated; a persistence failure is returned so the caller
// can log it.
func (s *Store) Set(t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.setLocked(t)
}

// SetIfCurrent replaces the token only while gen is still the current
// generation. It reports false, storing nothing, when the token was cleared
// or replaced since gen was read.
func (s *Store) SetIfCurrent(gen uint64, t Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.gen != gen {
		return false, nil
	}
	return true, s.setLocked(t)
}

func (s *Store) setLocked(t Token) error {
	s.current = &t
	s.loaded = true
	if err := s.persister.Save(Record{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		SavedAt:      s.nowFunc(),
	}); err != nil {
		return errors.Wrapf(err, "token store save")
	}
	return nil
}

// SetPair decodes and stores a raw access/refresh pair.
func (s *Store) SetPair(accessToken, refreshToken string) (Token, error) {
	t, err := Decode(accessToken, refreshToken)
	if err != nil {
		return Token{}, err
	}
	return t, s.Set(t)
}

// Clear removes the token from memory and from the persister.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

// ClearIfCurrent clears the token only while gen is still the current
// generation.
func (s *Store) ClearIfCurrent(gen uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.gen != gen {
		return false, nil
	}
	return true, s.clearLocked()
}

func (s *Store) clearLocked() error {
	s.gen++
	s.current = nil
	s.loaded = true
	if err := s.persister.Clear(); err != nil {
		return errors.Wrapf(err, "token store clear")
	}
	return nil
}

// IsExpiringWithin is true when there is no token or when it expires in
// less than window.
func (s *Store) IsExpiringWithin(window time.Duration) bool {
	t, ok := s.Get()
	if !ok {
		return true
	}
	return t.ExpiresWithin(s.nowFunc(), window)
}

func (s *Store) Now() time.Time {
	return s.nowFunc()
}

// load must be called with the write lock held. loaded is false when the
// persister could not be read at all, so a later Get tries again.
func (s *Store) load() (t *Token, loaded bool) {
	rec, err := s.persister.Load()
	if errors.Is(err, errors.ErrMalformedToken) {
		s.logger.Warn().Err(err).Msg("Token store: discarding unreadable persisted token")
		s.discard()
		return nil, true
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Token store: persisted token unavailable")
		return nil, false
	}
	if rec == nil {
		return nil, true
	}

	if s.maxAge > 0 && !rec.SavedAt.IsZero() && s.nowFunc().Sub(rec.SavedAt) > s.maxAge {
		s.logger.Info().Time("saved_at", rec.SavedAt).Msg("Token store: persisted token exceeded max age")
		s.discard()
		return nil, true
	}

	decoded, err := Decode(rec.AccessToken, rec.RefreshToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Token store: discarding malformed persisted token")
		s.discard()
		return nil, true
	}
	return &decoded, true
}

func (s *Store) discard() {
	if err := s.persister.Clear(); err != nil {
		s.logger.Err(err).Msg("Token store: failed to clear persisted token")
	}
}

package token

import (
	"sync"
	"time"
)

// Record is the persisted form of a Token. Expiry is not stored; it is
// decoded from the access token on load.
type Record struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	SavedAt      time.Time `json:"savedAt"`
}

// Persister is durable storage for the token pair. Load returns (nil, nil)
// when nothing is stored.
type Persister interface {
	Load() (*Record, error)
	Save(rec Record) error
	Clear() error
}

var _ Persister = (*MemoryPersister)(nil)

// MemoryPersister keeps the record in process memory only.
type MemoryPersister struct {
	mu  sync.RWMutex
	rec *Record
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load() (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec == nil {
		return nil, nil
	}
	rec := *m.rec
	return &rec, nil
}

func (m *MemoryPersister) Save(rec Record) error {
	m.mu.Lock()
	m.rec = &rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersister) Clear() error {
	m.mu.Lock()
	m.rec = nil
	m.mu.Unlock()
	return nil
}

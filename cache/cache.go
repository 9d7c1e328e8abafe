// Package cache is a read cache partitioned by tenant. Each (tenant,
// resource) entry moves idle -> loading -> succeeded|failed and is only
// replaced by an explicit refetch.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type Key struct {
	TenantID string
	Resource string
}

// Entry is a snapshot of one cached resource. Data holds the last
// successful load and survives a later failure.
type Entry struct {
	Key
	Status    Status
	Data      any
	Err       error
	UpdatedAt time.Time
}

// Loader produces the data for one entry.
type Loader func(ctx context.Context) (any, error)

// flight is one outstanding load. Waiters block on done and then read entry.
type flight struct {
	done  chan struct{}
	entry Entry
}

type slot struct {
	entry  Entry
	flight *flight
}

type Cache struct {
	mu      sync.RWMutex
	tenants map[string]map[string]*slot
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type Option func(*Cache)

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		tenants: make(map[string]map[string]*slot),
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Fetch loads (tenantID, resource) with loader. If a load for the key is
// already running the call joins it instead: loader is not invoked and the
// in-flight result is returned. The load itself is not bound to ctx, so one
// caller giving up never fails it for the others. If ctx ends first the
// returned entry is still loading and carries ctx's error.
func (c *Cache) Fetch(ctx context.Context, tenantID, resource string, loader Loader) Entry {
	key := Key{TenantID: tenantID, Resource: resource}

	c.mu.Lock()
	s := c.slotLocked(key)
	if f := s.flight; f != nil {
		snapshot := s.entry
		c.mu.Unlock()
		c.logger.Debug().Str("tenant", tenantID).Str("resource", resource).Msg("Cache: joining in-flight load")
		return wait(ctx, f, snapshot)
	}

	f := &flight{done: make(chan struct{})}
	s.flight = f
	s.entry.Status = StatusLoading
	s.entry.Err = nil
	snapshot := s.entry
	c.mu.Unlock()

	go c.load(context.WithoutCancel(ctx), key, s, f, loader)
	return wait(ctx, f, snapshot)
}

func (c *Cache) load(ctx context.Context, key Key, s *slot, f *flight, loader Loader) {
	data, err := runLoader(ctx, loader)

	c.mu.Lock()
	entry := s.entry
	entry.UpdatedAt = c.nowFunc()
	if err != nil {
		entry.Status = StatusFailed
		entry.Err = err
	} else {
		entry.Status = StatusSucceeded
		entry.Data = data
		entry.Err = nil
	}
	// an invalidated key has been removed or replaced; the result still
	// reaches this flight's waiters but is not written back
	if cur := c.lookupLocked(key); cur == s && s.flight == f {
		s.entry = entry
		s.flight = nil
	} else {
		c.logger.Debug().Str("tenant", key.TenantID).Str("resource", key.Resource).Msg("Cache: discarding load for invalidated entry")
	}
	f.entry = entry
	close(f.done)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("tenant", key.TenantID).Str("resource", key.Resource).Msg("Cache: load failed")
	}
}

// Read returns the entry without loading. Absent keys read as idle.
func (c *Cache) Read(tenantID, resource string) Entry {
	key := Key{TenantID: tenantID, Resource: resource}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s := c.lookupLocked(key); s != nil {
		return s.entry
	}
	return Entry{Key: key, Status: StatusIdle}
}

// Invalidate drops the named resources of tenantID, or all of its entries
// when no resource is given.
func (c *Cache) Invalidate(tenantID string, resources ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(resources) == 0 {
		delete(c.tenants, tenantID)
		return
	}
	byResource, ok := c.tenants[tenantID]
	if !ok {
		return
	}
	for _, r := range resources {
		delete(byResource, r)
	}
	if len(byResource) == 0 {
		delete(c.tenants, tenantID)
	}
}

// Clear drops every tenant.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.tenants = make(map[string]map[string]*slot)
	c.mu.Unlock()
}

func (c *Cache) Tenants() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.tenants))
	for id := range c.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Cache) Resources(tenantID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tenants[tenantID]))
	for name := range c.tenants[tenantID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Cache) slotLocked(key Key) *slot {
	byResource, ok := c.tenants[key.TenantID]
	if !ok {
		byResource = make(map[string]*slot)
		c.tenants[key.TenantID] = byResource
	}
	s, ok := byResource[key.Resource]
	if !ok {
		s = &slot{entry: Entry{Key: key, Status: StatusIdle}}
		byResource[key.Resource] = s
	}
	return s
}

func (c *Cache) lookupLocked(key Key) *slot {
	return c.tenants[key.TenantID][key.Resource]
}

func wait(ctx context.Context, f *flight, snapshot Entry) Entry {
	select {
	case <-f.done:
		return f.entry
	case <-ctx.Done():
		snapshot.Status = StatusLoading
		snapshot.Err = ctx.Err()
		return snapshot
	}
}

func runLoader(ctx context.Context, loader Loader) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panic: %v", r)
		}
	}()
	return loader(ctx)
}

// DataAs returns e.Data as T.
func DataAs[T any](e Entry) (T, bool) {
	v, ok := e.Data.(T)
	return v, ok
}

// ReadAs reads (tenantID, resource) and returns its data as T when the
// entry has data of that type.
func ReadAs[T any](c *Cache, tenantID, resource string) (T, bool) {
	return DataAs[T](c.Read(tenantID, resource))
}

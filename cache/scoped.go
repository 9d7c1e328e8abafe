package cache

import (
	"context"

	"github.com/jrsteele09/go-tenant-access/tenants"
)

// Scoped is a view of the cache limited to the tenants of one session.
// Asking it for any other tenant is a caller bug; it yields a failed entry
// carrying ErrTenantMismatch and never touches the other tenant's data.
type Scoped struct {
	cache *Cache
	scope tenants.Scope
}

func (c *Cache) Scoped(scope tenants.Scope) *Scoped {
	return &Scoped{cache: c, scope: scope}
}

func (s *Scoped) Fetch(ctx context.Context, tenantID, resource string, loader Loader) Entry {
	if e, ok := s.check(tenantID, resource); !ok {
		return e
	}
	return s.cache.Fetch(ctx, tenantID, resource, loader)
}

func (s *Scoped) Read(tenantID, resource string) Entry {
	if e, ok := s.check(tenantID, resource); !ok {
		return e
	}
	return s.cache.Read(tenantID, resource)
}

func (s *Scoped) Invalidate(tenantID string, resources ...string) {
	if !s.scope.Contains(tenantID) {
		return
	}
	s.cache.Invalidate(tenantID, resources...)
}

func (s *Scoped) check(tenantID, resource string) (Entry, bool) {
	err := s.scope.Check(tenantID)
	if err == nil {
		return Entry{}, true
	}
	s.cache.logger.Error().Err(err).Str("tenant", tenantID).Str("resource", resource).Msg("Cache: tenant outside session scope")
	return Entry{
		Key:    Key{TenantID: tenantID, Resource: resource},
		Status: StatusFailed,
		Err:    err,
	}, false
}

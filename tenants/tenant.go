package tenants

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jrsteele09/go-tenant-access/internal/errors"
)

// Scope is the set of tenants a session may act in. Data for any other
// tenant is never read or fetched through a scoped view.
type Scope struct {
	allowed map[string]struct{}
}

func NewScope(tenantIDs ...string) Scope {
	s := Scope{allowed: make(map[string]struct{}, len(tenantIDs))}
	for _, id := range tenantIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.allowed[id] = struct{}{}
		}
	}
	return s
}

func (s Scope) Contains(tenantID string) bool {
	_, ok := s.allowed[tenantID]
	return ok
}

// Check returns ErrTenantMismatch when tenantID is outside the scope.
func (s Scope) Check(tenantID string) error {
	if tenantID == "" {
		return errors.ErrTenantRequired
	}
	if !s.Contains(tenantID) {
		return fmt.Errorf("tenant %q not in scope %v: %w", tenantID, s.IDs(), errors.ErrTenantMismatch)
	}
	return nil
}

// IDs returns the scope's tenant ids in sorted order.
func (s Scope) IDs() []string {
	ids := make([]string, 0, len(s.allowed))
	for id := range s.allowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Scope) Empty() bool {
	return len(s.allowed) == 0
}

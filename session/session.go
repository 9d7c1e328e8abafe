// Package session owns the login state of one process: who is signed in,
// for which tenant, and the transitions between anonymous and
// authenticated.
package session

import (
	"fmt"

	"github.com/jrsteele09/go-tenant-access/tenants"
	"github.com/jrsteele09/go-tenant-access/users"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the signed-in user acting in TenantID.
type Session struct {
	UserID    users.ID
	Email     string
	FirstName string
	LastName  string
	Role      users.RoleType
	TenantID  string
	Tenants   []string
}

func newSession(p users.Profile) Session {
	tenantIDs := p.TenantIDs()
	s := Session{
		UserID:    p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      p.Role,
		TenantID:  string(p.TenantID),
		Tenants:   tenantIDs,
	}
	if s.TenantID == "" && len(tenantIDs) > 0 {
		s.TenantID = tenantIDs[0]
	}
	return s
}

// Scope is the set of tenants the session may act in.
func (s Session) Scope() tenants.Scope {
	return tenants.NewScope(s.Tenants...)
}

func (s Session) clone() Session {
	s.Tenants = append([]string(nil), s.Tenants...)
	return s
}

// Event describes one state transition.
type Event struct {
	From   State
	To     State
	Reason string
	Err    error
}

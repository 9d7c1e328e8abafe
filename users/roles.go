package users

import (
	"fmt"
	"sync"
)

// RoleLookup resolves a user's role in a tenant. Role-to-permission mapping
// lives outside this module; the lookup only answers "which role".
type RoleLookup interface {
	RoleFor(userID ID, tenantID string) (RoleType, error)
}

// StaticRoleLookup is a fixed user -> tenant -> role table.
type StaticRoleLookup struct {
	mu    sync.RWMutex
	roles map[ID]map[string]RoleType
}

var _ RoleLookup = (*StaticRoleLookup)(nil)

func NewStaticRoleLookup() *StaticRoleLookup {
	return &StaticRoleLookup{roles: make(map[ID]map[string]RoleType)}
}

func (s *StaticRoleLookup) Set(userID ID, tenantID string, role RoleType) *StaticRoleLookup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[userID]; !ok {
		s.roles[userID] = make(map[string]RoleType)
	}
	s.roles[userID][tenantID] = role
	return s
}

func (s *StaticRoleLookup) RoleFor(userID ID, tenantID string) (RoleType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[userID][tenantID]
	if !ok {
		return "", fmt.Errorf("no role for user %s in tenant %s", userID, tenantID)
	}
	return role, nil
}

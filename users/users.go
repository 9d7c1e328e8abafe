package users

// RoleType is a user's role within a tenant
type RoleType string

const (
	RoleTenantAdmin  RoleType = "tenant_admin"  // Can manage users and settings within a tenant
	RoleHRManager    RoleType = "hr_manager"    // Manages employees, departments and leave
	RolePayrollAdmin RoleType = "payroll_admin" // Manages payroll runs
	RoleEmployee     RoleType = "employee"      // Self-service access only
)

// Profile is the authenticated user as returned by /auth/login and /auth/validate.
type Profile struct {
	ID        ID       `json:"id"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Role      RoleType `json:"role,omitempty"`
	TenantID  ID       `json:"tenantId"`          // Home tenant selected at login
	Tenants   []ID     `json:"tenants,omitempty"` // Every tenant the user may act in
}

// TenantIDs returns the tenants the profile may act in, home tenant first.
func (p Profile) TenantIDs() []string {
	ids := make([]string, 0, len(p.Tenants)+1)
	seen := make(map[string]struct{}, len(p.Tenants)+1)
	add := func(id ID) {
		if id == "" {
			return
		}
		if _, ok := seen[string(id)]; ok {
			return
		}
		seen[string(id)] = struct{}{}
		ids = append(ids, string(id))
	}
	add(p.TenantID)
	for _, t := range p.Tenants {
		add(t)
	}
	return ids
}

func (p Profile) HasTenant(tenantID string) bool {
	for _, id := range p.TenantIDs() {
		if id == tenantID {
			return true
		}
	}
	return false
}

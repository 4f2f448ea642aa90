package security

import (
	"sort"
	"strings"

	"github.com/notarydesk/authcore/internal/domain"
)

// PolicyKind tags the variant of a Policy.
type PolicyKind int

const (
	// PolicyAnyIdentity admits every verified identity.
	PolicyAnyIdentity PolicyKind = iota
	// PolicyRoles admits identities whose role is in an explicit set.
	PolicyRoles
)

// Policy is the role requirement declared for a route group.
type Policy struct {
	kind  PolicyKind
	roles map[domain.Role]struct{}
}

// AnyIdentity returns a policy satisfied by any verified identity.
func AnyIdentity() Policy {
	return Policy{kind: PolicyAnyIdentity}
}

// RequireRoles returns a policy satisfied by any of roles. With no roles it
// is equivalent to AnyIdentity.
func RequireRoles(roles ...domain.Role) Policy {
	if len(roles) == 0 {
		return AnyIdentity()
	}
	set := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return Policy{kind: PolicyRoles, roles: set}
}

// Kind returns the policy variant.
func (p Policy) Kind() PolicyKind {
	return p.kind
}

// Allows reports whether an identity holding role satisfies the policy.
// Roles outside the enumerated set never do.
func (p Policy) Allows(role domain.Role) bool {
	if !role.Valid() {
		return false
	}
	if p.kind == PolicyAnyIdentity {
		return true
	}
	_, ok := p.roles[role]
	return ok
}

// Roles returns the accepted roles in sorted order, or nil for AnyIdentity.
func (p Policy) Roles() []domain.Role {
	if p.kind == PolicyAnyIdentity {
		return nil
	}
	out := make([]domain.Role, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p Policy) String() string {
	if p.kind == PolicyAnyIdentity {
		return "any"
	}
	names := make([]string, 0, len(p.roles))
	for _, r := range p.Roles() {
		names = append(names, string(r))
	}
	return strings.Join(names, "|")
}

// Route-group policies.
var (
	AdminOnly        = RequireRoles(domain.RoleAdmin, domain.RoleSuperAdmin)
	SuperAdminOnly   = RequireRoles(domain.RoleSuperAdmin)
	PartnerAccess    = RequireRoles(domain.RolePartner, domain.RoleAdmin, domain.RoleSuperAdmin)
	SellerAccess     = RequireRoles(domain.RoleSeller, domain.RoleAdmin, domain.RoleSuperAdmin)
	SupervisorAccess = RequireRoles(domain.RoleSupervisor, domain.RoleAdmin, domain.RoleSuperAdmin)
	CertifierAccess  = RequireRoles(domain.RoleCertifier, domain.RoleSupervisor, domain.RoleAdmin, domain.RoleSuperAdmin)
)

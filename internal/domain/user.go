package domain

import (
	"context"
	"time"
)

// Role is one of the closed set of account roles.
type Role string

const (
	RoleUser       Role = "user"
	RolePartner    Role = "partner"
	RoleSeller     Role = "seller"
	RoleSupervisor Role = "supervisor"
	RoleCertifier  Role = "certifier"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Roles lists every valid role.
var Roles = []Role{
	RoleUser,
	RolePartner,
	RoleSeller,
	RoleSupervisor,
	RoleCertifier,
	RoleAdmin,
	RoleSuperAdmin,
}

// Valid reports whether r belongs to the enumerated role set.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts s to a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// User represents a platform account
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"` // Unique, case-sensitive, immutable
	PasswordDigest string    `json:"-"`        // hex(key).hex(salt), never serialized
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	Platform       string    `json:"platform,omitempty"`     // Partner-channel marker
	BusinessName   string    `json:"businessName,omitempty"` // Sellers and partners
	PartnerID      *int64    `json:"partnerId,omitempty"`    // Owning partner account, if any
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share a stored record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.PartnerID != nil {
		id := *u.PartnerID
		c.PartnerID = &id
	}
	return &c
}

// UserFinder looks up single users. Both lookups return (nil, nil) when
// no record matches.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

// UserWriter creates and mutates users.
//
// Create assigns a fresh ID and fails with ErrDuplicateUsername when the
// username is taken. Update writes only profile fields (Email, Role,
// Platform, BusinessName, PartnerID); PasswordDigest and Active have their
// own write paths so a profile edit can never undo a rotation or a
// suspension. Update and SetPasswordDigest fail with ErrNotFound when the ID
// is absent.
type UserWriter interface {
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
	SetPasswordDigest(ctx context.Context, id int64, digest string) error
}

// UserLister lists users by role.
type UserLister interface {
	ListByRole(ctx context.Context, role Role) ([]*User, error)
}

// UserDeactivator is an optional capability: backends that cannot suspend
// accounts simply do not implement it.
type UserDeactivator interface {
	Deactivate(ctx context.Context, id int64) error
}

// UserStore is the capability set every user backend must provide.
type UserStore interface {
	UserFinder
	UserWriter
	UserLister
}

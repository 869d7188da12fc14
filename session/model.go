package session

import (
	"time"

	"github.com/MrEthical07/authcore/store"
)

// Principal is the authenticated caller attached to a request. It is a
// snapshot taken when the access token was verified.
type Principal struct {
	User      store.User `json:"user"`
	IsAdmin   bool       `json:"isAdmin"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// NewPrincipal snapshots u for a token expiring at expiresAt. The password
// hash is never carried.
func NewPrincipal(u store.User, expiresAt time.Time) *Principal {
	u.PasswordHash = ""
	return &Principal{
		User:      u,
		IsAdmin:   u.Role.Name == store.RoleAdmin,
		ExpiresAt: expiresAt,
	}
}

// UserID is a shortcut for p.User.ID.
func (p *Principal) UserID() string { return p.User.ID }

// RoleName is the role the principal held at snapshot time.
func (p *Principal) RoleName() string { return p.User.Role.Name }

// HasRole reports whether the principal's role is one of names.
func (p *Principal) HasRole(names ...string) bool {
	for _, n := range names {
		if p.User.Role.Name == n {
			return true
		}
	}
	return false
}

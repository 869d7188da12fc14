package store

import (
	"encoding/json"
	"time"
)

// Default role names. They are created at startup and cannot be renamed or
// deleted.
const (
	RoleAdmin  = "ADMIN"
	RolePro    = "PRO"
	RoleViewer = "VIEWER"
)

// DefaultRoles lists the reserved roles with their descriptions.
var DefaultRoles = []Role{
	{Name: RoleAdmin, Description: "Full administrative access"},
	{Name: RolePro, Description: "Paid account with extended access"},
	{Name: RoleViewer, Description: "Default role for new accounts"},
}

// IsDefaultRole reports whether name is a reserved role.
func IsDefaultRole(name string) bool {
	for _, r := range DefaultRoles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Role is a named permission group.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsPrivileged reports whether the role may use the admin login.
func (r Role) IsPrivileged() bool { return r.Name == RoleAdmin || r.Name == RolePro }

// User is an account joined with its role. PasswordHash is empty for accounts
// that only sign in through a social provider.
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"passwordHash,omitempty"`
	Name            string     `json:"name"`
	EmailVerified   bool       `json:"emailVerified"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	RoleID          string     `json:"roleId"`
	Role            Role       `json:"role"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// NewUser is the input to Users.Create.
type NewUser struct {
	Email         string
	PasswordHash  string
	Name          string
	RoleID        string
	EmailVerified bool
}

// UserUpdate carries optional profile changes; nil fields are left untouched.
type UserUpdate struct {
	Name  *string
	Email *string
}

// Page selects a window of a list query.
type Page struct {
	Limit  int
	Offset int
}

// All is a page that returns every row.
var All = Page{}

// SocialIdentity links a user to an account at an external provider.
type SocialIdentity struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Provider     string          `json:"provider"`
	ProviderID   string          `json:"providerId"`
	Email        string          `json:"email"`
	ProviderData json.RawMessage `json:"providerData,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// RefreshToken is the persisted half of a refresh token. Token holds the
// signed string once it has been stamped.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// VerificationType names what a verification token proves.
type VerificationType string

const (
	VerificationEmail         VerificationType = "EMAIL_VERIFICATION"
	VerificationPasswordReset VerificationType = "PASSWORD_RESET"
	VerificationEmailChange   VerificationType = "EMAIL_CHANGE"
)

// Valid reports whether t is a known type.
func (t VerificationType) Valid() bool {
	switch t {
	case VerificationEmail, VerificationPasswordReset, VerificationEmailChange:
		return true
	}
	return false
}

// VerificationToken is a single-use random token sent by email. Rows are kept
// after use so rate limits can count them.
type VerificationToken struct {
	ID        string           `json:"id"`
	Token     string           `json:"token"`
	Type      VerificationType `json:"type"`
	UserID    string           `json:"userId"`
	NewEmail  string           `json:"newEmail,omitempty"`
	ExpiresAt time.Time        `json:"expiresAt"`
	UsedAt    *time.Time       `json:"usedAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Usable reports whether the token is unused and unexpired at now.
func (v *VerificationToken) Usable(now time.Time) bool {
	return v.UsedAt == nil && now.Before(v.ExpiresAt)
}

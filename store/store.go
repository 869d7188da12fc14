// Package store defines the persistence contract of the authentication core:
// the data model and one repository interface per entity.
//
// Implementations live in sub-packages: memstore for tests and local runs,
// postgres for production. Every implementation must honour the conditional
// semantics documented on RefreshTokens.Revoke and VerificationTokens.MarkUsed;
// they are what makes token redemption single-use under concurrency.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrRoleInUse is returned when deleting a role that users still reference.
	ErrRoleInUse = errors.New("store: role in use")
)

// Users persists accounts. Lookups by email are case-insensitive.
type Users interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindAll(ctx context.Context, page Page) ([]User, error)
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, page Page) ([]User, error)
	CountSearch(ctx context.Context, query string) (int, error)
	FindByRoleID(ctx context.Context, roleID string, page Page) ([]User, error)
	Create(ctx context.Context, u NewUser) (*User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetRole(ctx context.Context, id, roleID string) (*User, error)
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	// Delete removes the user together with its refresh tokens, verification
	// tokens and social identities.
	Delete(ctx context.Context, id string) error
}

// Roles persists roles.
type Roles interface {
	FindAll(ctx context.Context) ([]Role, error)
	FindByID(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	Create(ctx context.Context, name, description string) (*Role, error)
	Update(ctx context.Context, id, name, description string) (*Role, error)
	Delete(ctx context.Context, id string) error
	CountUsers(ctx context.Context, id string) (int, error)
}

// RefreshTokens persists refresh-token rows.
type RefreshTokens interface {
	// Create inserts a row with a server-assigned id and a unique placeholder
	// token. The caller signs a token embedding the id and stamps it.
	Create(ctx context.Context, userID string, expiresAt time.Time) (*RefreshToken, error)
	Stamp(ctx context.Context, id, token string) error
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	// Revoke revokes the row only if it is not revoked yet and reports whether
	// this call performed the transition. Concurrent callers see exactly one true.
	Revoke(ctx context.Context, id string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// VerificationTokens persists email verification, password reset and email
// change tokens.
type VerificationTokens interface {
	Create(ctx context.Context, v VerificationToken) (*VerificationToken, error)
	FindByToken(ctx context.Context, token string) (*VerificationToken, error)
	// MarkUsed sets used_at only if it is still null and reports whether this
	// call performed the transition.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
	CountSince(ctx context.Context, userID string, typ VerificationType, since time.Time) (int, error)
	LatestByUser(ctx context.Context, userID string, limit int) ([]VerificationToken, error)
}

// Socials persists social identities.
type Socials interface {
	FindByProvider(ctx context.Context, provider, providerID string) (*SocialIdentity, error)
	Create(ctx context.Context, s SocialIdentity) (*SocialIdentity, error)
	ListByUser(ctx context.Context, userID string) ([]SocialIdentity, error)
	Delete(ctx context.Context, userID, provider string) error
}

// Store groups the repositories behind one handle.
type Store interface {
	Users() Users
	Roles() Roles
	RefreshTokens() RefreshTokens
	VerificationTokens() VerificationTokens
	Socials() Socials
	Ping(ctx context.Context) error
	Close()
}

package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/store"
)

// RegisterInput is the body of a self-service registration.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginInput is the body of a password login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SocialInput carries a provider access token obtained by the client.
type SocialInput struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"accessToken"`
	RedirectURI string `json:"redirectUri,omitempty"`
}

// Session is an issued token pair.
type Session struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	User    UserView `json:"user"`
	Session Session  `json:"session"`
}

// RoleRef is the role summary embedded in a user view.
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SocialRef is the provider summary embedded in a user view.
type SocialRef struct {
	Provider string `json:"provider"`
	Email    string `json:"email"`
}

// UserView is the client-facing shape of a user. It never carries the
// password hash. Name falls back to the email when unset.
type UserView struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	Name          string      `json:"name"`
	EmailVerified bool        `json:"emailVerified"`
	Role          RoleRef     `json:"role"`
	Socials       []SocialRef `json:"socials,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// NewUserView projects u for clients.
func NewUserView(u *store.User) UserView {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		Name:          name,
		EmailVerified: u.EmailVerified,
		Role:          RoleRef{ID: u.Role.ID, Name: u.Role.Name},
		CreatedAt:     u.CreatedAt,
	}
}

func userViews(users []store.User) []UserView {
	out := make([]UserView, 0, len(users))
	for i := range users {
		out = append(out, NewUserView(&users[i]))
	}
	return out
}

// Pagination describes a page of a list.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// UserPage is one page of users.
type UserPage struct {
	List       []UserView `json:"list"`
	Pagination Pagination `json:"pagination"`
}

// CreateUserInput is an admin-created account.
type CreateUserInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// UpdateUserInput carries optional profile changes.
type UpdateUserInput struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// ChangePasswordInput is the body of a password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// RoleInput creates or updates a role.
type RoleInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// VerificationView is a verification token as listed to its owner. The token
// value is masked.
type VerificationView struct {
	ID        string                 `json:"id"`
	Token     string                 `json:"token"`
	Type      store.VerificationType `json:"type"`
	ExpiresAt time.Time              `json:"expiresAt"`
	UsedAt    *time.Time             `json:"usedAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// TokenCheck is the result of CheckVerificationToken.
type TokenCheck struct {
	Valid     bool                   `json:"valid"`
	Type      store.VerificationType `json:"type,omitempty"`
	ExpiresAt *time.Time             `json:"expiresAt,omitempty"`
}

// RateLimitStatus is the result of CheckRateLimit.
type RateLimitStatus struct {
	Limited   bool `json:"limited"`
	Remaining int  `json:"remaining"`
}

// HealthStatus reports dependency reachability.
type HealthStatus struct {
	Cache      bool `json:"cache"`
	Repository bool `json:"repository"`
}

// OK reports whether every dependency answered.
func (h HealthStatus) OK() bool { return h.Cache && h.Repository }

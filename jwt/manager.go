package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretBytes = 32

// Verification outcomes. Every error returned by VerifyAccess and VerifyRefresh
// wraps exactly one of these, so callers branch with errors.Is.
var (
	ErrExpired          = errors.New("jwt: token expired")
	ErrInvalidSignature = errors.New("jwt: invalid signature")
	ErrNotYetValid      = errors.New("jwt: token not yet valid")
	ErrMalformed        = errors.New("jwt: malformed token")
	ErrInvalid          = errors.New("jwt: invalid token")
)

// Config holds signing secrets and token lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	// Now overrides the clock for signing and validation. Nil means time.Now.
	Now func() time.Time
}

// AccessPayload is the identity an access token binds.
type AccessPayload struct {
	UserID   string
	RoleID   string
	RoleName string
}

// RefreshPayload is the identity a refresh token binds. TokenID is the id of
// the persisted refresh-token row.
type RefreshPayload struct {
	TokenID string
	UserID  string
}

// AccessClaims is the wire form of an access token.
type AccessClaims struct {
	UserID   string `json:"userId"`
	RoleID   string `json:"roleId"`
	RoleName string `json:"roleName"`
	jwt.RegisteredClaims
}

// Payload returns the identity carried by the claims.
func (c *AccessClaims) Payload() AccessPayload {
	return AccessPayload{UserID: c.UserID, RoleID: c.RoleID, RoleName: c.RoleName}
}

// RefreshClaims is the wire form of a refresh token.
type RefreshClaims struct {
	TokenID string `json:"tokenId"`
	UserID  string `json:"userId"`
	jwt.RegisteredClaims
}

// Payload returns the identity carried by the claims.
func (c *RefreshClaims) Payload() RefreshPayload {
	return RefreshPayload{TokenID: c.TokenID, UserID: c.UserID}
}

// Manager signs and verifies HS256 access and refresh tokens with separate
// secrets. It is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
	parser *jwt.Parser
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretBytes {
		return nil, fmt.Errorf("jwt: access secret must be at least %d bytes", minSecretBytes)
	}
	if len(cfg.RefreshSecret) < minSecretBytes {
		return nil, fmt.Errorf("jwt: refresh secret must be at least %d bytes", minSecretBytes)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		config: cfg,
		parser: newParser(cfg),
	}, nil
}

func newParser(cfg Config) *jwt.Parser {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	return jwt.NewParser(options...)
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// SignAccess issues an access token and returns it with its expiry.
func (m *Manager) SignAccess(p AccessPayload) (string, time.Time, error) {
	if p.UserID == "" {
		return "", time.Time{}, errors.New("jwt: access payload requires a user id")
	}

	claims := AccessClaims{
		UserID:           p.UserID,
		RoleID:           p.RoleID,
		RoleName:         p.RoleName,
		RegisteredClaims: m.registered(m.config.AccessTTL, ""),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign access: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// SignRefresh issues a refresh token embedding the refresh-token row id.
func (m *Manager) SignRefresh(p RefreshPayload) (string, time.Time, error) {
	if p.TokenID == "" || p.UserID == "" {
		return "", time.Time{}, errors.New("jwt: refresh payload requires token and user ids")
	}

	claims := RefreshClaims{
		TokenID:          p.TokenID,
		UserID:           p.UserID,
		RegisteredClaims: m.registered(m.config.RefreshTTL, p.TokenID),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign refresh: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.verify(token, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalid)
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token. It does not consult
// storage; the caller must still match the token against its persisted row.
func (m *Manager) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.verify(token, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.TokenID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing tokenId or userId", ErrInvalid)
	}
	return claims, nil
}

func (m *Manager) verify(token string, claims jwt.Claims, secret []byte) error {
	if token == "" {
		return ErrMalformed
	}

	parsed, err := m.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return classify(err)
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

// classify maps jwt/v5 validation errors onto this package's outcome kinds.
// Order matters: an expired token with a bad signature is a signature failure,
// and jwt/v5 reports signature errors before claim errors.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}

func (m *Manager) registered(ttl time.Duration, id string) jwt.RegisteredClaims {
	now := m.config.Now()
	return jwt.RegisteredClaims{
		ID:        id,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

const (
	testAccessSecret  = "access-secret-access-secret-0001"
	testRefreshSecret = "refresh-secret-refresh-secret-01"
)

func newTestManager(tb testing.TB, now func() time.Time) *Manager {
	tb.Helper()
	m, err := NewManager(Config{
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		Issuer:        "authcore-test",
		Now:           now,
	})
	if err != nil {
		tb.Fatalf("NewManager error: %v", err)
	}
	return m
}

func TestAccessRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	want := AccessPayload{UserID: "user-1", RoleID: "role-1", RoleName: "ADMIN"}

	token, exp, err := m.SignAccess(want)
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}
	if time.Until(exp) <= 14*time.Minute {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	if got := claims.Payload(); got != want {
		t.Fatalf("payload mismatch: got %+v want %+v", got, want)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("expected iat and exp claims")
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	want := RefreshPayload{TokenID: "token-row-1", UserID: "user-1"}

	token, _, err := m.SignRefresh(want)
	if err != nil {
		t.Fatalf("SignRefresh error: %v", err)
	}
	claims, err := m.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh error: %v", err)
	}
	if got := claims.Payload(); got != want {
		t.Fatalf("payload mismatch: got %+v want %+v", got, want)
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	signer := newTestManager(t, func() time.Time { return issued })
	token, _, err := signer.SignAccess(AccessPayload{UserID: "u1"})
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}

	verifier := newTestManager(t, nil)
	_, err = verifier.VerifyAccess(token)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyAccessNotYetValid(t *testing.T) {
	future := time.Now().Add(time.Hour)
	signer := newTestManager(t, func() time.Time { return future })
	token, _, err := signer.SignAccess(AccessPayload{UserID: "u1"})
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}

	_, err = newTestManager(t, nil).VerifyAccess(token)
	if !errors.Is(err, ErrNotYetValid) {
		t.Fatalf("expected ErrNotYetValid, got %v", err)
	}
}

func TestVerifyAccessTampered(t *testing.T) {
	m := newTestManager(t, nil)
	token, _, err := m.SignAccess(AccessPayload{UserID: "u1", RoleName: "VIEWER"})
	if err != nil {
		t.Fatalf("SignAccess error: %v", err)
	}

	parts := strings.Split(token, ".")
	forged := gjwt.NewWithClaims(gjwt.SigningMethodHS256, AccessClaims{
		UserID:   "u1",
		RoleName: "ADMIN",
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    "authcore-test",
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	forgedSigned, err := forged.SignedString([]byte("some-other-secret-some-other-sec"))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	forgedParts := strings.Split(forgedSigned, ".")

	spliced := forgedParts[0] + "." + forgedParts[1] + "." + parts[2]
	if _, err := m.VerifyAccess(spliced); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for spliced token, got %v", err)
	}
	if _, err := m.VerifyAccess(forgedSigned); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for foreign key, got %v", err)
	}
}

func TestRefreshAndAccessSecretsAreSeparate(t *testing.T) {
	m := newTestManager(t, nil)
	refresh, _, err := m.SignRefresh(RefreshPayload{TokenID: "t1", UserID: "u1"})
	if err != nil {
		t.Fatalf("SignRefresh error: %v", err)
	}
	if _, err := m.VerifyAccess(refresh); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected refresh token to fail access verification, got %v", err)
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	m := newTestManager(t, nil)
	token := gjwt.NewWithClaims(gjwt.SigningMethodNone, AccessClaims{
		UserID: "u1",
		RegisteredClaims: gjwt.RegisteredClaims{
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := m.VerifyAccess(signed); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func TestVerifyMalformed(t *testing.T) {
	m := newTestManager(t, nil)
	for _, token := range []string{"", "abc", "a.b.c"} {
		if _, err := m.VerifyAccess(token); !errors.Is(err, ErrMalformed) {
			t.Fatalf("VerifyAccess(%q) expected ErrMalformed, got %v", token, err)
		}
	}
}

func TestNewManagerValidation(t *testing.T) {
	base := Config{
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}

	short := base
	short.AccessSecret = []byte("short")
	same := base
	same.RefreshSecret = base.AccessSecret
	noTTL := base
	noTTL.RefreshTTL = 0

	for name, cfg := range map[string]Config{"short secret": short, "shared secret": same, "zero ttl": noTTL} {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected NewManager to fail", name)
		}
	}
}

func TestParseTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"90s":   90 * time.Second,
		"15m":   15 * time.Minute,
		"12h":   12 * time.Hour,
		"30d":   30 * 24 * time.Hour,
		"2w":    14 * 24 * time.Hour,
		"1y":    365 * 24 * time.Hour,
		"1h30m": 90 * time.Minute,
		"250ms": 250 * time.Millisecond,
	}
	for in, want := range cases {
		got, err := ParseTTL(in)
		if err != nil {
			t.Fatalf("ParseTTL(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseTTL(%q) = %v, want %v", in, got, want)
		}
	}

	for _, bad := range []string{"", "d", "-1d", "0m", "ten minutes"} {
		if _, err := ParseTTL(bad); err == nil {
			t.Fatalf("ParseTTL(%q) expected error", bad)
		}
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/mail"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/replay"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memstore"
)

const testPassword = "correct-password-123"

type server struct {
	engine  *authcore.Engine
	handler http.Handler
	mr      *miniredis.Miniredis
}

func newServer(t *testing.T, mutate ...func(*authcore.Config)) *server {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = "access-secret-0123456789abcdefghijklmnop"
	cfg.JWT.RefreshSecret = "refresh-secret-0123456789abcdefghijklmno"
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		Pepper:      "test-pepper",
	}
	cfg.Replay.Enabled = false
	for _, m := range mutate {
		m(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(memstore.New()).
		WithMailer(func(context.Context, mail.Message) error { return nil }).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	require.NoError(t, e.EnsureDefaultRoles(context.Background()))

	return &server{engine: e, handler: NewHandler(e, zap.NewNop(), Options{}), mr: mr}
}

type reply struct {
	code int
	body map[string]any
}

func (r reply) message() string {
	msg, _ := r.body["message"].(string)
	return msg
}

func (r reply) data() map[string]any {
	d, _ := r.body["data"].(map[string]any)
	return d
}

func (s *server) do(t *testing.T, method, path, token string, body any, header ...string) reply {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	out := reply{code: rec.Code}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.body))
	}
	return out
}

// register signs up email and returns the user id plus the token pair.
func (s *server) register(t *testing.T, email string) (id, access, refresh string) {
	t.Helper()
	res, err := s.engine.Register(context.Background(), authcore.RegisterInput{
		Email:    email,
		Password: testPassword,
	})
	require.NoError(t, err)
	return res.User.ID, res.Session.AccessToken, res.Session.RefreshToken
}

func (s *server) admin(t *testing.T, email string) (id, access string) {
	t.Helper()
	id, _, _ = s.register(t, email)
	_, err := s.engine.ChangeUserRole(context.Background(), id, store.RoleAdmin)
	require.NoError(t, err)
	res, err := s.engine.Login(context.Background(), authcore.LoginInput{Email: email, Password: testPassword})
	require.NoError(t, err)
	return id, res.Session.AccessToken
}

func TestHealthEndpoints(t *testing.T) {
	s := newServer(t)

	r := s.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, r.code)

	r = s.do(t, http.MethodGet, "/hz", "", nil)
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, float64(1), r.body["data"])

	r = s.do(t, http.MethodGet, "/api/health-check", "", nil)
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, true, r.data()["cache"])

	s.mr.Close()
	r = s.do(t, http.MethodGet, "/api/health-check", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, r.code)
	require.Equal(t, false, r.data()["cache"])
}

func TestRegisterThenDuplicate(t *testing.T) {
	s := newServer(t)
	body := map[string]string{"email": "new@example.com", "password": testPassword}

	r := s.do(t, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, true, r.body["status"])
	session, _ := r.data()["session"].(map[string]any)
	require.NotEmpty(t, session["accessToken"])
	user, _ := r.data()["user"].(map[string]any)
	require.Equal(t, "new@example.com", user["email"])
	require.NotContains(t, user, "password")

	r = s.do(t, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusBadRequest, r.code)
	require.Equal(t, "Email already registered", r.message())
	require.Equal(t, false, r.body["status"])
}

func TestMalformedBody(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshRotation(t *testing.T) {
	s := newServer(t)
	_, _, refresh := s.register(t, "rotate@example.com")

	r := s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, r.code)
	require.NotEqual(t, refresh, r.data()["refreshToken"])

	r = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, r.code)

	r = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, r.code)
}

func TestLogoutAllRevokesRefresh(t *testing.T) {
	s := newServer(t)
	_, access, refresh := s.register(t, "all@example.com")

	r := s.do(t, http.MethodPost, "/api/auth/logout-all", "", nil)
	require.Equal(t, http.StatusUnauthorized, r.code)
	require.Equal(t, "Authentication required", r.message())

	r = s.do(t, http.MethodPost, "/api/auth/logout-all", access, nil)
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, "Logged out from all devices", r.message())

	r = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, r.code)
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	_, access, refresh := s.register(t, "out@example.com")

	r := s.do(t, http.MethodPost, "/api/auth/logout", access, map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, "Logged out successfully", r.message())

	r = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, r.code)
}

func TestSelfOrAdmin(t *testing.T) {
	s := newServer(t)
	aliceID, aliceToken, _ := s.register(t, "alice@example.com")
	bobID, _, _ := s.register(t, "bob@example.com")
	_, adminToken := s.admin(t, "admin@example.com")

	r := s.do(t, http.MethodGet, "/api/users/"+aliceID, aliceToken, nil)
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, "alice@example.com", r.data()["email"])

	r = s.do(t, http.MethodGet, "/api/users/"+bobID, aliceToken, nil)
	require.Equal(t, http.StatusForbidden, r.code)

	r = s.do(t, http.MethodGet, "/api/users/"+bobID, adminToken, nil)
	require.Equal(t, http.StatusOK, r.code)

	r = s.do(t, http.MethodGet, "/api/users/"+bobID+"/social-logins", aliceToken, nil)
	require.Equal(t, http.StatusForbidden, r.code)

	r = s.do(t, http.MethodDelete, "/api/users/"+bobID, aliceToken, nil)
	require.Equal(t, http.StatusForbidden, r.code)
}

func TestSearchResolvesBeforeID(t *testing.T) {
	s := newServer(t)
	s.register(t, "findme@example.com")
	_, adminToken := s.admin(t, "admin@example.com")

	r := s.do(t, http.MethodGet, "/api/users/search?q=findme&page=1&limit=10", adminToken, nil)
	require.Equal(t, http.StatusOK, r.code)
	list, _ := r.data()["list"].([]any)
	require.Len(t, list, 1)
	pagination, _ := r.data()["pagination"].(map[string]any)
	require.Equal(t, float64(1), pagination["total"])
}

func TestAdminUserManagement(t *testing.T) {
	s := newServer(t)
	_, adminToken := s.admin(t, "admin@example.com")

	r := s.do(t, http.MethodPost, "/api/user", adminToken, map[string]string{
		"email":    "managed@example.com",
		"password": testPassword,
		"name":     "Managed",
	})
	require.Equal(t, http.StatusOK, r.code)
	id, _ := r.data()["id"].(string)
	require.NotEmpty(t, id)

	r = s.do(t, http.MethodPatch, "/api/users/"+id+"/role", adminToken, map[string]string{"roleName": store.RolePro})
	require.Equal(t, http.StatusOK, r.code)
	role, _ := r.data()["role"].(map[string]any)
	require.Equal(t, store.RolePro, role["name"])

	r = s.do(t, http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, r.code)
	list, _ := r.data()["list"].([]any)
	require.Len(t, list, 2)

	r = s.do(t, http.MethodDelete, "/api/users/"+id, adminToken, nil)
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, "User deleted successfully", r.message())

	r = s.do(t, http.MethodGet, "/api/users/"+id, adminToken, nil)
	require.Equal(t, http.StatusNotFound, r.code)
}

func TestRoleRoutes(t *testing.T) {
	s := newServer(t)
	_, viewerToken, _ := s.register(t, "viewer@example.com")
	_, adminToken := s.admin(t, "admin@example.com")

	r := s.do(t, http.MethodGet, "/api/roles", viewerToken, nil)
	require.Equal(t, http.StatusOK, r.code)

	r = s.do(t, http.MethodPost, "/api/roles", viewerToken, map[string]string{"name": "editor"})
	require.Equal(t, http.StatusForbidden, r.code)

	r = s.do(t, http.MethodPost, "/api/roles", adminToken, map[string]string{"name": "editor", "description": "Edits"})
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, "EDITOR", r.data()["name"])
	id, _ := r.data()["id"].(string)

	r = s.do(t, http.MethodDelete, "/api/roles/"+id, adminToken, nil)
	require.Equal(t, http.StatusOK, r.code)
}

func TestProfileRoutes(t *testing.T) {
	s := newServer(t)
	_, access, _ := s.register(t, "me@example.com")

	r := s.do(t, http.MethodPut, "/api/profile", access, map[string]string{"name": "Renamed"})
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, "Renamed", r.data()["name"])

	r = s.do(t, http.MethodPost, "/api/profile/change-password", access, map[string]string{
		"currentPassword": testPassword,
		"newPassword":     "another-password-456",
	})
	require.Equal(t, http.StatusOK, r.code)
	require.Equal(t, "Password changed successfully", r.message())

	r = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "me@example.com",
		"password": "another-password-456",
	})
	require.Equal(t, http.StatusOK, r.code)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	s := newServer(t)
	r := s.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, r.code)
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)
	r := s.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, r.code)
}

func TestReplayRunsBeforeAuthentication(t *testing.T) {
	s := newServer(t, func(c *authcore.Config) {
		c.Replay.Enabled = true
		c.Replay.Secret = "replay-secret-0123456789"
	})
	guard := s.engine.ReplayGuard().Guard()

	// No header and no bearer: the signature is rejected first.
	r := s.do(t, http.MethodPost, "/api/auth/change-password", "", nil)
	require.Equal(t, http.StatusNotAcceptable, r.code)
	require.Equal(t, "Missing Signature", r.message())

	// Valid signature, no bearer: authentication is next.
	header := guard.NewHeader()
	r = s.do(t, http.MethodPost, "/api/auth/change-password", "", nil, replay.Header, header)
	require.Equal(t, http.StatusUnauthorized, r.code)

	// The nonce was consumed by the first attempt.
	r = s.do(t, http.MethodPost, "/api/auth/change-password", "", nil, replay.Header, header)
	require.Equal(t, http.StatusConflict, r.code)
	require.Equal(t, uint64(2), s.engine.MetricsSnapshot().Counters[authcore.MetricReplayRejected])
}

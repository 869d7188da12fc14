package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore/apperr"
	"github.com/MrEthical07/authcore/cache"
	"github.com/MrEthical07/authcore/replay"
	"github.com/MrEthical07/authcore/router"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

type fakeAuth map[string]*session.Principal

func (f fakeAuth) Authenticate(_ context.Context, token string) (*session.Principal, error) {
	if token == "expired" {
		return nil, apperr.New(apperr.KindTokenExpired, "Token expired")
	}
	p, ok := f[token]
	if !ok {
		return nil, apperr.Auth("Invalid token")
	}
	return p, nil
}

func principal(id, role string) *session.Principal {
	return session.NewPrincipal(store.User{ID: id, Role: store.Role{Name: role}}, time.Now().Add(time.Hour))
}

var users = fakeAuth{
	"admin-token":  principal("admin", store.RoleAdmin),
	"pro-token":    principal("pro", store.RolePro),
	"viewer-token": principal("viewer", store.RoleViewer),
}

type result struct {
	code    int
	message string
	called  bool
}

func run(t *testing.T, method, pattern, path string, headers map[string]string, steps ...router.Step) result {
	t.Helper()
	var res result
	table := router.NewTable()
	table.Handle(method, pattern, func(r *router.Request) (*router.Response, error) {
		res.called = true
		return router.Data(map[string]string{"ip": r.ClientIP}), nil
	}, steps...)

	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.NewDispatcher(table, nil, ClientIP()).ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	res.code = rec.Code
	if msg, ok := body["message"].(string); ok {
		res.message = msg
	}
	return res
}

func TestAuthenticateStatuses(t *testing.T) {
	steps := []router.Step{Authenticate(users)}

	res := run(t, "GET", "/me", "/me", nil, steps...)
	require.Equal(t, http.StatusUnauthorized, res.code)
	require.Equal(t, "Authentication required", res.message)

	res = run(t, "GET", "/me", "/me", map[string]string{"Authorization": "Token abc"}, steps...)
	require.Equal(t, http.StatusUnauthorized, res.code)
	require.Equal(t, "Bearer token required", res.message)

	res = run(t, "GET", "/me", "/me", map[string]string{"Authorization": "Bearer expired"}, steps...)
	require.Equal(t, apperr.StatusTokenExpired, res.code)

	res = run(t, "GET", "/me", "/me", map[string]string{"Authorization": "Bearer nope"}, steps...)
	require.Equal(t, http.StatusUnauthorized, res.code)
	require.False(t, res.called)

	res = run(t, "GET", "/me", "/me", map[string]string{"Authorization": "Bearer viewer-token"}, steps...)
	require.Equal(t, http.StatusOK, res.code)
	require.True(t, res.called)
}

func TestRequireSelfOrAdminShortCircuits(t *testing.T) {
	steps := []router.Step{Authenticate(users), RequireSelfOrAdmin("id")}

	res := run(t, "GET", "/users/:id", "/users/someone-else",
		map[string]string{"Authorization": "Bearer viewer-token"}, steps...)
	require.Equal(t, http.StatusForbidden, res.code)
	require.Equal(t, "Access denied", res.message)
	require.False(t, res.called)

	res = run(t, "GET", "/users/:id", "/users/viewer",
		map[string]string{"Authorization": "Bearer viewer-token"}, steps...)
	require.Equal(t, http.StatusOK, res.code)

	res = run(t, "GET", "/users/:id", "/users/anyone",
		map[string]string{"Authorization": "Bearer admin-token"}, steps...)
	require.Equal(t, http.StatusOK, res.code)
}

func TestRequireSelfOrAdminMissingParam(t *testing.T) {
	res := run(t, "GET", "/users/:other", "/users/x",
		map[string]string{"Authorization": "Bearer viewer-token"},
		Authenticate(users), RequireSelfOrAdmin("id"))
	require.Equal(t, http.StatusBadRequest, res.code)
	require.Equal(t, "Missing parameter: id", res.message)
}

func TestRoleChecks(t *testing.T) {
	auth := func(token string) map[string]string { return map[string]string{"Authorization": "Bearer " + token} }

	res := run(t, "GET", "/admin", "/admin", auth("pro-token"), Authenticate(users), RequireAdmin())
	require.Equal(t, http.StatusForbidden, res.code)

	res = run(t, "GET", "/pro", "/pro", auth("pro-token"), Authenticate(users), RequireAdminOrPro())
	require.Equal(t, http.StatusOK, res.code)

	res = run(t, "GET", "/pro", "/pro", auth("viewer-token"), Authenticate(users), RequireAdminOrPro())
	require.Equal(t, http.StatusForbidden, res.code)

	res = run(t, "GET", "/roles", "/roles", auth("viewer-token"), Authenticate(users), RequireRoles(store.RoleAdmin, store.RolePro))
	require.Equal(t, http.StatusForbidden, res.code)
	require.Equal(t, "Required roles: ADMIN, PRO", res.message)
}

func TestPredicatesWithoutPrincipal(t *testing.T) {
	for _, step := range []router.Step{RequireAdmin(), RequireAdminOrPro(), RequireRoles("X"), RequireSelfOrAdmin("id")} {
		res := run(t, "GET", "/x/:id", "/x/1", nil, step)
		require.Equal(t, http.StatusUnauthorized, res.code)
		require.False(t, res.called)
	}
}

func TestClientIPPriority(t *testing.T) {
	r := &router.Request{Request: httptest.NewRequest("GET", "/", nil)}
	r.RemoteAddr = "192.0.2.1:5555"
	require.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	require.Equal(t, "203.0.113.5", clientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", clientIP(r))

	r.Header.Set("CF-Connecting-IP", "2001:db8::1")
	require.Equal(t, "2001:db8::1", clientIP(r))
}

func TestThrottle(t *testing.T) {
	th := NewThrottler(0.001, 2)
	steps := []router.Step{th.Step()}
	hdr := map[string]string{"X-Real-IP": "10.1.1.1"}

	require.Equal(t, http.StatusOK, run(t, "GET", "/t", "/t", hdr, steps...).code)
	require.Equal(t, http.StatusOK, run(t, "GET", "/t", "/t", hdr, steps...).code)
	res := run(t, "GET", "/t", "/t", hdr, steps...)
	require.Equal(t, http.StatusTooManyRequests, res.code)
	require.Equal(t, "Too Many Requests", res.message)

	other := map[string]string{"X-Real-IP": "10.1.1.2"}
	require.Equal(t, http.StatusOK, run(t, "GET", "/t", "/t", other, steps...).code)
	require.Equal(t, 2, th.Tracked())

	require.Nil(t, NewThrottler(0, 1))
}

func TestReplayRunsBeforeAuthentication(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	guard, err := replay.NewGuard(cache.NewRedisStore(rdb, "test"),
		replay.Config{Enabled: true, Secret: []byte("0123456789abcdef0123")})
	require.NoError(t, err)

	steps := []router.Step{Replay(guard), Authenticate(users)}

	res := run(t, "POST", "/refresh", "/refresh", map[string]string{"Authorization": "Bearer nope"}, steps...)
	require.Equal(t, http.StatusNotAcceptable, res.code)
	require.Equal(t, "Missing Signature", res.message)

	hdr := map[string]string{replay.Header: guard.NewHeader(), "Authorization": "Bearer admin-token"}
	require.Equal(t, http.StatusOK, run(t, "POST", "/refresh", "/refresh", hdr, steps...).code)

	res = run(t, "POST", "/refresh", "/refresh", hdr, steps...)
	require.Equal(t, http.StatusConflict, res.code)
	require.Equal(t, "Duplicate Request", res.message)
}

func TestThrottleSweepsIdleClientsPeriodically(t *testing.T) {
	th := NewThrottler(10, 1)
	now := time.Unix(1_700_000_000, 0)
	th.now = func() time.Time { return now }

	th.limiter("10.0.0.1")
	th.limiter("10.0.0.2")
	require.Equal(t, 2, th.Tracked())

	now = now.Add(th.idle + time.Second)
	th.limiter("10.0.0.3")
	require.Equal(t, 1, th.Tracked())
	swept := th.lastSweep

	for i := 0; i < 100; i++ {
		now = now.Add(time.Millisecond)
		th.limiter(fmt.Sprintf("192.0.2.%d", i))
	}
	require.Equal(t, swept, th.lastSweep)
	require.Equal(t, 101, th.Tracked())

	now = now.Add(th.idle + time.Second)
	th.limiter("10.0.0.4")
	require.Equal(t, 1, th.Tracked())
	require.Equal(t, now, th.lastSweep)
}

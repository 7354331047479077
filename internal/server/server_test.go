package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danigit7/E-commerce/internal/config"
	"github.com/danigit7/E-commerce/internal/model"
)

// =========================================================================
// HARNESS
// =========================================================================
//
// These tests build the server exactly as main does (config → New) over an
// in-memory sqlite store and, where revocation matters, a miniredis instance.
// Requests go through the real router, middleware chain and cookie handling.

func testConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"DB_PATH":            ":memory:",
		"JWT_SECRET":         "server-test-access-secret",
		"JWT_REFRESH_SECRET": "server-test-refresh-secret",
		"BCRYPT_COST":        "4",
		"CLIENT_URL":         "http://shop.test",
	}
	for k, v := range extra {
		env[k] = v
	}
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

type client struct {
	t      *testing.T
	srv    *httptest.Server
	http   *http.Client
	bearer string
}

func newTestServer(t *testing.T, extra map[string]string) (*Server, *client) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(context.Background(), testConfig(t, extra), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return s, &client{
		t:   t,
		srv: ts,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// do sends a request and decodes a JSON object body (if any).
func (c *client) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rdr)
	require.NoError(c.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func (c *client) register(name, email string) map[string]any {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/api/auth/register",
		`{"name":"`+name+`","email":"`+email+`","password":"secret1"}`)
	require.Equal(c.t, http.StatusCreated, status, body)
	c.bearer = body["accessToken"].(string)
	return body
}

func (c *client) cookieNames() []string {
	var names []string
	for _, ck := range c.http.Jar.Cookies(mustURL(c.t, c.srv.URL)) {
		names = append(names, ck.Name)
	}
	return names
}

// =========================================================================
// FLOWS
// =========================================================================

func TestServer_SessionLifecycle(t *testing.T) {
	_, c := newTestServer(t, nil)

	user := c.register("Ada", "ada@example.com")
	assert.Contains(t, c.cookieNames(), "refreshToken")

	status, me := c.do(http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, user["id"], me["id"])

	status, v := c.do(http.MethodGet, "/api/auth/verify", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, v["valid"])

	// Refresh uses only the cookie.
	c.bearer = ""
	status, refreshed := c.do(http.MethodPost, "/api/auth/refresh", "")
	require.Equal(t, http.StatusOK, status)
	c.bearer = refreshed["accessToken"].(string)

	status, _ = c.do(http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, c.cookieNames(), "refreshToken", "logout clears the cookie")

	c.bearer = ""
	status, body := c.do(http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "no_token", body["error"])
}

func TestServer_BearerGuard(t *testing.T) {
	_, c := newTestServer(t, nil)

	status, body := c.do(http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "no_token", body["error"])
	assert.Equal(t, "Not authorized, no token", body["message"])

	c.bearer = "garbage"
	status, body = c.do(http.MethodGet, "/api/wishlist", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_invalid", body["error"])
}

func TestServer_RevokedRefreshTokenIsRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	_, c := newTestServer(t, map[string]string{"REDIS_URL": "redis://" + mr.Addr()})

	c.register("Ada", "ada@example.com")
	stolen := c.http.Jar.Cookies(mustURL(t, c.srv.URL))
	require.NotEmpty(t, stolen)

	status, _ := c.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, mr.Keys(), 1, "the refresh token's jti is on the revocation list")

	// Replaying the old cookie after logout fails.
	c.http.Jar.SetCookies(mustURL(t, c.srv.URL), stolen)
	c.bearer = ""
	status, body := c.do(http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token_invalid", body["error"])
}

func TestServer_DeactivationTakesEffectImmediately(t *testing.T) {
	s, c := newTestServer(t, nil)
	c.register("Ada", "ada@example.com")

	status, _ := c.do(http.MethodGet, "/api/wishlist", "")
	require.Equal(t, http.StatusOK, status)

	admin := promoteAdmin(t, s, "root@example.com")
	ada := c.bearer
	c.bearer = admin
	status, page := c.do(http.MethodGet, "/api/admin/users", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, page["total"])

	var adaID string
	for _, u := range page["users"].([]any) {
		if m := u.(map[string]any); m["email"] == "ada@example.com" {
			adaID = m["id"].(string)
		}
	}
	require.NotEmpty(t, adaID)

	status, toggled := c.do(http.MethodPut, "/api/admin/users/"+adaID+"/toggle-status", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, toggled["isActive"])

	// The cache in front of the store was evicted by the write, so Ada's
	// still-valid refresh token is refused on the very next call.
	c.bearer = ""
	status, _ = c.do(http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	c.bearer = ada
	status, body := c.do(http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "account_deactivated", body["error"])
}

func TestServer_AdminGuard(t *testing.T) {
	_, c := newTestServer(t, nil)
	c.register("Ada", "ada@example.com")

	status, body := c.do(http.MethodGet, "/api/admin/users", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_admin", body["error"])
	assert.Equal(t, "Not authorized as an admin", body["message"])

	c.bearer = ""
	status, body = c.do(http.MethodGet, "/api/admin/users", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "no_token", body["error"])
}

func TestServer_WishlistAndProfile(t *testing.T) {
	_, c := newTestServer(t, nil)
	c.register("Ada", "ada@example.com")

	status, body := c.do(http.MethodPost, "/api/wishlist/sku-1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"sku-1"}, body["items"])

	status, body = c.do(http.MethodGet, "/api/wishlist", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"sku-1"}, body["items"])

	status, body = c.do(http.MethodPut, "/api/users/profile", `{"name":"Ada L."}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada L.", body["name"])
	assert.Equal(t, []any{"sku-1"}, body["wishlist"])
}

func TestServer_HealthAndCORS(t *testing.T) {
	_, c := newTestServer(t, nil)

	status, body := c.do(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])

	req, err := http.NewRequest(http.MethodOptions, c.srv.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://shop.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := c.http.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://shop.test", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestServer_GoogleRoutesOnlyWhenConfigured(t *testing.T) {
	_, off := newTestServer(t, nil)
	status, _ := off.do(http.MethodGet, "/api/auth/google", "")
	assert.Equal(t, http.StatusNotFound, status)

	_, on := newTestServer(t, map[string]string{
		"GOOGLE_CLIENT_ID":     "client-id",
		"GOOGLE_CLIENT_SECRET": "client-secret",
	})
	req, err := http.NewRequest(http.MethodGet, on.srv.URL+"/api/auth/google", nil)
	require.NoError(t, err)
	resp, err := on.http.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://accounts.google.com/"))
}

func TestNew_FailsOnUnreachableRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(context.Background(), testConfig(t, map[string]string{"REDIS_URL": "redis://127.0.0.1:1"}), logger)
	assert.Error(t, err)
}

// promoteAdmin registers an account through the API, flips its role in the
// store (there is no API for that) and logs it in again.
func promoteAdmin(t *testing.T, s *Server, email string) string {
	t.Helper()

	status, body := postJSON(t, s, "/api/auth/register", `{"name":"Root","email":"`+email+`","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, status, body)

	u, err := s.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	u.Role = model.RoleAdmin
	require.NoError(t, s.users.Save(context.Background(), u))

	status, body = postJSON(t, s, "/api/auth/login", `{"email":"`+email+`","password":"secret1"}`)
	require.Equal(t, http.StatusOK, status, body)
	return body["accessToken"].(string)
}

// postJSON calls the router directly, outside any client's cookie jar.
func postJSON(t *testing.T, s *Server, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	var out map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return rr.Code, out
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/domain/models"
	"passport/internal/lib/apperr"
	"passport/internal/lib/cookie"
	"passport/internal/lib/jwt"
	"passport/internal/metrics"
	"passport/internal/services/access"
)

const identityURN = "urn:rollupid:identity/0xabc"

type fakeGrants struct {
	exchanged access.ExchangeRequest
	revoked   string
}

func (f *fakeGrants) ExchangeToken(_ context.Context, req access.ExchangeRequest) (*models.TokenSet, error) {
	f.exchanged = req
	if req.Code != "good" {
		return nil, apperr.BadRequest("invalid code")
	}
	return &models.TokenSet{AccessToken: "at", TokenType: "Bearer", ExpiresIn: 3600}, nil
}

func (f *fakeGrants) UserInfo(_ context.Context, token string) (map[string]any, error) {
	if token != "at" {
		return nil, apperr.Unauthorized("invalid access token")
	}
	return map[string]any{"sub": identityURN}, nil
}

func (f *fakeGrants) Revoke(_ context.Context, _, clientID string) error {
	if clientID == "missing" {
		return apperr.NotFound("authorization not found")
	}
	f.revoked = clientID
	return nil
}

func (f *fakeGrants) Authorizations(_ context.Context, identity string) ([]models.Authorization, error) {
	return []models.Authorization{{IdentityURN: identity, ClientID: "app-1", Scope: []string{"openid"}}}, nil
}

type fakeSessions struct{}

func (fakeSessions) ResolveIdentity(_ context.Context, token string) (string, error) {
	if token != "console-session" {
		return "", apperr.Unauthorized("no session")
	}
	return identityURN, nil
}

type fixture struct {
	router  chi.Router
	grants  *fakeGrants
	cookies *cookie.Manager
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fixture{
		grants: &fakeGrants{},
		cookies: cookie.New(cookie.Options{
			HashKey:  []byte("0123456789abcdef0123456789abcdef"),
			BlockKey: []byte("abcdef0123456789abcdef0123456789"),
		}),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.router = chi.NewRouter()
	Register(f.router, slog.New(slog.NewTextHandler(io.Discard, nil)), f.grants,
		jwt.NewKeySigner(key, "k1"), fakeSessions{}, f.cookies, f.metrics)
	return f
}

func (f *fixture) serve(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func (f *fixture) withConsoleSession(t *testing.T, r *http.Request) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, f.cookies.SetSession(rec, consoleClient, "console-session"))
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func tokenRequest(values url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestToken_Exchange(t *testing.T) {
	f := newFixture(t)

	res := f.serve(tokenRequest(url.Values{
		"grant_type":    {access.GrantAuthorizationCode},
		"code":          {"good"},
		"client_id":     {"app-1"},
		"client_secret": {"s3cret"},
		"redirect_uri":  {"https://app.test/cb"},
	}))

	require.Equal(t, http.StatusOK, res.Code)
	var set models.TokenSet
	require.NoError(t, json.NewDecoder(res.Body).Decode(&set))
	assert.Equal(t, "at", set.AccessToken)
	assert.Equal(t, "no-store", res.Header().Get("Cache-Control"))
	assert.Equal(t, "s3cret", f.grants.exchanged.ClientSecret)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokenExchanges.WithLabelValues(access.GrantAuthorizationCode, "true")))
}

func TestToken_BasicAuth(t *testing.T) {
	f := newFixture(t)

	r := tokenRequest(url.Values{"grant_type": {access.GrantAuthorizationCode}, "code": {"good"}})
	r.SetBasicAuth("app-2", "basic-secret")
	res := f.serve(r)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "app-2", f.grants.exchanged.ClientID)
	assert.Equal(t, "basic-secret", f.grants.exchanged.ClientSecret)
}

func TestToken_Rejected(t *testing.T) {
	f := newFixture(t)

	res := f.serve(tokenRequest(url.Values{"grant_type": {access.GrantAuthorizationCode}, "code": {"bad"}, "client_id": {"app-1"}}))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.JSONEq(t, `{"message":"invalid code"}`, res.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokenExchanges.WithLabelValues(access.GrantAuthorizationCode, "false")))
}

func TestUserInfo(t *testing.T) {
	f := newFixture(t)

	res := f.serve(httptest.NewRequest(http.MethodGet, "/userinfo", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Bearer", res.Header().Get("WWW-Authenticate"))

	r := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	r.Header.Set("Authorization", "Bearer at")
	res = f.serve(r)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"sub":"`+identityURN+`"}`, res.Body.String())
}

func TestJWKS(t *testing.T) {
	f := newFixture(t)

	res := f.serve(httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Len(t, body.Keys, 1)
	assert.Equal(t, "k1", body.Keys[0]["kid"])
	assert.Equal(t, "RSA", body.Keys[0]["kty"])
	assert.NotContains(t, body.Keys[0], "d")
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)

	res := f.serve(httptest.NewRequest(http.MethodPost, "/settings/applications/app-1/revoke", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.serve(f.withConsoleSession(t, httptest.NewRequest(http.MethodPost, "/settings/applications/app-1/revoke", nil)))
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, "app-1", f.grants.revoked)

	res = f.serve(f.withConsoleSession(t, httptest.NewRequest(http.MethodPost, "/settings/applications/missing/revoke", nil)))
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestApplications(t *testing.T) {
	f := newFixture(t)

	res := f.serve(f.withConsoleSession(t, httptest.NewRequest(http.MethodGet, "/settings/applications", nil)))
	require.Equal(t, http.StatusOK, res.Code)

	var list []models.Authorization
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "app-1", list[0].ClientID)
}

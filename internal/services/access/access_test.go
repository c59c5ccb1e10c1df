package access

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/domain/models"
	"passport/internal/lib/apperr"
	"passport/internal/lib/jwt"
	"passport/internal/lib/urn"
	"passport/internal/storage"
	redis2 "passport/internal/storage/redis"
)

const (
	testIssuer = "https://passport.test"
	clientID   = "app-1"
	secret     = "s3cret"
	redirect   = "https://app.test/callback"
)

type memAuthorizations struct {
	mu   sync.Mutex
	list map[string]models.Authorization
}

func (m *memAuthorizations) key(identity, client string) string { return identity + "|" + client }

func (m *memAuthorizations) UpsertAuthorization(_ context.Context, a *models.Authorization) (*models.Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(a.IdentityURN, a.ClientID)
	saved := *a
	if old, ok := m.list[k]; ok {
		saved.Scope = append([]string{}, old.Scope...)
		for _, s := range a.Scope {
			if !old.Covers([]string{s}) {
				saved.Scope = append(saved.Scope, s)
			}
		}
	}
	m.list[k] = saved
	return &saved, nil
}

func (m *memAuthorizations) Authorization(_ context.Context, identity, client string) (*models.Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.list[m.key(identity, client)]
	if !ok {
		return nil, storage.ErrAuthorizationNotFound
	}
	return &a, nil
}

func (m *memAuthorizations) AuthorizationsByIdentity(_ context.Context, identity string) ([]models.Authorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Authorization
	for _, a := range m.list {
		if a.IdentityURN == identity {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAuthorizations) DeleteAuthorization(_ context.Context, identity, client string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(identity, client)
	if _, ok := m.list[k]; !ok {
		return storage.ErrAuthorizationNotFound
	}
	delete(m.list, k)
	return nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func (m *memTokens) SaveRefreshToken(_ context.Context, t *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = *t
	return nil
}

func (m *memTokens) RefreshToken(_ context.Context, id string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, storage.ErrTokenInvalid
	}
	return &t, nil
}

func (m *memTokens) RevokeRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[id]; !ok {
		return storage.ErrTokenInvalid
	}
	delete(m.tokens, id)
	return nil
}

func (m *memTokens) RevokeAuthorizationTokens(_ context.Context, authzURN string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.AuthorizationURN == authzURN {
			delete(m.tokens, id)
		}
	}
	return nil
}

type fakeClients struct{}

func (fakeClients) ValidateClient(_ context.Context, id, s string) (*models.App, error) {
	if id != clientID || s != secret {
		return nil, apperr.Unauthorized("invalid client credentials")
	}
	return &models.App{ClientID: id, RedirectURI: redirect}, nil
}

type fakeIdentities struct {
	identity models.Identity
	accounts []models.Account
}

func (f *fakeIdentities) IdentityProfile(_ context.Context, u string) (*models.Identity, error) {
	if u != f.identity.URN {
		return nil, apperr.NotFound("identity not found")
	}
	return &f.identity, nil
}

func (f *fakeIdentities) IdentityAccounts(_ context.Context, u string) ([]models.Account, error) {
	var out []models.Account
	for _, a := range f.accounts {
		if a.IdentityURN == u {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeIdentities) Account(_ context.Context, u string) (*models.Account, error) {
	for _, a := range f.accounts {
		if a.URN == u {
			return &a, nil
		}
	}
	return nil, apperr.NotFound("account not found")
}

type fixture struct {
	svc        *Access
	authz      *memAuthorizations
	tokens     *memTokens
	identities *fakeIdentities
	verifier   *jwt.Verifier
	email      models.Account
	github     models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := jwt.NewKeySigner(key, "1")
	verifier := jwt.NewVerifier(signer, testIssuer, nil)

	identityURN := urn.NewIdentity()
	address := gofakeit.Email()
	email := models.Account{
		URN: urn.Account("email", address), IdentityURN: identityURN, Type: models.AccountEmail, Identifier: address,
	}
	login := gofakeit.Username()
	github := models.Account{
		URN: urn.Account("github", login), IdentityURN: identityURN, Type: models.AccountGithub, Identifier: login,
	}
	identities := &fakeIdentities{
		identity: models.Identity{URN: identityURN, DisplayName: gofakeit.Name(), Picture: gofakeit.URL()},
		accounts: []models.Account{email, github},
	}

	f := &fixture{
		authz:      &memAuthorizations{list: map[string]models.Authorization{}},
		tokens:     &memTokens{tokens: map[string]models.RefreshToken{}},
		identities: identities,
		verifier:   verifier,
		email:      email,
		github:     github,
	}
	f.svc = New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		f.authz,
		redis2.NewAuthCodeStore(rdb),
		f.tokens,
		fakeClients{},
		identities,
		jwt.NewIssuer(signer, testIssuer),
		verifier,
		TTL{Code: time.Minute, AccessToken: time.Hour, RefreshToken: 24 * time.Hour, IDToken: time.Hour},
	)
	return f
}

func (f *fixture) request(scope ...string) AuthorizeRequest {
	return AuthorizeRequest{
		IdentityURN:  f.identities.identity.URN,
		ClientID:     clientID,
		RedirectURI:  redirect,
		Scope:        scope,
		State:        gofakeit.UUID(),
		ResponseType: ResponseTypeCode,
	}
}

func TestAuthorize_ExchangeCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.request(models.ScopeOpenID, models.ScopeProfile, models.ScopeEmail, models.ScopeConnectedAccounts)
	req.Persona = models.PersonaData{
		Email:             f.email.URN,
		ConnectedAccounts: models.ConnectedAccounts{URNs: []string{f.github.URN}},
	}
	res, err := f.svc.Authorize(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Code)
	assert.Equal(t, req.State, res.State)

	set, err := f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantAuthorizationCode, Code: res.Code, RedirectURI: redirect, ClientID: clientID, ClientSecret: secret,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", set.TokenType)
	assert.NotEmpty(t, set.AccessToken)
	assert.NotEmpty(t, set.RefreshToken)
	require.NotEmpty(t, set.IDToken)

	idClaims, err := f.verifier.Verify(ctx, set.IDToken, jwt.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, f.identities.identity.DisplayName, idClaims["name"])
	assert.Equal(t, f.email.Identifier, idClaims["email"])

	info, err := f.svc.UserInfo(ctx, set.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.identities.identity.URN, info["sub"])
	assert.Equal(t, f.email.Identifier, info["email"])
	connected, ok := info[models.ScopeConnectedAccounts].([]connectedAccount)
	require.True(t, ok)
	require.Len(t, connected, 1)
	assert.Equal(t, f.github.URN, connected[0].URN)

	// codes are single use
	_, err = f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantAuthorizationCode, Code: res.Code, RedirectURI: redirect, ClientID: clientID, ClientSecret: secret,
	})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestAuthorize_Invalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := f.request(models.ScopeOpenID)
	req.ResponseType = "token"
	_, err := f.svc.Authorize(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	req = f.request(models.ScopeEmail)
	req.Persona.Email = f.github.URN
	_, err = f.svc.Authorize(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	req = f.request(models.ScopeEmail)
	req.Persona.Email = urn.Account("email", gofakeit.Email())
	_, err = f.svc.Authorize(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	req = f.request(models.ScopeConnectedAccounts)
	req.Persona.ConnectedAccounts.URNs = []string{urn.Account("github", "stranger")}
	_, err = f.svc.Authorize(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestExchangeCode_Mismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		req  func(code string) ExchangeRequest
		want error
	}{
		{"wrong redirect", func(code string) ExchangeRequest {
			return ExchangeRequest{GrantType: GrantAuthorizationCode, Code: code, RedirectURI: "https://evil.test", ClientID: clientID, ClientSecret: secret}
		}, apperr.ErrBadRequest},
		{"wrong secret", func(code string) ExchangeRequest {
			return ExchangeRequest{GrantType: GrantAuthorizationCode, Code: code, ClientID: clientID, ClientSecret: "nope"}
		}, apperr.ErrUnauthorized},
		{"no client auth", func(code string) ExchangeRequest {
			return ExchangeRequest{GrantType: GrantAuthorizationCode, Code: code, RedirectURI: redirect, ClientID: clientID}
		}, apperr.ErrUnauthorized},
		{"missing redirect", func(code string) ExchangeRequest {
			return ExchangeRequest{GrantType: GrantAuthorizationCode, Code: code, ClientID: clientID, ClientSecret: secret}
		}, apperr.ErrBadRequest},
		{"unknown grant", func(code string) ExchangeRequest {
			return ExchangeRequest{GrantType: "password", ClientID: clientID}
		}, apperr.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Authorize(ctx, f.request(models.ScopeOpenID))
			require.NoError(t, err)
			_, err = f.svc.ExchangeToken(ctx, tt.req(res.Code))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExchangeCode_PKCE(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	verifier := gofakeit.LetterN(64)
	sum := sha256.Sum256([]byte(verifier))
	req := f.request(models.ScopeProfile)
	req.PKCE = &models.PKCE{CodeChallenge: base64.RawURLEncoding.EncodeToString(sum[:]), Method: models.PKCEMethodS256}

	res, err := f.svc.Authorize(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantAuthorizationCode, Code: res.Code, RedirectURI: redirect,
		ClientID: clientID, ClientSecret: secret, CodeVerifier: "wrong",
	})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	// a verifier does not replace the client secret
	res, err = f.svc.Authorize(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantAuthorizationCode, Code: res.Code, RedirectURI: redirect, ClientID: clientID, CodeVerifier: verifier,
	})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	set, err := f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantAuthorizationCode, Code: res.Code, RedirectURI: redirect,
		ClientID: clientID, ClientSecret: secret, CodeVerifier: verifier,
	})
	require.NoError(t, err)
	assert.Empty(t, set.IDToken)
}

func TestRefresh_RotatesAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Authorize(ctx, f.request(models.ScopeProfile))
	require.NoError(t, err)
	first, err := f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantAuthorizationCode, Code: res.Code, RedirectURI: redirect, ClientID: clientID, ClientSecret: secret,
	})
	require.NoError(t, err)

	_, err = f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantRefreshToken, RefreshToken: first.RefreshToken, ClientID: clientID,
	})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	refreshed, err := f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantRefreshToken, RefreshToken: first.RefreshToken, ClientID: clientID, ClientSecret: secret,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, refreshed.RefreshToken)

	// the rotated token is spent
	_, err = f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantRefreshToken, RefreshToken: first.RefreshToken, ClientID: clientID, ClientSecret: secret,
	})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, f.svc.Revoke(ctx, f.identities.identity.URN, clientID))
	_, err = f.svc.ExchangeToken(ctx, ExchangeRequest{
		GrantType: GrantRefreshToken, RefreshToken: refreshed.RefreshToken, ClientID: clientID, ClientSecret: secret,
	})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.UserInfo(ctx, refreshed.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	assert.ErrorIs(t, f.svc.Revoke(ctx, f.identities.identity.URN, clientID), apperr.ErrNotFound)
}

func TestPreauthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pre, err := f.svc.Preauthorize(ctx, f.request(models.ScopeOpenID))
	require.NoError(t, err)
	assert.False(t, pre.Preauthorized)

	req := f.request(models.ScopeOpenID, models.ScopeEmail)
	req.Persona.Email = f.email.URN
	_, err = f.svc.Authorize(ctx, req)
	require.NoError(t, err)

	pre, err = f.svc.Preauthorize(ctx, f.request(models.ScopeEmail))
	require.NoError(t, err)
	assert.True(t, pre.Preauthorized)
	assert.NotEmpty(t, pre.Code)

	pre, err = f.svc.Preauthorize(ctx, f.request(models.ScopeEmail, models.ScopeProfile))
	require.NoError(t, err)
	assert.False(t, pre.Preauthorized)

	list, err := f.svc.Authorizations(ctx, f.identities.identity.URN)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestVerifyPKCE(t *testing.T) {
	sum := sha256.Sum256([]byte("verifier"))
	s256 := &models.PKCE{CodeChallenge: base64.RawURLEncoding.EncodeToString(sum[:]), Method: models.PKCEMethodS256}

	assert.True(t, VerifyPKCE(s256, "verifier"))
	assert.False(t, VerifyPKCE(s256, "other"))
	assert.False(t, VerifyPKCE(s256, ""))
	assert.True(t, VerifyPKCE(&models.PKCE{CodeChallenge: "plain", Method: models.PKCEMethodPlain}, "plain"))
	assert.False(t, VerifyPKCE(&models.PKCE{CodeChallenge: "x", Method: "S512"}, "x"))
}

package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"

	"passport/internal/config"
	"passport/internal/domain/models"
)

type fakeIdP struct {
	*httptest.Server
	idToken  string
	userInfo map[string]any
	verifier string
}

func newFakeIdP(t *testing.T, userInfo map[string]any) *fakeIdP {
	t.Helper()
	f := &fakeIdP{userInfo: userInfo}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.verifier = r.PostForm.Get("code_verifier")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		resp := map[string]any{"access_token": "at", "token_type": "Bearer", "expires_in": 3600}
		if f.idToken != "" {
			resp["id_token"] = f.idToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(f.userInfo)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIdP) options() []Option {
	return []Option{
		WithEndpoint(oauth2.Endpoint{AuthURL: f.URL + "/authorize", TokenURL: f.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}),
		WithUserInfoURL(f.URL + "/userinfo"),
	}
}

var providerConfig = config.ProviderConfig{ClientID: "cid", ClientSecret: "secret"}

func TestGithub_Exchange(t *testing.T) {
	idp := newFakeIdP(t, map[string]any{"login": "octocat", "name": "Mona", "avatar_url": "https://avatars/1"})
	p := NewGithub(providerConfig, "https://passport.test/cb", idp.options()...)

	verifier := oauth2.GenerateVerifier()
	profile, err := p.Exchange(context.Background(), "good-code", verifier)
	require.NoError(t, err)
	assert.Equal(t, verifier, idp.verifier)
	assert.Equal(t, models.AccountGithub, profile.Type)
	assert.Equal(t, "octocat", profile.Identifier)
	assert.Equal(t, "Mona", profile.Alias)
	assert.Equal(t, "https://avatars/1", profile.Picture)

	_, err = p.Exchange(context.Background(), "bad-code", verifier)
	assert.Error(t, err)
}

func TestGoogle_ExchangeWithIDToken(t *testing.T) {
	idp := newFakeIdP(t, nil)
	idp.idToken = "header.payload.sig"
	p := NewGoogle(providerConfig, "https://passport.test/cb", idp.options()...).
		WithValidator(func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
			if token != "header.payload.sig" || audience != "cid" {
				return nil, errors.New("bad token")
			}
			return &idtoken.Payload{Claims: map[string]any{"email": "a@gmail.com", "name": "A", "picture": "p"}}, nil
		})

	profile, err := p.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)
	assert.Equal(t, "a@gmail.com", profile.Identifier)
	assert.Equal(t, models.AccountGoogle, profile.Type)
}

func TestGoogle_ExchangeFallsBackToUserInfo(t *testing.T) {
	idp := newFakeIdP(t, map[string]any{"email": "b@gmail.com", "name": "B"})
	p := NewGoogle(providerConfig, "https://passport.test/cb", idp.options()...)

	profile, err := p.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)
	assert.Equal(t, "b@gmail.com", profile.Identifier)
	assert.Equal(t, "B", profile.Alias)
}

func TestMicrosoft_ExchangeUsesSubWithoutEmail(t *testing.T) {
	idp := newFakeIdP(t, map[string]any{"sub": "ms-sub", "name": "C"})
	p := NewMicrosoft(providerConfig, "https://passport.test/cb", idp.options()...)

	profile, err := p.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)
	assert.Equal(t, "ms-sub", profile.Identifier)
}

func TestAuthCodeURL_CarriesPKCE(t *testing.T) {
	p := NewGithub(providerConfig, "https://passport.test/authenticate/oauth/github/callback")
	raw := p.AuthCodeURL("state-1", oauth2.GenerateVerifier())

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, u.Query().Get("code_challenge"))
	assert.Equal(t, "cid", u.Query().Get("client_id"))
}

func TestRegistry(t *testing.T) {
	r := FromConfig(config.ProvidersConfig{Github: providerConfig, Google: providerConfig}, "https://passport.test")
	assert.Equal(t, []string{"github", "google"}, r.Names())

	_, err := r.Get("microsoft")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	p, err := r.Get("github")
	require.NoError(t, err)
	assert.Equal(t, models.AccountGithub, p.Name())
}

package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/domain/models"
)

func newManager() *Manager {
	return New(Options{
		HashKey:  securecookie.GenerateRandomKey(32),
		BlockKey: securecookie.GenerateRandomKey(32),
		Domain:   "passport.test",
	})
}

// replay turns the cookies set on rec into a request
func replay(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			continue
		}
		r.AddCookie(c)
	}
	return r
}

func TestSession_RoundTrip(t *testing.T) {
	m := newManager()
	token := gofakeit.UUID()

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetSession(rec, "passport", token))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "_passport_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotContains(t, cookies[0].Value, token)

	got, err := m.Session(replay(rec), "console")
	require.NoError(t, err)
	assert.Equal(t, token, got)

	_, err = m.Session(replay(rec), "third-party")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestSessionName(t *testing.T) {
	assert.Equal(t, "_passport_session", SessionName(""))
	assert.Equal(t, "_passport_session", SessionName("passport"))
	assert.Equal(t, "_passport_session_last", SessionName("app-1"))
}

func TestSession_Tampered(t *testing.T) {
	m := newManager()
	rec := httptest.NewRecorder()
	require.NoError(t, m.SetSession(rec, "", "token"))

	c := rec.Result().Cookies()[0]
	c.Value = c.Value[:len(c.Value)-2] + "xx"
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)

	_, err := m.Session(r, "")
	assert.ErrorIs(t, err, ErrMissing)

	// a cookie signed by another manager is rejected too
	_, err = newManager().Session(replay(rec), "")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestAuthzParams_RoundTrip(t *testing.T) {
	m := newManager()
	params := models.AuthzParams{
		ClientID:     "app-1",
		RedirectURI:  "https://app.test/cb",
		Scope:        []string{"openid", "email", "connected_accounts"},
		State:        gofakeit.LetterN(12),
		Prompt:       models.PromptConsent,
		RollupAction: models.ActionConnect,
		PKCE:         &models.PKCE{CodeChallenge: "abc", Method: models.PKCEMethodS256},
	}

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetAuthzParams(rec, params))
	require.Len(t, rec.Result().Cookies(), 2)

	byClient, err := m.AuthzParams(replay(rec), "app-1")
	require.NoError(t, err)
	assert.Equal(t, params, byClient)

	last, err := m.AuthzParams(replay(rec), "")
	require.NoError(t, err)
	assert.Equal(t, params, last)

	assert.Error(t, m.SetAuthzParams(httptest.NewRecorder(), models.AuthzParams{}))
}

func TestDestroyAuthzParams(t *testing.T) {
	m := newManager()
	rec := httptest.NewRecorder()
	m.DestroyAuthzParams(rec, "app-1")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Equal(t, "", c.Value)
		assert.Less(t, c.MaxAge, 0)
	}
}

func TestFlash_ConsumedOnRead(t *testing.T) {
	m := newManager()
	rec := httptest.NewRecorder()
	require.NoError(t, m.SetFlash(rec, FlashSignout))

	out := httptest.NewRecorder()
	assert.Equal(t, FlashSignout, m.Flash(out, replay(rec)))

	expired := out.Result().Cookies()
	require.Len(t, expired, 1)
	assert.Less(t, expired[0].MaxAge, 0)

	assert.Equal(t, "", m.Flash(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestOAuthState_RoundTrip(t *testing.T) {
	m := newManager()
	st := models.OAuthState{State: "s", Verifier: "v", ClientID: "app-1"}

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetOAuthState(rec, "github", st))

	got, err := m.OAuthState(replay(rec), "github")
	require.NoError(t, err)
	assert.Equal(t, st, got)

	_, err = m.OAuthState(replay(rec), "google")
	assert.ErrorIs(t, err, ErrMissing)
}

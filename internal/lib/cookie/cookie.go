// Package cookie owns the format of every cookie the passport sets.
//
// The user session is encrypted and signed, everything else is signed only.
package cookie

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"

	"passport/internal/domain/models"
)

const (
	sessionCookie     = "_passport_session"
	authzParamsCookie = "_passport_authz_params_"
	flashCookie       = "_passport_flash"
	oauthStateCookie  = "_passport_oauth_"

	lastSuffix = "last"

	SessionMaxAge     = 7776000  // 90 days
	AuthzParamsMaxAge = 34560000 // browsers cap cookies at 400 days
	FlashMaxAge       = 10
	OAuthStateMaxAge  = 300

	FlashSignout = "SIGNOUT"
)

// ErrMissing is returned when the cookie is absent or does not decode
var ErrMissing = errors.New("cookie missing or invalid")

// FirstPartyClient reports whether clientID is one of the passport's own apps
func FirstPartyClient(clientID string) bool {
	return clientID == "" || clientID == "passport" || clientID == "console"
}

type Options struct {
	HashKey  []byte
	BlockKey []byte
	Domain   string
	Secure   bool
}

// Manager reads and writes passport cookies
type Manager struct {
	session *securecookie.SecureCookie
	authz   *securecookie.SecureCookie
	flash   *securecookie.SecureCookie
	oauth   *securecookie.SecureCookie
	domain  string
	secure  bool
}

// New creates cookie manager; BlockKey must be 16, 24 or 32 bytes
func New(opts Options) *Manager {
	codec := func(block []byte, maxAge int) *securecookie.SecureCookie {
		return securecookie.New(opts.HashKey, block).
			MaxAge(maxAge).
			SetSerializer(securecookie.JSONEncoder{})
	}
	return &Manager{
		session: codec(opts.BlockKey, SessionMaxAge),
		authz:   codec(nil, AuthzParamsMaxAge),
		flash:   codec(nil, FlashMaxAge),
		oauth:   codec(nil, OAuthStateMaxAge),
		domain:  opts.Domain,
		secure:  opts.Secure,
	}
}

// SessionName is the session cookie used for a client; third party clients use the "last" session
func SessionName(clientID string) string {
	if FirstPartyClient(clientID) {
		return sessionCookie
	}
	return sessionCookie + "_" + lastSuffix
}

// AuthzParamsName is the authorization params cookie of a client, or of the last client when empty
func AuthzParamsName(clientID string) string {
	if clientID == "" {
		clientID = lastSuffix
	}
	return authzParamsCookie + clientID
}

func (m *Manager) SetSession(w http.ResponseWriter, clientID, token string) error {
	return m.write(w, m.session, SessionName(clientID), token, SessionMaxAge)
}

// Session returns the session token stored for the client
func (m *Manager) Session(r *http.Request, clientID string) (string, error) {
	var token string
	if err := m.read(r, m.session, SessionName(clientID), &token); err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrMissing
	}
	return token, nil
}

func (m *Manager) DestroySession(w http.ResponseWriter, clientID string) {
	m.expire(w, SessionName(clientID))
}

// cookie wire format keeps scope space delimited
type authzParams struct {
	ClientID     string       `json:"client_id"`
	RedirectURI  string       `json:"redirect_uri"`
	Scope        string       `json:"scope"`
	State        string       `json:"state"`
	Prompt       string       `json:"prompt,omitempty"`
	LoginHint    string       `json:"login_hint,omitempty"`
	RollupAction string       `json:"rollup_action,omitempty"`
	PKCE         *models.PKCE `json:"pkce,omitempty"`
}

// SetAuthzParams stores params under both the client's cookie and the "last" cookie
func (m *Manager) SetAuthzParams(w http.ResponseWriter, p models.AuthzParams) error {
	if p.ClientID == "" {
		return errors.New("missing client id in authorization parameters")
	}
	v := authzParams{
		ClientID:     p.ClientID,
		RedirectURI:  p.RedirectURI,
		Scope:        strings.Join(p.Scope, " "),
		State:        p.State,
		Prompt:       p.Prompt,
		LoginHint:    p.LoginHint,
		RollupAction: p.RollupAction,
		PKCE:         p.PKCE,
	}
	if err := m.write(w, m.authz, AuthzParamsName(p.ClientID), v, AuthzParamsMaxAge); err != nil {
		return err
	}
	return m.write(w, m.authz, AuthzParamsName(""), v, AuthzParamsMaxAge)
}

// AuthzParams reads params of a client, or of the last client when clientID is empty
func (m *Manager) AuthzParams(r *http.Request, clientID string) (models.AuthzParams, error) {
	var v authzParams
	if err := m.read(r, m.authz, AuthzParamsName(clientID), &v); err != nil {
		return models.AuthzParams{}, err
	}
	return models.AuthzParams{
		ClientID:     v.ClientID,
		RedirectURI:  v.RedirectURI,
		Scope:        strings.Fields(v.Scope),
		State:        v.State,
		Prompt:       v.Prompt,
		LoginHint:    v.LoginHint,
		RollupAction: v.RollupAction,
		PKCE:         v.PKCE,
	}, nil
}

func (m *Manager) DestroyAuthzParams(w http.ResponseWriter, clientID string) {
	m.expire(w, AuthzParamsName(clientID))
	m.expire(w, AuthzParamsName(""))
}

func (m *Manager) SetFlash(w http.ResponseWriter, message string) error {
	return m.write(w, m.flash, flashCookie, message, FlashMaxAge)
}

// Flash returns the flash message and clears it
func (m *Manager) Flash(w http.ResponseWriter, r *http.Request) string {
	var msg string
	if err := m.read(r, m.flash, flashCookie, &msg); err != nil {
		return ""
	}
	m.expire(w, flashCookie)
	return msg
}

func (m *Manager) SetOAuthState(w http.ResponseWriter, provider string, st models.OAuthState) error {
	return m.write(w, m.oauth, oauthStateCookie+provider, st, OAuthStateMaxAge)
}

func (m *Manager) OAuthState(r *http.Request, provider string) (models.OAuthState, error) {
	var st models.OAuthState
	err := m.read(r, m.oauth, oauthStateCookie+provider, &st)
	return st, err
}

func (m *Manager) DestroyOAuthState(w http.ResponseWriter, provider string) {
	m.expire(w, oauthStateCookie+provider)
}

func (m *Manager) write(w http.ResponseWriter, sc *securecookie.SecureCookie, name string, value any, maxAge int) error {
	encoded, err := sc.Encode(name, value)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.build(name, encoded, maxAge))
	return nil
}

func (m *Manager) read(r *http.Request, sc *securecookie.SecureCookie, name string, dst any) error {
	c, err := r.Cookie(name)
	if err != nil {
		return ErrMissing
	}
	if err := sc.Decode(name, c.Value, dst); err != nil {
		return errors.Join(ErrMissing, err)
	}
	return nil
}

func (m *Manager) expire(w http.ResponseWriter, name string) {
	c := m.build(name, "", -1)
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (m *Manager) build(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

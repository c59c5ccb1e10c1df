// Package authorize drives the authorization request of a client application:
// session resolution, app and scope validation, consent and the redirect back to the client.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"passport/internal/domain/models"
	"passport/internal/lib/apperr"
	"passport/internal/lib/jwt"
	"passport/internal/lib/logger/sl"
	"passport/internal/services/access"
	"passport/internal/services/authorize/interfaces"
	"passport/internal/storage"
)

// SessionAudience is the audience of passport session tokens
const SessionAudience = "passport"

var (
	// ErrNoSession means the request carries no usable session
	ErrNoSession = errors.New("no session")
	// ErrSessionInvalid means the session expired or its identity is gone
	ErrSessionInvalid = errors.New("session is no longer valid")
)

type Authorize struct {
	log        *slog.Logger
	apps       interfaces.AppProvider
	identities interfaces.IdentityProvider
	access     interfaces.AccessProvider
	sessions   interfaces.SessionVerifier
}

func New(
	log *slog.Logger,
	apps interfaces.AppProvider,
	identities interfaces.IdentityProvider,
	grants interfaces.AccessProvider,
	sessions interfaces.SessionVerifier,
) *Authorize {
	return &Authorize{
		log:        log,
		apps:       apps,
		identities: identities,
		access:     grants,
		sessions:   sessions,
	}
}

// Outcome of an authorization request: either a redirect or a consent screen
type Outcome struct {
	Redirect string
	Consent  *models.ConsentPayload
}

// ParseParams reads the authorization request parameters off a query
func ParseParams(q url.Values) (models.AuthzParams, error) {
	p := models.AuthzParams{
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        strings.Fields(q.Get("scope")),
		State:        q.Get("state"),
		Prompt:       q.Get("prompt"),
		LoginHint:    q.Get("login_hint"),
		RollupAction: q.Get("rollup_action"),
	}
	if p.ClientID == "" {
		return p, apperr.BadRequest("client_id is required")
	}
	if p.State == "" {
		return p, apperr.BadRequest("state is required")
	}

	challenge, method := q.Get("code_challenge"), q.Get("code_challenge_method")
	switch {
	case challenge == "" && method != "":
		return p, apperr.BadRequest("code_challenge is required")
	case challenge != "":
		if method == "" {
			method = models.PKCEMethodPlain
		}
		if method != models.PKCEMethodS256 && method != models.PKCEMethodPlain {
			return p, apperr.BadRequest("unsupported code_challenge_method")
		}
		p.PKCE = &models.PKCE{CodeChallenge: challenge, Method: method}
	}
	return p, nil
}

// ResolveIdentity returns the identity a session token belongs to
func (a *Authorize) ResolveIdentity(ctx context.Context, sessionToken string) (string, error) {
	const op = "authorize.ResolveIdentity"

	if sessionToken == "" {
		return "", ErrNoSession
	}
	claims, err := a.sessions.Verify(ctx, sessionToken, jwt.Session, SessionAudience)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return "", ErrSessionInvalid
		}
		if errors.Is(err, storage.ErrTokenInvalid) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	identity := jwt.Subject(claims)
	valid, err := a.identities.IsValid(ctx, identity)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !valid {
		return "", ErrSessionInvalid
	}
	return identity, nil
}

// Begin validates the request for an authenticated identity and decides between
// a direct redirect (preauthorized) and the consent screen
func (a *Authorize) Begin(ctx context.Context, identityURN string, p models.AuthzParams) (*Outcome, error) {
	const op = "authorize.Begin"
	log := a.log.With(slog.String("op", op), slog.String("client_id", p.ClientID))

	app, redirectURI, err := a.validate(ctx, p)
	if err != nil {
		return nil, err
	}
	p.RedirectURI = redirectURI

	if p.Prompt != models.PromptConsent {
		pre, err := a.access.Preauthorize(ctx, a.request(identityURN, p, models.PersonaData{}))
		if err != nil {
			return nil, err
		}
		if pre.Preauthorized {
			log.Info("request preauthorized")
			return &Outcome{Redirect: withQuery(redirectURI, url.Values{"code": {pre.Code}, "state": {pre.State}})}, nil
		}
	}
	if p.Prompt == models.PromptNone {
		return &Outcome{Redirect: withQuery(redirectURI, url.Values{"error": {"consent_required"}, "state": {p.State}})}, nil
	}

	user, err := a.identities.IdentityProfile(ctx, identityURN)
	if err != nil {
		return nil, err
	}
	catalog, err := a.apps.AppScopes(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := a.identities.IdentityAccounts(ctx, identityURN)
	if err != nil {
		log.Error("failed to fetch accounts", sl.Err(err))
		return nil, err
	}

	consent := &models.ConsentPayload{
		ClientID:       p.ClientID,
		RedirectURI:    redirectURI,
		State:          p.State,
		App:            *app,
		User:           *user,
		RequestedScope: p.Scope,
		ScopeMeta:      []models.Scope{},
	}
	for _, s := range catalog {
		if slices.Contains(p.Scope, s.Name) {
			consent.ScopeMeta = append(consent.ScopeMeta, s)
		}
	}
	if slices.Contains(p.Scope, models.ScopeEmail) {
		for _, acc := range accounts {
			if acc.Type.EmailCapable() {
				consent.EmailAccounts = append(consent.EmailAccounts, acc)
			}
		}
	}
	if slices.Contains(p.Scope, models.ScopeConnectedAccounts) {
		consent.ConnectedAccounts = accounts
	}
	return &Outcome{Consent: consent}, nil
}

// Confirm records the consent and returns the redirect carrying the authorization code
func (a *Authorize) Confirm(
	ctx context.Context,
	identityURN string,
	p models.AuthzParams,
	granted []string,
	persona models.PersonaData,
) (string, error) {
	const op = "authorize.Confirm"
	log := a.log.With(slog.String("op", op), slog.String("client_id", p.ClientID))

	_, redirectURI, err := a.validate(ctx, p)
	if err != nil {
		return "", err
	}
	for _, s := range granted {
		if !slices.Contains(p.Scope, s) {
			return "", apperr.BadRequest("granted scope was not requested: " + s)
		}
	}
	p.RedirectURI = redirectURI
	p.Scope = granted

	res, err := a.access.Authorize(ctx, a.request(identityURN, p, persona))
	if err != nil {
		return "", err
	}

	log.Info("consent confirmed")
	return withQuery(redirectURI, url.Values{"code": {res.Code}, "state": {res.State}}), nil
}

// Cancel returns the redirect telling the client the user denied access
func (a *Authorize) Cancel(ctx context.Context, p models.AuthzParams) (string, error) {
	_, redirectURI, err := a.validate(ctx, p)
	if err != nil {
		return "", err
	}
	return withQuery(redirectURI, url.Values{"error": {"access_denied"}, "state": {p.State}}), nil
}

// AuthenticateURL is where an unauthenticated request is sent to log in
func AuthenticateURL(p models.AuthzParams) string {
	path := "/authenticate/" + url.PathEscape(p.ClientID)
	if p.RollupAction != models.ActionConnect && p.RollupAction != models.ActionReconnect {
		path += "/account"
	}
	q := url.Values{}
	if p.Prompt != "" {
		q.Set("prompt", p.Prompt)
	}
	if p.LoginHint != "" {
		q.Set("login_hint", p.LoginHint)
	}
	if p.RollupAction != "" {
		q.Set("rollup_action", p.RollupAction)
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// SignoutURL is where a request with a stale session is sent
func SignoutURL(clientID string) string {
	return "/authenticate/" + url.PathEscape(clientID)
}

func (a *Authorize) validate(ctx context.Context, p models.AuthzParams) (*models.App, string, error) {
	app, err := a.apps.AppProfile(ctx, p.ClientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, "", apperr.BadRequest("unknown client_id")
		}
		return nil, "", err
	}

	redirectURI := p.RedirectURI
	switch {
	case redirectURI == "":
		redirectURI = app.RedirectURI
	case redirectURI != app.RedirectURI:
		return nil, "", apperr.BadRequest("redirect_uri does not match the registered redirect uri")
	}
	if redirectURI == "" {
		return nil, "", apperr.BadRequest("client has no redirect uri")
	}

	if err := a.apps.ValidateScope(ctx, app, p.Scope); err != nil {
		return nil, "", err
	}
	return app, redirectURI, nil
}

func (a *Authorize) request(identityURN string, p models.AuthzParams, persona models.PersonaData) access.AuthorizeRequest {
	return access.AuthorizeRequest{
		IdentityURN:  identityURN,
		ClientID:     p.ClientID,
		RedirectURI:  p.RedirectURI,
		Scope:        p.Scope,
		Persona:      persona,
		State:        p.State,
		ResponseType: access.ResponseTypeCode,
		PKCE:         p.PKCE,
	}
}

// withQuery appends params to a url, keeping its existing query
func withQuery(raw string, params url.Values) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

package token

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/jwk"

	"passport/internal/domain/models"
	"passport/internal/http/respond"
	"passport/internal/lib/apperr"
	"passport/internal/lib/cookie"
	"passport/internal/lib/logger/sl"
	"passport/internal/metrics"
	"passport/internal/services/access"
)

// Grants issues, inspects and revokes tokens
type Grants interface {
	ExchangeToken(ctx context.Context, req access.ExchangeRequest) (*models.TokenSet, error)
	UserInfo(ctx context.Context, accessToken string) (map[string]any, error)
	Revoke(ctx context.Context, identityURN, clientID string) error
	Authorizations(ctx context.Context, identityURN string) ([]models.Authorization, error)
}

type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

type SessionResolver interface {
	ResolveIdentity(ctx context.Context, sessionToken string) (string, error)
}

// consoleClient owns the session used by the settings pages
const consoleClient = "passport"

type serverAPI struct {
	log      *slog.Logger
	grants   Grants
	keys     KeySource
	sessions SessionResolver
	cookies  *cookie.Manager
	metrics  *metrics.Metrics
}

func Register(
	r chi.Router,
	log *slog.Logger,
	grants Grants,
	keys KeySource,
	sessions SessionResolver,
	cookies *cookie.Manager,
	m *metrics.Metrics,
) {
	s := &serverAPI{log: log, grants: grants, keys: keys, sessions: sessions, cookies: cookies, metrics: m}

	r.Post("/token", s.Token)
	r.Get("/userinfo", s.UserInfo)
	r.Get("/.well-known/jwks.json", s.JWKS)
	r.Get("/settings/applications", s.Applications)
	r.Post("/settings/applications/{clientId}/revoke", s.Revoke)
}

// Token exchanges a code or a refresh token
func (s *serverAPI) Token(w http.ResponseWriter, r *http.Request) {
	const op = "http.token.Token"
	log := s.log.With(slog.String("op", op))

	if err := r.ParseForm(); err != nil {
		respond.Error(w, r, log, apperr.BadRequest("invalid form"))
		return
	}
	req := access.ExchangeRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID, req.ClientSecret = id, secret
	}

	set, err := s.grants.ExchangeToken(r.Context(), req)
	s.metrics.TokenExchange(req.GrantType, err == nil)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	respond.JSON(w, http.StatusOK, set)
}

func (s *serverAPI) UserInfo(w http.ResponseWriter, r *http.Request) {
	const op = "http.token.UserInfo"
	log := s.log.With(slog.String("op", op))

	token, ok := bearer(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		respond.Error(w, r, log, apperr.Unauthorized("bearer token required"))
		return
	}
	claims, err := s.grants.UserInfo(r.Context(), token)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	respond.JSON(w, http.StatusOK, claims)
}

// JWKS publishes the verification keys
func (s *serverAPI) JWKS(w http.ResponseWriter, r *http.Request) {
	const op = "http.token.JWKS"
	log := s.log.With(slog.String("op", op))

	set, err := s.keys.KeySet(r.Context())
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	body, err := json.Marshal(set)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := w.Write(body); err != nil {
		log.Warn("failed to write key set", sl.Err(err))
	}
}

func (s *serverAPI) Applications(w http.ResponseWriter, r *http.Request) {
	const op = "http.token.Applications"
	log := s.log.With(slog.String("op", op))

	identity, err := s.identity(r)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	list, err := s.grants.Authorizations(r.Context(), identity)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

// Revoke drops the grant of a client for the signed in identity
func (s *serverAPI) Revoke(w http.ResponseWriter, r *http.Request) {
	const op = "http.token.Revoke"
	log := s.log.With(slog.String("op", op))

	identity, err := s.identity(r)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	if err := s.grants.Revoke(r.Context(), identity, chi.URLParam(r, "clientId")); err != nil {
		respond.Error(w, r, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *serverAPI) identity(r *http.Request) (string, error) {
	token, _ := s.cookies.Session(r, consoleClient)
	identity, err := s.sessions.ResolveIdentity(r.Context(), token)
	if err != nil {
		return "", apperr.Unauthorized("session required")
	}
	return identity, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

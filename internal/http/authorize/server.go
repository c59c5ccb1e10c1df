package authorize

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"passport/internal/domain/models"
	"passport/internal/http/respond"
	"passport/internal/lib/apperr"
	"passport/internal/lib/cookie"
	"passport/internal/lib/logger/sl"
	"passport/internal/metrics"
	"passport/internal/services/authorize"
)

// Authorizer is the authorization flow the handlers drive
type Authorizer interface {
	ResolveIdentity(ctx context.Context, sessionToken string) (string, error)
	Begin(ctx context.Context, identityURN string, p models.AuthzParams) (*authorize.Outcome, error)
	Confirm(ctx context.Context, identityURN string, p models.AuthzParams, granted []string, persona models.PersonaData) (string, error)
	Cancel(ctx context.Context, p models.AuthzParams) (string, error)
}

type serverAPI struct {
	log     *slog.Logger
	authz   Authorizer
	cookies *cookie.Manager
	metrics *metrics.Metrics
}

func Register(r chi.Router, log *slog.Logger, authz Authorizer, cookies *cookie.Manager, m *metrics.Metrics) {
	s := &serverAPI{log: log, authz: authz, cookies: cookies, metrics: m}
	r.Get("/authorize", s.Authorize)
	r.Post("/authorize", s.Decide)
}

// Authorize handles the authorization request: login redirect, preauthorized redirect or consent payload
func (s *serverAPI) Authorize(w http.ResponseWriter, r *http.Request) {
	const op = "http.authorize.Authorize"
	log := s.log.With(slog.String("op", op))
	ctx := r.Context()

	params, err := authorize.ParseParams(r.URL.Query())
	if err != nil {
		s.metrics.AuthorizeOutcome("error")
		respond.Error(w, r, log, err)
		return
	}

	identity := ""
	err = authorize.ErrNoSession
	if params.Prompt != models.PromptLogin {
		token, _ := s.cookies.Session(r, params.ClientID)
		identity, err = s.authz.ResolveIdentity(ctx, token)
	}

	switch {
	case errors.Is(err, authorize.ErrSessionInvalid):
		s.cookies.DestroySession(w, params.ClientID)
		if err := s.cookies.SetFlash(w, cookie.FlashSignout); err != nil {
			log.Warn("failed to set flash", sl.Err(err))
		}
		if err := s.cookies.SetAuthzParams(w, params); err != nil {
			respond.Error(w, r, log, err)
			return
		}
		s.metrics.AuthorizeOutcome("signout")
		respond.Redirect(w, r, authorize.SignoutURL(params.ClientID))
		return
	case errors.Is(err, authorize.ErrNoSession):
		if err := s.cookies.SetAuthzParams(w, params); err != nil {
			respond.Error(w, r, log, err)
			return
		}
		s.metrics.AuthorizeOutcome("authenticate")
		respond.Redirect(w, r, authorize.AuthenticateURL(params))
		return
	case err != nil:
		s.metrics.AuthorizeOutcome("error")
		respond.Error(w, r, log, err)
		return
	}

	out, err := s.authz.Begin(ctx, identity, params)
	if err != nil {
		s.metrics.AuthorizeOutcome("error")
		respond.Error(w, r, log, err)
		return
	}
	if out.Redirect != "" {
		s.cookies.DestroyAuthzParams(w, params.ClientID)
		s.metrics.AuthorizeOutcome("preauthorized")
		respond.Redirect(w, r, out.Redirect)
		return
	}

	if err := s.cookies.SetAuthzParams(w, params); err != nil {
		respond.Error(w, r, log, err)
		return
	}
	s.metrics.AuthorizeOutcome("consent")
	respond.JSON(w, http.StatusOK, out.Consent)
}

// Decide handles the consent form: cancel or confirm
func (s *serverAPI) Decide(w http.ResponseWriter, r *http.Request) {
	const op = "http.authorize.Decide"
	log := s.log.With(slog.String("op", op))
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		respond.Error(w, r, log, apperr.BadRequest("invalid form"))
		return
	}

	params := models.AuthzParams{
		ClientID:    r.PostForm.Get("client_id"),
		RedirectURI: r.PostForm.Get("redirect_uri"),
		State:       r.PostForm.Get("state"),
	}
	if params.ClientID == "" {
		respond.Error(w, r, log, apperr.BadRequest("client_id is required"))
		return
	}
	if params.State == "" {
		respond.Error(w, r, log, apperr.BadRequest("state is required"))
		return
	}
	granted := splitScopes(r.PostForm.Get("scopes"))
	params.Scope = granted

	// the pending request holds what was asked for and the pkce challenge
	stored, err := s.cookies.AuthzParams(r, params.ClientID)
	pending := err == nil && stored.ClientID == params.ClientID && stored.State == params.State
	if pending {
		params.Scope = stored.Scope
		params.PKCE = stored.PKCE
		if params.RedirectURI == "" {
			params.RedirectURI = stored.RedirectURI
		}
	}

	if r.PostForm.Get("cancel") != "" {
		location, err := s.authz.Cancel(ctx, params)
		if err != nil {
			respond.Error(w, r, log, err)
			return
		}
		s.cookies.DestroyAuthzParams(w, params.ClientID)
		s.metrics.AuthorizeOutcome("cancelled")
		respond.Redirect(w, r, location)
		return
	}

	token, _ := s.cookies.Session(r, params.ClientID)
	identity, err := s.authz.ResolveIdentity(ctx, token)
	if err != nil {
		if errors.Is(err, authorize.ErrNoSession) || errors.Is(err, authorize.ErrSessionInvalid) {
			respond.Error(w, r, log, apperr.Unauthorized("session required"))
			return
		}
		respond.Error(w, r, log, err)
		return
	}

	if !pending {
		log.Warn("consent submitted without a pending authorization request", slog.String("client_id", params.ClientID))
		respond.Error(w, r, log, apperr.BadRequest("authorization request not found or expired"))
		return
	}

	var persona models.PersonaData
	if raw := r.PostForm.Get("personaData"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &persona); err != nil {
			respond.Error(w, r, log, apperr.BadRequest("invalid personaData"))
			return
		}
	}

	location, err := s.authz.Confirm(ctx, identity, params, granted, persona)
	if err != nil {
		s.metrics.AuthorizeOutcome("error")
		respond.Error(w, r, log, err)
		return
	}
	s.cookies.DestroyAuthzParams(w, params.ClientID)
	s.metrics.AuthorizeOutcome("confirmed")
	respond.Redirect(w, r, location)
}

// splitScopes reads the comma separated scopes field, tolerating spaces
func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
}

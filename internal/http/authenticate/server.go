package authenticate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"passport/internal/domain/models"
	"passport/internal/http/respond"
	"passport/internal/lib/apperr"
	"passport/internal/lib/cookie"
	"passport/internal/lib/logger/sl"
	"passport/internal/metrics"
)

// Authenticator logs users in
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) (string, error)
	IssueSession(ctx context.Context, identityURN string) (string, error)
	Providers() []string
	StartOAuth(providerName, clientID, rollupAction string) (string, models.OAuthState, error)
	CompleteOAuth(ctx context.Context, providerName string, st models.OAuthState, gotState, code, linkTo string) (string, error)
	ContinueURL(clientID string, params *models.AuthzParams) string
}

// SessionResolver maps a session token onto its identity
type SessionResolver interface {
	ResolveIdentity(ctx context.Context, sessionToken string) (string, error)
}

type serverAPI struct {
	log      *slog.Logger
	auth     Authenticator
	sessions SessionResolver
	cookies  *cookie.Manager
	metrics  *metrics.Metrics
}

func Register(
	r chi.Router,
	log *slog.Logger,
	auth Authenticator,
	sessions SessionResolver,
	cookies *cookie.Manager,
	m *metrics.Metrics,
) {
	s := &serverAPI{log: log, auth: auth, sessions: sessions, cookies: cookies, metrics: m}

	r.Get("/authenticate/oauth/{provider}/callback", s.OAuthCallback)
	r.Route("/authenticate/{clientId}", func(r chi.Router) {
		r.Get("/", s.Options)
		r.Get("/account", s.Options)
		r.Post("/password", s.PasswordLogin)
		r.Post("/register", s.Register)
		r.Get("/oauth/{provider}", s.OAuthStart)
	})
	r.Post("/signout", s.Signout)
}

type optionsResponse struct {
	ClientID     string   `json:"client_id"`
	Providers    []string `json:"providers"`
	Flash        string   `json:"flash,omitempty"`
	LoginHint    string   `json:"login_hint,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	RollupAction string   `json:"rollup_action,omitempty"`
}

// Options lists the ways a user can authenticate
func (s *serverAPI) Options(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	respond.JSON(w, http.StatusOK, optionsResponse{
		ClientID:     chi.URLParam(r, "clientId"),
		Providers:    s.auth.Providers(),
		Flash:        s.cookies.Flash(w, r),
		LoginHint:    q.Get("login_hint"),
		Prompt:       q.Get("prompt"),
		RollupAction: q.Get("rollup_action"),
	})
}

func (s *serverAPI) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	const op = "http.authenticate.PasswordLogin"
	log := s.log.With(slog.String("op", op))

	if err := r.ParseForm(); err != nil {
		respond.Error(w, r, log, apperr.BadRequest("invalid form"))
		return
	}
	identity, err := s.auth.Login(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	s.metrics.Login("password", err == nil)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	s.startSession(w, r, log, identity)
}

func (s *serverAPI) Register(w http.ResponseWriter, r *http.Request) {
	const op = "http.authenticate.Register"
	log := s.log.With(slog.String("op", op))

	if err := r.ParseForm(); err != nil {
		respond.Error(w, r, log, apperr.BadRequest("invalid form"))
		return
	}
	identity, err := s.auth.Register(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	s.metrics.Login("register", err == nil)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	s.startSession(w, r, log, identity)
}

// OAuthStart redirects to the identity provider
func (s *serverAPI) OAuthStart(w http.ResponseWriter, r *http.Request) {
	const op = "http.authenticate.OAuthStart"
	log := s.log.With(slog.String("op", op))

	provider := chi.URLParam(r, "provider")
	location, st, err := s.auth.StartOAuth(provider, chi.URLParam(r, "clientId"), r.URL.Query().Get("rollup_action"))
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	if err := s.cookies.SetOAuthState(w, provider, st); err != nil {
		respond.Error(w, r, log, err)
		return
	}
	respond.Redirect(w, r, location)
}

// OAuthCallback completes the provider login
func (s *serverAPI) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	const op = "http.authenticate.OAuthCallback"
	log := s.log.With(slog.String("op", op))
	ctx := r.Context()

	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		respond.Error(w, r, log, apperr.Unauthorized("identity provider returned "+e))
		return
	}

	st, err := s.cookies.OAuthState(r, provider)
	if err != nil {
		respond.Error(w, r, log, apperr.BadRequest("oauth state missing or expired"))
		return
	}
	s.cookies.DestroyOAuthState(w, provider)
	r = r.WithContext(withClientID(ctx, st.ClientID))

	linkTo := ""
	if st.RollupAction == models.ActionConnect {
		token, _ := s.cookies.Session(r, st.ClientID)
		if identity, err := s.sessions.ResolveIdentity(ctx, token); err == nil {
			linkTo = identity
		}
	}

	identity, err := s.auth.CompleteOAuth(ctx, provider, st, q.Get("state"), q.Get("code"), linkTo)
	s.metrics.Login(provider, err == nil)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	s.startSession(w, r, log, identity)
}

// Signout drops the session of a client
func (s *serverAPI) Signout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.Error(w, r, s.log, apperr.BadRequest("invalid form"))
		return
	}
	clientID := r.PostForm.Get("client_id")
	s.cookies.DestroySession(w, clientID)
	if err := s.cookies.SetFlash(w, cookie.FlashSignout); err != nil {
		s.log.Warn("failed to set flash", sl.Err(err))
	}
	respond.Redirect(w, r, "/authenticate/"+clientIDOrDefault(clientID))
}

// startSession sets the session cookie and sends the user on
func (s *serverAPI) startSession(w http.ResponseWriter, r *http.Request, log *slog.Logger, identity string) {
	clientID := clientIDFrom(r)

	token, err := s.auth.IssueSession(r.Context(), identity)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	if err := s.cookies.SetSession(w, clientID, token); err != nil {
		respond.Error(w, r, log, err)
		return
	}

	var params *models.AuthzParams
	if p, err := s.cookies.AuthzParams(r, clientID); err == nil && p.ClientID == clientID {
		params = &p
	}
	respond.Redirect(w, r, s.auth.ContinueURL(clientID, params))
}

type clientIDKey struct{}

func withClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// clientIDFrom reads the client from the route, or from the oauth state for callbacks
func clientIDFrom(r *http.Request) string {
	if id := chi.URLParam(r, "clientId"); id != "" {
		return id
	}
	id, _ := r.Context().Value(clientIDKey{}).(string)
	return id
}

func clientIDOrDefault(clientID string) string {
	if clientID == "" {
		return "passport"
	}
	return clientID
}

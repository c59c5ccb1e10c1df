// Package authenticate logs users in and hands out passport sessions.
package authenticate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"passport/internal/domain/models"
	"passport/internal/lib/apperr"
	"passport/internal/lib/cookie"
	"passport/internal/lib/jwt"
	"passport/internal/lib/logger/sl"
	"passport/internal/providers/oauth"
	"passport/internal/services/authenticate/interfaces"
)

const (
	sessionAudience = "passport"
	stateBytes      = 32
)

type Authenticate struct {
	log        *slog.Logger
	accounts   interfaces.AccountService
	issuer     interfaces.TokenIssuer
	providers  interfaces.ProviderRegistry
	sessionTTL time.Duration
	consoleURL string
}

func New(
	log *slog.Logger,
	accounts interfaces.AccountService,
	issuer interfaces.TokenIssuer,
	providers interfaces.ProviderRegistry,
	sessionTTL time.Duration,
	consoleURL string,
) *Authenticate {
	return &Authenticate{
		log:        log,
		accounts:   accounts,
		issuer:     issuer,
		providers:  providers,
		sessionTTL: sessionTTL,
		consoleURL: consoleURL,
	}
}

// Login checks email credentials
func (a *Authenticate) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", apperr.BadRequest("email and password are required")
	}
	return a.accounts.LoginEmail(ctx, email, password)
}

// Register creates an identity from email credentials
func (a *Authenticate) Register(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", apperr.BadRequest("email and password are required")
	}
	return a.accounts.RegisterEmail(ctx, email, password)
}

// IssueSession signs a session token for the identity
func (a *Authenticate) IssueSession(ctx context.Context, identityURN string) (string, error) {
	const op = "authenticate.IssueSession"

	token, _, err := a.issuer.Issue(ctx, jwt.Session, identityURN, []string{sessionAudience}, a.sessionTTL, nil)
	if err != nil {
		a.log.Error("failed to issue session", slog.String("op", op), sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// Providers lists the external providers a user can log in with
func (a *Authenticate) Providers() []string {
	return a.providers.Names()
}

// StartOAuth begins a provider login and returns the provider redirect with the state to keep
func (a *Authenticate) StartOAuth(providerName, clientID, rollupAction string) (string, models.OAuthState, error) {
	const op = "authenticate.StartOAuth"

	provider, err := a.providers.Get(providerName)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			return "", models.OAuthState{}, apperr.NotFound("unknown identity provider")
		}
		return "", models.OAuthState{}, fmt.Errorf("%s: %w", op, err)
	}

	state, err := jwt.NewOpaqueToken(stateBytes)
	if err != nil {
		return "", models.OAuthState{}, fmt.Errorf("%s: %w", op, err)
	}
	st := models.OAuthState{
		State:        state,
		Verifier:     oauth2.GenerateVerifier(),
		ClientID:     clientID,
		RollupAction: rollupAction,
	}
	return provider.AuthCodeURL(st.State, st.Verifier), st, nil
}

// CompleteOAuth finishes a provider login. linkTo is the identity of the current session;
// it is only used when the login was started to connect an account.
func (a *Authenticate) CompleteOAuth(
	ctx context.Context,
	providerName string,
	st models.OAuthState,
	gotState, code, linkTo string,
) (string, error) {
	const op = "authenticate.CompleteOAuth"
	log := a.log.With(slog.String("op", op), slog.String("provider", providerName))

	if gotState == "" || subtle.ConstantTimeCompare([]byte(gotState), []byte(st.State)) != 1 {
		log.Warn("oauth state mismatch")
		return "", apperr.BadRequest("invalid oauth state")
	}
	if code == "" {
		return "", apperr.BadRequest("code is required")
	}

	provider, err := a.providers.Get(providerName)
	if err != nil {
		return "", apperr.NotFound("unknown identity provider")
	}

	profile, err := provider.Exchange(ctx, code, st.Verifier)
	if err != nil {
		log.Error("provider exchange failed", sl.Err(err))
		return "", apperr.Wrap(apperr.CodeUnauthorized, "identity provider login failed", err)
	}

	if st.RollupAction != models.ActionConnect {
		linkTo = ""
	}
	return a.accounts.ResolveIdentity(ctx, *profile, linkTo)
}

// ContinueURL is where a user goes once authenticated: back to the pending authorization
// request, or to the console for first party clients
func (a *Authenticate) ContinueURL(clientID string, params *models.AuthzParams) string {
	if cookie.FirstPartyClient(clientID) || params == nil {
		return a.consoleURL
	}

	q := url.Values{}
	q.Set("client_id", params.ClientID)
	q.Set("state", params.State)
	if params.RedirectURI != "" {
		q.Set("redirect_uri", params.RedirectURI)
	}
	if len(params.Scope) > 0 {
		q.Set("scope", strings.Join(params.Scope, " "))
	}
	if params.PKCE != nil {
		q.Set("code_challenge", params.PKCE.CodeChallenge)
		q.Set("code_challenge_method", params.PKCE.Method)
	}
	if params.RollupAction != "" {
		q.Set("rollup_action", params.RollupAction)
	}
	if params.LoginHint != "" {
		q.Set("login_hint", params.LoginHint)
	}
	return "/authorize?" + q.Encode()
}

// Package access grants authorizations to applications and exchanges them for tokens.
package access

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"passport/internal/domain/models"
	"passport/internal/lib/apperr"
	"passport/internal/lib/jwt"
	"passport/internal/lib/logger/sl"
	"passport/internal/lib/urn"
	"passport/internal/services/access/interfaces"
	"passport/internal/storage"
)

const (
	ResponseTypeCode = "code"

	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"

	tokenTypeBearer = "Bearer"
	claimClientID   = "client_id"
)

// TTL groups the lifetimes of everything access hands out
type TTL struct {
	Code         time.Duration
	AccessToken  time.Duration
	RefreshToken time.Duration
	IDToken      time.Duration
}

type Access struct {
	log            *slog.Logger
	authorizations interfaces.AuthorizationStorage
	codes          interfaces.CodeStorage
	tokens         interfaces.TokenStorage
	clients        interfaces.ClientValidator
	identities     interfaces.IdentitySource
	issuer         interfaces.TokenIssuer
	verifier       interfaces.TokenVerifier
	ttl            TTL
	now            func() time.Time
}

func New(
	log *slog.Logger,
	authorizations interfaces.AuthorizationStorage,
	codes interfaces.CodeStorage,
	tokens interfaces.TokenStorage,
	clients interfaces.ClientValidator,
	identities interfaces.IdentitySource,
	issuer interfaces.TokenIssuer,
	verifier interfaces.TokenVerifier,
	ttl TTL,
) *Access {
	return &Access{
		log:            log,
		authorizations: authorizations,
		codes:          codes,
		tokens:         tokens,
		clients:        clients,
		identities:     identities,
		issuer:         issuer,
		verifier:       verifier,
		ttl:            ttl,
		now:            time.Now,
	}
}

// AuthorizeRequest is a grant the identity agreed to
type AuthorizeRequest struct {
	IdentityURN  string
	ClientID     string
	RedirectURI  string
	Scope        []string
	Persona      models.PersonaData
	State        string
	ResponseType string
	PKCE         *models.PKCE
}

// PreauthorizeResult tells whether an existing grant already covers a request
type PreauthorizeResult struct {
	Preauthorized bool
	Code          string
	State         string
}

// Authorize records the grant and issues a one-time authorization code
func (a *Access) Authorize(ctx context.Context, req AuthorizeRequest) (*models.AuthorizeResult, error) {
	const op = "access.Authorize"
	log := a.log.With(slog.String("op", op), slog.String("client_id", req.ClientID))

	if req.ResponseType != ResponseTypeCode {
		return nil, apperr.BadRequest("unsupported response_type")
	}
	if err := a.ValidatePersona(ctx, req.IdentityURN, req.Persona); err != nil {
		return nil, err
	}

	authzURN, err := urn.Authorization(req.IdentityURN, req.ClientID)
	if err != nil {
		return nil, apperr.BadRequest("invalid identity")
	}
	if _, err := a.authorizations.UpsertAuthorization(ctx, &models.Authorization{
		URN:         authzURN,
		IdentityURN: req.IdentityURN,
		ClientID:    req.ClientID,
		Scope:       req.Scope,
		Persona:     req.Persona,
	}); err != nil {
		log.Error("failed to save authorization", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	code := &models.AuthorizationCode{
		Code:        uuid.NewString(),
		IdentityURN: req.IdentityURN,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		State:       req.State,
		Persona:     req.Persona,
		PKCE:        req.PKCE,
		ExpiresAt:   a.now().Add(a.ttl.Code),
	}
	if err := a.codes.SaveAuthCode(ctx, code); err != nil {
		log.Error("failed to save authorization code", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("authorization granted")
	return &models.AuthorizeResult{Code: code.Code, State: req.State}, nil
}

// Preauthorize issues a code without consent when the identity already granted every requested scope
func (a *Access) Preauthorize(ctx context.Context, req AuthorizeRequest) (*PreauthorizeResult, error) {
	const op = "access.Preauthorize"

	existing, err := a.authorizations.Authorization(ctx, req.IdentityURN, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationNotFound) {
			return &PreauthorizeResult{}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !existing.Covers(req.Scope) {
		return &PreauthorizeResult{}, nil
	}

	req.Persona = existing.Persona
	res, err := a.Authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	return &PreauthorizeResult{Preauthorized: true, Code: res.Code, State: res.State}, nil
}

// ValidatePersona checks the selected accounts belong to the identity
func (a *Access) ValidatePersona(ctx context.Context, identityURN string, persona models.PersonaData) error {
	const op = "access.ValidatePersona"

	if persona.Email != "" {
		if !urn.Is(persona.Email, urn.KindAccount) {
			return apperr.BadRequest("bad data received for account identifier")
		}
		account, err := a.identities.Account(ctx, persona.Email)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.BadRequest("account provided does not belong to authenticated identity")
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if account.IdentityURN != identityURN {
			return apperr.BadRequest("account provided does not belong to authenticated identity")
		}
		if !account.Type.EmailCapable() {
			return apperr.BadRequest("account provided is not an email-compatible account")
		}
	}

	if persona.ConnectedAccounts.All || len(persona.ConnectedAccounts.URNs) == 0 {
		return nil
	}
	for _, u := range persona.ConnectedAccounts.URNs {
		if !urn.Is(u, urn.KindAccount) {
			return apperr.BadRequest("bad data received for list of account identifiers")
		}
	}
	owned, err := a.identities.IdentityAccounts(ctx, identityURN)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ownedURNs := make(map[string]struct{}, len(owned))
	for _, acc := range owned {
		ownedURNs[acc.URN] = struct{}{}
	}
	for _, u := range persona.ConnectedAccounts.URNs {
		if _, ok := ownedURNs[u]; !ok {
			return apperr.Unauthorized("mismatch in accounts provided vs accounts connected to identity")
		}
	}
	return nil
}

// ExchangeRequest is a token endpoint request
type ExchangeRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
}

// ExchangeToken issues tokens for an authorization code or a refresh token
func (a *Access) ExchangeToken(ctx context.Context, req ExchangeRequest) (*models.TokenSet, error) {
	if req.ClientID == "" {
		return nil, apperr.BadRequest("client_id is required")
	}
	switch req.GrantType {
	case GrantAuthorizationCode:
		return a.exchangeCode(ctx, req)
	case GrantRefreshToken:
		return a.exchangeRefresh(ctx, req)
	default:
		return nil, apperr.BadRequest("unsupported grant_type")
	}
}

func (a *Access) exchangeCode(ctx context.Context, req ExchangeRequest) (*models.TokenSet, error) {
	const op = "access.exchangeCode"
	log := a.log.With(slog.String("op", op), slog.String("client_id", req.ClientID))

	if err := a.authenticateClient(ctx, req); err != nil {
		return nil, err
	}

	code, err := a.codes.ConsumeAuthCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			log.Info("authorization code not found")
			return nil, apperr.BadRequest("invalid authorization code")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if code.ClientID != req.ClientID {
		log.Warn("authorization code presented by another client")
		return nil, apperr.BadRequest("invalid authorization code")
	}
	// a code bound to a redirect_uri needs the same value back
	if code.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		return nil, apperr.BadRequest("redirect_uri mismatch")
	}
	if code.PKCE != nil && !VerifyPKCE(code.PKCE, req.CodeVerifier) {
		return nil, apperr.BadRequest("invalid code_verifier")
	}

	authzURN, err := urn.Authorization(code.IdentityURN, code.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a.issueTokens(ctx, authzURN, code.IdentityURN, code.ClientID, code.Scope, code.Persona)
}

func (a *Access) exchangeRefresh(ctx context.Context, req ExchangeRequest) (*models.TokenSet, error) {
	const op = "access.exchangeRefresh"
	log := a.log.With(slog.String("op", op), slog.String("client_id", req.ClientID))

	if err := a.authenticateClient(ctx, req); err != nil {
		return nil, err
	}

	claims, err := a.verifier.Verify(ctx, req.RefreshToken, jwt.Refresh, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, apperr.Unauthorized("refresh token expired")
		}
		if errors.Is(err, storage.ErrTokenInvalid) {
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	record, err := a.tokens.RefreshToken(ctx, jwt.JTI(claims))
	if err != nil {
		if errors.Is(err, storage.ErrTokenInvalid) {
			log.Info("refresh token revoked")
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if record.ClientID != req.ClientID {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	authz, err := a.authorizations.Authorization(ctx, record.IdentityURN, record.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationNotFound) {
			return nil, apperr.Unauthorized("authorization revoked")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// rotation: losing the delete means another request already used this token
	if err := a.tokens.RevokeRefreshToken(ctx, record.ID); err != nil {
		if errors.Is(err, storage.ErrTokenInvalid) {
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a.issueTokens(ctx, authz.URN, record.IdentityURN, record.ClientID, record.Scope, authz.Persona)
}

// authenticateClient requires the client secret on every grant
func (a *Access) authenticateClient(ctx context.Context, req ExchangeRequest) error {
	if req.ClientSecret == "" {
		return apperr.Unauthorized("client authentication required")
	}
	if _, err := a.clients.ValidateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return err
	}
	return nil
}

func (a *Access) issueTokens(
	ctx context.Context,
	authzURN, identityURN, clientID string,
	scope []string,
	persona models.PersonaData,
) (*models.TokenSet, error) {
	const op = "access.issueTokens"
	log := a.log.With(slog.String("op", op), slog.String("client_id", clientID))

	scopeClaim := strings.Join(scope, " ")
	audience := []string{clientID}
	base := map[string]any{jwt.ClaimScope: scopeClaim, claimClientID: clientID}

	accessToken, _, err := a.issuer.Issue(ctx, jwt.Access, identityURN, audience, a.ttl.AccessToken, base)
	if err != nil {
		log.Error("failed to issue access token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, jti, err := a.issuer.Issue(ctx, jwt.Refresh, identityURN, audience, a.ttl.RefreshToken, base)
	if err != nil {
		log.Error("failed to issue refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.tokens.SaveRefreshToken(ctx, &models.RefreshToken{
		ID:               jti,
		AuthorizationURN: authzURN,
		IdentityURN:      identityURN,
		ClientID:         clientID,
		Scope:            scope,
		ExpiresAt:        a.now().Add(a.ttl.RefreshToken),
	}); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	set := &models.TokenSet{
		AccessToken:  accessToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(a.ttl.AccessToken.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scopeClaim,
	}

	if slices.Contains(scope, models.ScopeOpenID) {
		claims, err := a.claims(ctx, identityURN, scope, persona)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		delete(claims, jwt.ClaimSubject)
		set.IDToken, _, err = a.issuer.Issue(ctx, jwt.ID, identityURN, audience, a.ttl.IDToken, claims)
		if err != nil {
			log.Error("failed to issue id token", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("tokens issued")
	return set, nil
}

// UserInfo resolves the claims an access token grants
func (a *Access) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	const op = "access.UserInfo"

	claims, err := a.verifier.Verify(ctx, accessToken, jwt.Access, "")
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) || errors.Is(err, storage.ErrTokenInvalid) {
			return nil, apperr.Unauthorized("invalid access token")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	identityURN := jwt.Subject(claims)
	authz, err := a.authorizations.Authorization(ctx, identityURN, jwt.StringClaim(claims, claimClientID))
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationNotFound) {
			return nil, apperr.Unauthorized("authorization revoked")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return a.claims(ctx, identityURN, jwt.Scope(claims), authz.Persona)
}

// claims builds the user claims for a scope set: openid gives sub, profile name and picture,
// email the selected email account, connected_accounts the selected accounts
func (a *Access) claims(ctx context.Context, identityURN string, scope []string, persona models.PersonaData) (map[string]any, error) {
	out := map[string]any{jwt.ClaimSubject: identityURN}

	for _, s := range scope {
		switch s {
		case models.ScopeProfile:
			identity, err := a.identities.IdentityProfile(ctx, identityURN)
			if err != nil {
				return nil, err
			}
			out["name"] = identity.DisplayName
			out["picture"] = identity.Picture
		case models.ScopeEmail:
			if persona.Email == "" {
				continue
			}
			account, err := a.identities.Account(ctx, persona.Email)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					continue
				}
				return nil, err
			}
			out["email"] = account.Identifier
			out["email_type"] = string(account.Type)
		case models.ScopeConnectedAccounts:
			accounts, err := a.connectedAccounts(ctx, identityURN, persona.ConnectedAccounts)
			if err != nil {
				return nil, err
			}
			out[models.ScopeConnectedAccounts] = accounts
		}
	}
	return out, nil
}

type connectedAccount struct {
	URN        string `json:"urn"`
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

func (a *Access) connectedAccounts(ctx context.Context, identityURN string, sel models.ConnectedAccounts) ([]connectedAccount, error) {
	if sel.IsZero() {
		return []connectedAccount{}, nil
	}
	owned, err := a.identities.IdentityAccounts(ctx, identityURN)
	if err != nil {
		return nil, err
	}
	out := make([]connectedAccount, 0, len(owned))
	for _, acc := range owned {
		if !sel.All && !slices.Contains(sel.URNs, acc.URN) {
			continue
		}
		out = append(out, connectedAccount{URN: acc.URN, Type: string(acc.Type), Identifier: acc.Identifier})
	}
	return out, nil
}

// Revoke removes a grant together with every refresh token issued under it
func (a *Access) Revoke(ctx context.Context, identityURN, clientID string) error {
	const op = "access.Revoke"
	log := a.log.With(slog.String("op", op), slog.String("client_id", clientID))

	authz, err := a.authorizations.Authorization(ctx, identityURN, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationNotFound) {
			return apperr.NotFound("authorization not found")
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := a.tokens.RevokeAuthorizationTokens(ctx, authz.URN); err != nil {
		log.Error("failed to revoke tokens", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := a.authorizations.DeleteAuthorization(ctx, identityURN, clientID); err != nil {
		if errors.Is(err, storage.ErrAuthorizationNotFound) {
			return apperr.NotFound("authorization not found")
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("authorization revoked")
	return nil
}

// Authorizations lists the grants of an identity
func (a *Access) Authorizations(ctx context.Context, identityURN string) ([]models.Authorization, error) {
	const op = "access.Authorizations"

	list, err := a.authorizations.AuthorizationsByIdentity(ctx, identityURN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// VerifyPKCE checks a code_verifier against the stored challenge
func VerifyPKCE(p *models.PKCE, verifier string) bool {
	if verifier == "" {
		return false
	}
	var computed string
	switch p.Method {
	case models.PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(sum[:])
	case models.PKCEMethodPlain, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(p.CodeChallenge)) == 1
}

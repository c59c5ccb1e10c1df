package interfaces

import (
	"context"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"passport/internal/domain/models"
	"passport/internal/lib/jwt"
	"passport/internal/services/access"
)

// AppProvider is the application registry
type AppProvider interface {
	AppProfile(ctx context.Context, clientID string) (*models.App, error)
	AppScopes(ctx context.Context) ([]models.Scope, error)
	ValidateScope(ctx context.Context, app *models.App, requested []string) error
}

// IdentityProvider resolves the user behind a session
type IdentityProvider interface {
	IdentityProfile(ctx context.Context, identityURN string) (*models.Identity, error)
	IdentityAccounts(ctx context.Context, identityURN string) ([]models.Account, error)
	IsValid(ctx context.Context, identityURN string) (bool, error)
}

// AccessProvider grants authorizations
type AccessProvider interface {
	Authorize(ctx context.Context, req access.AuthorizeRequest) (*models.AuthorizeResult, error)
	Preauthorize(ctx context.Context, req access.AuthorizeRequest) (*access.PreauthorizeResult, error)
}

type SessionVerifier interface {
	Verify(ctx context.Context, token string, typ jwt.TokenType, audience string) (jwtlib.MapClaims, error)
}

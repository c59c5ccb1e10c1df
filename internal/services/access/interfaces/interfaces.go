package interfaces

import (
	"context"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"passport/internal/domain/models"
	"passport/internal/lib/jwt"
)

// AuthorizationStorage persists the grants identities give to applications
type AuthorizationStorage interface {
	UpsertAuthorization(ctx context.Context, a *models.Authorization) (*models.Authorization, error)
	Authorization(ctx context.Context, identityURN, clientID string) (*models.Authorization, error)
	AuthorizationsByIdentity(ctx context.Context, identityURN string) ([]models.Authorization, error)
	DeleteAuthorization(ctx context.Context, identityURN, clientID string) error
}

// CodeStorage keeps one-time authorization codes
type CodeStorage interface {
	SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error
	ConsumeAuthCode(ctx context.Context, code string) (*models.AuthorizationCode, error)
}

// TokenStorage keeps issued refresh tokens
type TokenStorage interface {
	SaveRefreshToken(ctx context.Context, t *models.RefreshToken) error
	RefreshToken(ctx context.Context, id string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeAuthorizationTokens(ctx context.Context, authorizationURN string) error
}

// ClientValidator authenticates confidential clients
type ClientValidator interface {
	ValidateClient(ctx context.Context, clientID, secret string) (*models.App, error)
}

// IdentitySource resolves the data claims are built from
type IdentitySource interface {
	IdentityProfile(ctx context.Context, identityURN string) (*models.Identity, error)
	IdentityAccounts(ctx context.Context, identityURN string) ([]models.Account, error)
	Account(ctx context.Context, accountURN string) (*models.Account, error)
}

type TokenIssuer interface {
	Issue(
		ctx context.Context,
		typ jwt.TokenType,
		subject string,
		audience []string,
		ttl time.Duration,
		extra map[string]any,
	) (string, string, error)
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string, typ jwt.TokenType, audience string) (jwtlib.MapClaims, error)
}

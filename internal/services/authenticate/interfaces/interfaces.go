package interfaces

import (
	"context"
	"time"

	"passport/internal/domain/models"
	"passport/internal/lib/jwt"
	"passport/internal/providers/oauth"
)

// AccountService owns identities and their login methods
type AccountService interface {
	RegisterEmail(ctx context.Context, email, password string) (string, error)
	LoginEmail(ctx context.Context, email, password string) (string, error)
	ResolveIdentity(ctx context.Context, profile models.ProviderProfile, linkTo string) (string, error)
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

// ProviderRegistry looks up external identity providers
type ProviderRegistry interface {
	Get(name string) (oauth.Provider, error)
	Names() []string
}

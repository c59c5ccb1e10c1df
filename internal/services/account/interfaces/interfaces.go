package interfaces

import (
	"context"

	"passport/internal/domain/models"
)

// IdentityStorage persists identities and their connected accounts
type IdentityStorage interface {
	CreateIdentity(ctx context.Context, identity *models.Identity, account *models.Account) error
	Identity(ctx context.Context, urn string) (*models.Identity, error)
	UpdateIdentityProfile(ctx context.Context, urn, displayName, picture string) error
	SaveAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, account *models.Account) error
	Account(ctx context.Context, urn string) (*models.Account, error)
	AccountsByIdentity(ctx context.Context, identityURN string) ([]models.Account, error)
}

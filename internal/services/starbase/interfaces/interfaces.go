package interfaces

import (
	"context"

	"passport/internal/domain/models"
)

// AppStorage persists registered client applications
type AppStorage interface {
	SaveApp(ctx context.Context, app *models.App) error
	App(ctx context.Context, clientID string) (*models.App, error)
	Apps(ctx context.Context) ([]models.App, error)
	UpdateAppSecret(ctx context.Context, clientID string, secretHash []byte) error
}

// ScopeStorage serves the scope catalog
type ScopeStorage interface {
	Scopes(ctx context.Context) ([]models.Scope, error)
	ValidateScope(ctx context.Context, requested []string) ([]string, error)
	SaveScopes(ctx context.Context, scopes []models.Scope) error
}

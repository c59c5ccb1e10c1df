// Package starbase is the application registry: client apps, their secrets and the scope catalog.
package starbase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"passport/internal/domain/models"
	"passport/internal/lib/apperr"
	"passport/internal/lib/jwt"
	"passport/internal/lib/logger/sl"
	"passport/internal/services/starbase/interfaces"
	"passport/internal/storage"
)

const secretBytes = 32

// ErrInvalidClient is returned whenever client credentials do not check out
var ErrInvalidClient = apperr.Unauthorized("invalid client credentials")

type Starbase struct {
	log    *slog.Logger
	apps   interfaces.AppStorage
	scopes interfaces.ScopeStorage
}

func New(log *slog.Logger, apps interfaces.AppStorage, scopes interfaces.ScopeStorage) *Starbase {
	return &Starbase{
		log:    log,
		apps:   apps,
		scopes: scopes,
	}
}

// AppProfile returns the registered application
func (s *Starbase) AppProfile(ctx context.Context, clientID string) (*models.App, error) {
	const op = "starbase.AppProfile"

	app, err := s.apps.App(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrAppNotFound) {
			return nil, apperr.NotFound("application not found")
		}
		s.log.Error("failed to fetch app", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return app, nil
}

// AppScopes returns the scope catalog
func (s *Starbase) AppScopes(ctx context.Context) ([]models.Scope, error) {
	const op = "starbase.AppScopes"

	scopes, err := s.scopes.Scopes(ctx)
	if err != nil {
		s.log.Error("failed to fetch scopes", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return scopes, nil
}

// ValidateScope checks every requested scope is catalogued and allowed for the app
func (s *Starbase) ValidateScope(ctx context.Context, app *models.App, requested []string) error {
	const op = "starbase.ValidateScope"

	unknown, err := s.scopes.ValidateScope(ctx, requested)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(unknown) > 0 {
		return apperr.BadRequest("unknown scope: " + strings.Join(unknown, " "))
	}
	for _, scope := range requested {
		if !app.AllowsScope(scope) {
			return apperr.BadRequest("scope not allowed for client: " + scope)
		}
	}
	return nil
}

// ValidateClient checks a client secret against the stored hash
func (s *Starbase) ValidateClient(ctx context.Context, clientID, secret string) (*models.App, error) {
	const op = "starbase.ValidateClient"
	log := s.log.With(slog.String("op", op), slog.String("client_id", clientID))

	app, err := s.apps.App(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrAppNotFound) {
			log.Info("unknown client")
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(app.SecretHash) == 0 || bcrypt.CompareHashAndPassword(app.SecretHash, []byte(secret)) != nil {
		log.Info("client secret mismatch")
		return nil, ErrInvalidClient
	}
	return app, nil
}

// CreateApp registers an application and returns it with its plaintext secret, which is never stored
func (s *Starbase) CreateApp(ctx context.Context, name, redirectURI, icon string, scopes []string) (*models.App, string, error) {
	const op = "starbase.CreateApp"
	log := s.log.With(slog.String("op", op))

	if strings.TrimSpace(name) == "" {
		return nil, "", apperr.BadRequest("name is required")
	}
	if u, err := url.Parse(redirectURI); err != nil || !u.IsAbs() {
		return nil, "", apperr.BadRequest("redirect_uri must be an absolute url")
	}
	if len(scopes) > 0 {
		unknown, err := s.scopes.ValidateScope(ctx, scopes)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
		if len(unknown) > 0 {
			return nil, "", apperr.BadRequest("unknown scope: " + strings.Join(unknown, " "))
		}
	}

	secret, hash, err := newSecret()
	if err != nil {
		log.Error("failed to generate secret", sl.Err(err))
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	app := &models.App{
		ClientID:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		SecretHash:  hash,
		Name:        name,
		Icon:        icon,
		RedirectURI: redirectURI,
		Scopes:      scopes,
	}
	if err := s.apps.SaveApp(ctx, app); err != nil {
		if errors.Is(err, storage.ErrAppExists) {
			return nil, "", apperr.Conflict("application already exists")
		}
		log.Error("failed to save app", sl.Err(err))
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("app created", slog.String("client_id", app.ClientID))
	return app, secret, nil
}

// RotateSecret replaces the client secret and returns the new plaintext
func (s *Starbase) RotateSecret(ctx context.Context, clientID string) (string, error) {
	const op = "starbase.RotateSecret"
	log := s.log.With(slog.String("op", op), slog.String("client_id", clientID))

	secret, hash, err := newSecret()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.apps.UpdateAppSecret(ctx, clientID, hash); err != nil {
		if errors.Is(err, storage.ErrAppNotFound) {
			return "", apperr.NotFound("application not found")
		}
		log.Error("failed to update secret", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("secret rotated")
	return secret, nil
}

// ImportScopes upserts catalog entries
func (s *Starbase) ImportScopes(ctx context.Context, scopes []models.Scope) error {
	const op = "starbase.ImportScopes"

	for _, scope := range scopes {
		if scope.Name == "" || strings.ContainsAny(scope.Name, " \t") {
			return apperr.BadRequest(fmt.Sprintf("invalid scope name %q", scope.Name))
		}
	}
	if err := s.scopes.SaveScopes(ctx, scopes); err != nil {
		s.log.Error("failed to save scopes", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Apps lists every registered application
func (s *Starbase) Apps(ctx context.Context) ([]models.App, error) {
	const op = "starbase.Apps"

	apps, err := s.apps.Apps(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return apps, nil
}

func newSecret() (string, []byte, error) {
	secret, err := jwt.NewOpaqueToken(secretBytes)
	if err != nil {
		return "", nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	return secret, hash, nil
}

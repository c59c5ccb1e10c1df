package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"passport/internal/domain/models"
	"passport/internal/lib/apperr"
	"passport/internal/lib/logger/sl"
	"passport/internal/lib/urn"
	"passport/internal/services/account/interfaces"
	"passport/internal/storage"
)

const minPasswordLength = 8

// ErrInvalidCredentials is returned for any failed password login
var ErrInvalidCredentials = apperr.Unauthorized("invalid email or password")

// Account owns identities and the accounts connected to them
type Account struct {
	log        *slog.Logger
	identities interfaces.IdentityStorage
}

// New returns a new instance of the Account service
func New(log *slog.Logger, identities interfaces.IdentityStorage) *Account {
	return &Account{
		log:        log,
		identities: identities,
	}
}

// ResolveIdentity maps an external login onto an identity.
// A known account resolves to its identity. An unknown account creates a new identity,
// or is connected to linkTo when given. A known account owned by another identity than linkTo is a conflict.
func (a *Account) ResolveIdentity(ctx context.Context, profile models.ProviderProfile, linkTo string) (string, error) {
	const op = "account.ResolveIdentity"
	log := a.log.With(slog.String("op", op), slog.String("type", string(profile.Type)))

	if profile.Identifier == "" {
		return "", apperr.BadRequest("provider returned no account identifier")
	}
	accountURN := urn.Account(string(profile.Type), profile.Identifier)

	existing, err := a.identities.Account(ctx, accountURN)
	switch {
	case err == nil:
		if linkTo != "" && existing.IdentityURN != linkTo {
			log.Warn("account is owned by another identity", slog.String("account", accountURN))
			return "", apperr.Conflict("account is already connected to another identity")
		}
		existing.Alias = profile.Alias
		existing.Picture = profile.Picture
		existing.Profile = profile.Raw
		existing.PassHash = nil
		if err := a.identities.UpdateAccount(ctx, existing); err != nil {
			log.Error("failed to refresh account", sl.Err(err))
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return existing.IdentityURN, nil
	case !errors.Is(err, storage.ErrAccountNotFound):
		return "", fmt.Errorf("%s: %w", op, err)
	}

	account := &models.Account{
		URN:        accountURN,
		Type:       profile.Type,
		Identifier: profile.Identifier,
		Alias:      profile.Alias,
		Picture:    profile.Picture,
		Profile:    profile.Raw,
	}

	if linkTo != "" {
		if _, err := a.identities.Identity(ctx, linkTo); err != nil {
			if errors.Is(err, storage.ErrIdentityNotFound) {
				return "", apperr.Unauthorized("session identity no longer exists")
			}
			return "", fmt.Errorf("%s: %w", op, err)
		}
		account.IdentityURN = linkTo
		if err := a.identities.SaveAccount(ctx, account); err != nil {
			if errors.Is(err, storage.ErrAccountExists) {
				return "", apperr.Conflict("account is already connected to another identity")
			}
			return "", fmt.Errorf("%s: %w", op, err)
		}
		log.Info("account connected", slog.String("identity", linkTo))
		return linkTo, nil
	}

	identityURN, err := a.createIdentity(ctx, account)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log.Info("identity created", slog.String("identity", identityURN))
	return identityURN, nil
}

// RegisterEmail creates an identity with an email and password account
func (a *Account) RegisterEmail(ctx context.Context, email, password string) (string, error) {
	const op = "account.RegisterEmail"
	log := a.log.With(slog.String("op", op))

	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return "", apperr.BadRequest("email is invalid")
	}
	if len(password) < minPasswordLength {
		return "", apperr.BadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	identityURN, err := a.createIdentity(ctx, &models.Account{
		URN:        urn.Account(string(models.AccountEmail), email),
		Type:       models.AccountEmail,
		Identifier: strings.ToLower(email),
		Alias:      email,
		PassHash:   passHash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			return "", apperr.Conflict("account already exists")
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("identity", identityURN))
	return identityURN, nil
}

// LoginEmail checks email credentials and returns the owning identity
func (a *Account) LoginEmail(ctx context.Context, email, password string) (string, error) {
	const op = "account.LoginEmail"
	log := a.log.With(slog.String("op", op))

	account, err := a.identities.Account(ctx, urn.Account(string(models.AccountEmail), email))
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Info("account not found")
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(account.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials")
		return "", ErrInvalidCredentials
	}
	return account.IdentityURN, nil
}

// AccountByEmail returns the email account for an address
func (a *Account) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return a.Account(ctx, urn.Account(string(models.AccountEmail), email))
}

// SetPassword replaces the password of an email account owned by the identity
func (a *Account) SetPassword(ctx context.Context, identityURN, email, password string) error {
	const op = "account.SetPassword"
	log := a.log.With(slog.String("op", op))

	if len(password) < minPasswordLength {
		return apperr.BadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	account, err := a.AccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.IdentityURN != identityURN {
		log.Warn("password change for foreign account", slog.String("identity", identityURN))
		return apperr.Forbidden("account is not connected to this identity")
	}

	account.PassHash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := a.identities.UpdateAccount(ctx, account); err != nil {
		log.Error("failed to update account", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IdentityProfile returns the profile of an identity
func (a *Account) IdentityProfile(ctx context.Context, identityURN string) (*models.Identity, error) {
	const op = "account.IdentityProfile"

	identity, err := a.identities.Identity(ctx, identityURN)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return nil, apperr.NotFound("identity not found")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}

// UpdateProfile sets display name and picture of an identity
func (a *Account) UpdateProfile(ctx context.Context, identityURN, displayName, picture string) error {
	const op = "account.UpdateProfile"

	if err := a.identities.UpdateIdentityProfile(ctx, identityURN, displayName, picture); err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return apperr.NotFound("identity not found")
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IdentityAccounts lists the accounts connected to an identity
func (a *Account) IdentityAccounts(ctx context.Context, identityURN string) ([]models.Account, error) {
	const op = "account.IdentityAccounts"

	accounts, err := a.identities.AccountsByIdentity(ctx, identityURN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return accounts, nil
}

// Account returns a single account
func (a *Account) Account(ctx context.Context, accountURN string) (*models.Account, error) {
	const op = "account.Account"

	account, err := a.identities.Account(ctx, accountURN)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, apperr.NotFound("account not found")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// IsValid reports whether the identity still exists
func (a *Account) IsValid(ctx context.Context, identityURN string) (bool, error) {
	const op = "account.IsValid"

	if !urn.Is(identityURN, urn.KindIdentity) {
		return false, nil
	}
	if _, err := a.identities.Identity(ctx, identityURN); err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (a *Account) createIdentity(ctx context.Context, account *models.Account) (string, error) {
	identity := &models.Identity{
		URN:         urn.NewIdentity(),
		DisplayName: account.Alias,
		Picture:     account.Picture,
	}
	account.IdentityURN = identity.URN
	if err := a.identities.CreateIdentity(ctx, identity, account); err != nil {
		return "", err
	}
	return identity.URN, nil
}

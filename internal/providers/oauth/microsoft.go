package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/microsoft"

	"passport/internal/config"
	"passport/internal/domain/models"
)

const (
	microsoftUserInfoURL = "https://graph.microsoft.com/oidc/userinfo"
	defaultTenant        = "common"
)

type Microsoft struct {
	base
}

func NewMicrosoft(cfg config.ProviderConfig, redirectURL string, opts ...Option) *Microsoft {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = defaultTenant
	}
	return &Microsoft{base: newBase(
		cfg, redirectURL, microsoft.AzureADEndpoint(tenant), microsoftUserInfoURL,
		[]string{"openid", "email", "profile", "User.Read"}, opts,
	)}
}

func (m *Microsoft) Name() models.AccountType {
	return models.AccountMicrosoft
}

func (m *Microsoft) Exchange(ctx context.Context, code, verifier string) (*models.ProviderProfile, error) {
	const op = "oauth.Microsoft.Exchange"

	tok, err := m.exchange(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	raw, err := m.userInfo(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	email := str(raw, "email")
	identifier := email
	if identifier == "" {
		identifier = str(raw, "sub")
	}
	return &models.ProviderProfile{
		Type:       models.AccountMicrosoft,
		Identifier: identifier,
		Alias:      str(raw, "name"),
		Email:      email,
		Picture:    str(raw, "picture"),
		Raw:        raw,
	}, nil
}

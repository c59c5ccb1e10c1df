package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/github"

	"passport/internal/config"
	"passport/internal/domain/models"
)

const githubUserURL = "https://api.github.com/user"

type Github struct {
	base
}

func NewGithub(cfg config.ProviderConfig, redirectURL string, opts ...Option) *Github {
	return &Github{base: newBase(cfg, redirectURL, github.Endpoint, githubUserURL, []string{"read:user", "user:email"}, opts)}
}

func (g *Github) Name() models.AccountType {
	return models.AccountGithub
}

// Exchange trades the code for a token and reads the user; the login is the account identifier
func (g *Github) Exchange(ctx context.Context, code, verifier string) (*models.ProviderProfile, error) {
	const op = "oauth.Github.Exchange"

	tok, err := g.exchange(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	raw, err := g.userInfo(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	alias := str(raw, "name")
	if alias == "" {
		alias = str(raw, "login")
	}
	return &models.ProviderProfile{
		Type:       models.AccountGithub,
		Identifier: str(raw, "login"),
		Alias:      alias,
		Email:      str(raw, "email"),
		Picture:    str(raw, "avatar_url"),
		Raw:        raw,
	}, nil
}

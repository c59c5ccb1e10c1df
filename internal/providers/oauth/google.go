package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"passport/internal/config"
	"passport/internal/domain/models"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// IDTokenValidator checks a google id token for an audience
type IDTokenValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

type Google struct {
	base
	validate IDTokenValidator
}

func NewGoogle(cfg config.ProviderConfig, redirectURL string, opts ...Option) *Google {
	return &Google{
		base:     newBase(cfg, redirectURL, google.Endpoint, googleUserInfoURL, []string{"openid", "email", "profile"}, opts),
		validate: idtoken.Validate,
	}
}

// WithValidator replaces the google id token validation
func (g *Google) WithValidator(v IDTokenValidator) *Google {
	g.validate = v
	return g
}

func (g *Google) Name() models.AccountType {
	return models.AccountGoogle
}

// Exchange prefers the id token returned with the access token and falls back to userinfo
func (g *Google) Exchange(ctx context.Context, code, verifier string) (*models.ProviderProfile, error) {
	const op = "oauth.Google.Exchange"

	tok, err := g.exchange(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var raw map[string]any
	if idTok, ok := tok.Extra("id_token").(string); ok && idTok != "" {
		payload, err := g.validate(ctx, idTok, g.conf.ClientID)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid id token: %w", op, err)
		}
		raw = payload.Claims
	} else {
		raw, err = g.userInfo(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	email := str(raw, "email")
	return &models.ProviderProfile{
		Type:       models.AccountGoogle,
		Identifier: email,
		Alias:      str(raw, "name"),
		Email:      email,
		Picture:    str(raw, "picture"),
		Raw:        raw,
	}, nil
}

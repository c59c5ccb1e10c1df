// Package oauth logs users in through external identity providers.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"golang.org/x/oauth2"

	"passport/internal/config"
	"passport/internal/domain/models"
)

var ErrUnknownProvider = errors.New("unknown identity provider")

// Provider is an external identity provider speaking the authorization code flow
type Provider interface {
	Name() models.AccountType
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*models.ProviderProfile, error)
}

// Registry holds the configured providers by name
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[string(p.Name())] = p
	}
	return r
}

// Get returns a configured provider
func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the configured providers
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds every provider that has a client id configured
func FromConfig(cfg config.ProvidersConfig, publicURL string) Registry {
	var providers []Provider
	if cfg.Github.ClientID != "" {
		providers = append(providers, NewGithub(cfg.Github, callbackURL(publicURL, models.AccountGithub)))
	}
	if cfg.Google.ClientID != "" {
		providers = append(providers, NewGoogle(cfg.Google, callbackURL(publicURL, models.AccountGoogle)))
	}
	if cfg.Microsoft.ClientID != "" {
		providers = append(providers, NewMicrosoft(cfg.Microsoft, callbackURL(publicURL, models.AccountMicrosoft)))
	}
	return NewRegistry(providers...)
}

func callbackURL(publicURL string, provider models.AccountType) string {
	return publicURL + "/authenticate/oauth/" + string(provider) + "/callback"
}

// Option overrides provider endpoints
type Option func(*base)

func WithEndpoint(e oauth2.Endpoint) Option {
	return func(b *base) { b.conf.Endpoint = e }
}

func WithUserInfoURL(u string) Option {
	return func(b *base) { b.userInfoURL = u }
}

type base struct {
	conf        *oauth2.Config
	userInfoURL string
}

func newBase(cfg config.ProviderConfig, redirectURL string, endpoint oauth2.Endpoint, userInfoURL string, scopes []string, opts []Option) base {
	b := base{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) AuthCodeURL(state, verifier string) string {
	return b.conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (b base) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return b.conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
}

// userInfo fetches the provider profile with the access token
func (b base) userInfo(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}
	return raw, nil
}

func str(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

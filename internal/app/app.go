package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	grpcapp "passport/internal/app/grpc"
	httpapp "passport/internal/app/http"
	"passport/internal/config"
	"passport/internal/lib/cookie"
	"passport/internal/lib/jwt"
	"passport/internal/metrics"
	"passport/internal/providers/oauth"
	"passport/internal/services/access"
	"passport/internal/services/account"
	"passport/internal/services/authenticate"
	"passport/internal/services/authorize"
	"passport/internal/services/starbase"
	"passport/internal/storage/postgres"
	"passport/internal/storage/protected"
	"passport/internal/storage/protected/vault"
	"passport/internal/storage/redis"
	"passport/internal/storage/repositories"
	"passport/internal/storage/repositories/cached"
)

type App struct {
	HTTPSrv *httpapp.App
	GRPCSrv *grpcapp.App

	closers []func()
}

// New wires storage, signing, services and transports from cfg
func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	pool, err := postgres.New(ctx, cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rdb := redis.NewClient(cfg.Redis)
	cache := redis.NewCacheWrapper(rdb, cfg.Redis.CacheTTL, cfg.Redis.UseCache)

	signer, err := newSigner(ctx, log, cfg, cache)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	issuer := jwt.NewIssuer(signer, cfg.Tokens.Issuer)
	verifier := jwt.NewVerifier(signer, cfg.Tokens.Issuer, jwt.NewClaimsController(jwt.DefaultClaimKeys))

	identities := repositories.NewIdentityRepository(pool)
	authorizations := repositories.NewAuthorizationRepository(pool)
	apps := cached.NewAppCachedRepository(pool, cache)
	scopes := cached.NewScopeCachedRepository(pool, cache)
	tokens := cached.NewTokenCachedRepository(pool, cache)
	codes := redis.NewAuthCodeStore(rdb)

	accountService := account.New(log, identities)
	starbaseService := starbase.New(log, apps, scopes)
	accessService := access.New(
		log,
		authorizations,
		codes,
		tokens,
		starbaseService,
		accountService,
		issuer,
		verifier,
		access.TTL{
			Code:         cfg.AuthorizationCodeTTL,
			AccessToken:  cfg.Tokens.AccessTokenTTL,
			RefreshToken: cfg.Tokens.RefreshTokenTTL,
			IDToken:      cfg.Tokens.IDTokenTTL,
		},
	)
	authorizeService := authorize.New(log, starbaseService, accountService, accessService, verifier)
	providers := oauth.FromConfig(cfg.Providers, cfg.HTTP.PublicURL)
	authenticateService := authenticate.New(log, accountService, issuer, providers, cfg.Session.TTL, cfg.ConsoleURL)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cookies := cookie.New(cookie.Options{
		HashKey:  []byte(cfg.Session.HashKey),
		BlockKey: []byte(cfg.Session.BlockKey),
		Domain:   cfg.Session.CookieDomain,
		Secure:   cfg.Session.Secure,
	})

	router := httpapp.NewRouter(log, cfg.Env, httpapp.Handlers{
		Authorizer:    authorizeService,
		Authenticator: authenticateService,
		Grants:        accessService,
		Keys:          signer,
		Cookies:       cookies,
		Metrics:       metrics.New(registry),
		Gatherer:      registry,
		Probes:        map[string]httpapp.Pinger{"postgres": pool, "redis": cache},
	})

	log.Info("identity providers configured", slog.Any("providers", providers.Names()))

	return &App{
		HTTPSrv: httpapp.New(log, cfg.HTTP, router),
		GRPCSrv: grpcapp.New(
			cfg.Env,
			log,
			map[string]grpcapp.Pinger{"postgres": pool, "redis": cache},
			cfg.GRPC.ProbeInterval,
			cfg.GRPC.Timeout,
			cfg.GRPC.Port,
		),
		closers: []func(){pool.Close, func() { _ = rdb.Close() }},
	}, nil
}

// Close releases the storage connections
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
}

// newSigner picks the vault transit key when vault is enabled, otherwise a local RSA key
func newSigner(ctx context.Context, log *slog.Logger, cfg *config.Config, cache *redis.CacheWrapper) (jwt.Signer, error) {
	if cfg.Vault.Enabled {
		client, err := protected.NewVaultClient(ctx, cfg.Vault)
		if err != nil {
			return nil, err
		}
		log.Info("signing with vault transit key", slog.String("key", cfg.Vault.TransitKey))
		return vault.NewTransitSigner(client, cache, cfg.Vault.TransitKey), nil
	}

	if cfg.Tokens.KeyFile == "" {
		log.Warn("no signing key configured, generating an ephemeral one")
	}
	return jwt.LoadKeySigner(cfg.Tokens.KeyFile, cfg.Tokens.KeyID)
}

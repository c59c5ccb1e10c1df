package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"passport/internal/config"
	"passport/internal/services/starbase"
	"passport/internal/storage/postgres"
	"passport/internal/storage/protected"
	"passport/internal/storage/protected/vault"
	"passport/internal/storage/redis"
	"passport/internal/storage/repositories/cached"
)

// ConfigBackend opens the same stores the passport server uses
type ConfigBackend struct {
	cfg *config.Config
	log *slog.Logger
}

func NewConfigBackend(path string) (*ConfigBackend, error) {
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, err
	}
	return &ConfigBackend{cfg: cfg, log: slog.New(slog.NewTextHandler(io.Discard, nil))}, nil
}

func (b *ConfigBackend) Apps(ctx context.Context) (AppAdmin, func(), error) {
	pool, err := postgres.New(ctx, b.cfg.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(b.cfg.Redis)
	cache := redis.NewCacheWrapper(rdb, b.cfg.Redis.CacheTTL, b.cfg.Redis.UseCache)

	svc := starbase.New(b.log, cached.NewAppCachedRepository(pool, cache), cached.NewScopeCachedRepository(pool, cache))
	return svc, func() {
		pool.Close()
		_ = rdb.Close()
	}, nil
}

func (b *ConfigBackend) Keys(ctx context.Context) (KeyRotator, func(), error) {
	if !b.cfg.Vault.Enabled {
		return nil, nil, errors.New("vault signing is disabled, local keys are rotated by replacing tokens.key_file")
	}
	client, err := protected.NewVaultClient(ctx, b.cfg.Vault)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(b.cfg.Redis)
	cache := redis.NewCacheWrapper(rdb, b.cfg.Redis.CacheTTL, b.cfg.Redis.UseCache)
	return vault.NewTransitSigner(client, cache, b.cfg.Vault.TransitKey), func() { _ = rdb.Close() }, nil
}

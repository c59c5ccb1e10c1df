package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"passport/internal/domain/models"
	"passport/internal/storage"
)

const authCodeKey = "ac"

// AuthCodeStore keeps authorization codes between the Authorize and Token endpoints
type AuthCodeStore struct {
	rdb *redis.Client
}

func NewAuthCodeStore(rdb *redis.Client) *AuthCodeStore {
	return &AuthCodeStore{rdb: rdb}
}

// SaveAuthCode stores the code until it expires
func (s *AuthCodeStore) SaveAuthCode(ctx context.Context, code *models.AuthorizationCode) error {
	const op = "storage.redis.SaveAuthCode"

	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrTokenExpired)
	}
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := s.rdb.SetNX(ctx, fmt.Sprintf("%s:%s", authCodeKey, code.Code), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: authorization code collision", op)
	}
	return nil
}

// ConsumeAuthCode returns the code and deletes it atomically, so a code is exchanged at most once
func (s *AuthCodeStore) ConsumeAuthCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	const op = "storage.redis.ConsumeAuthCode"

	data, err := s.rdb.GetDel(ctx, fmt.Sprintf("%s:%s", authCodeKey, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrCodeNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var authCode models.AuthorizationCode
	if err := json.Unmarshal(data, &authCode); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if time.Now().After(authCode.ExpiresAt) {
		return nil, storage.ErrCodeNotFound
	}
	return &authCode, nil
}

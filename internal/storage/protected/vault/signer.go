package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"passport/internal/storage/protected"
	"passport/internal/storage/redis"
)

const (
	publicKeysCacheKey        = "jwk:pk"
	latestKeyVersionsCacheKey = "jwk:latest_version"
)

var vaultPrefix = regexp.MustCompile(`^vault:v\d+:`)

// TransitSigner signs tokens with a Vault transit key and publishes its public versions
type TransitSigner struct {
	v     *protected.Vault
	cache *redis.CacheWrapper
	key   string
}

// NewTransitSigner creates a new instance of TransitSigner for the named transit key
func NewTransitSigner(client *protected.Vault, cache *redis.CacheWrapper, key string) *TransitSigner {
	return &TransitSigner{v: client, cache: cache, key: key}
}

// LatestKeyVersion gets the latest key version
func (s *TransitSigner) LatestKeyVersion(ctx context.Context) (int, error) {
	// firstly try get from cache
	var version int
	if err := s.cache.Get(ctx, latestKeyVersionsCacheKey, &version); err == nil {
		return version, nil
	}

	data, err := s.readKey(ctx)
	if err != nil {
		return 0, err
	}

	version, err = asInt(data["latest_version"])
	if err != nil {
		return 0, fmt.Errorf("invalid latest_version: %w", err)
	}

	_ = s.cache.Set(ctx, latestKeyVersionsCacheKey, version).Err()
	return version, nil
}

// Sign signs claims as RS256 JWT with the latest key version, kid is the version
func (s *TransitSigner) Sign(ctx context.Context, claims jwt.MapClaims) (string, error) {
	const op = "vault.Sign"

	version, err := s.LatestKeyVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	header := map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"kid": strconv.Itoa(version),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("%s: header marshaling failed: %w", op, err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("%s: claims marshaling failed: %w", op, err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	secret, err := s.v.Client.Write(ctx, "transit/sign/"+s.key, map[string]interface{}{
		"input":                base64.StdEncoding.EncodeToString([]byte(signingInput)),
		"key_version":          version,
		"hash_algorithm":       "sha2-256",
		"signature_algorithm":  "pkcs1v15",
		"marshaling_algorithm": "jws",
	})
	if err != nil {
		return "", fmt.Errorf("%s: vault signing failed: %w", op, err)
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%s: empty response from vault", op)
	}

	signature, ok := secret.Data["signature"].(string)
	if !ok {
		return "", fmt.Errorf("%s: signature missing in response", op)
	}

	return signingInput + "." + vaultPrefix.ReplaceAllString(signature, ""), nil
}

// RotateKey creates a new key version; tokens signed by older versions stay verifiable
func (s *TransitSigner) RotateKey(ctx context.Context) error {
	if _, err := s.v.Client.Write(ctx, "transit/keys/"+s.key+"/rotate", nil); err != nil {
		return fmt.Errorf("key rotation failed: %w", err)
	}

	return s.cache.Invalidate(ctx, latestKeyVersionsCacheKey, publicKeysCacheKey)
}

func (s *TransitSigner) readKey(ctx context.Context) (map[string]interface{}, error) {
	secret, err := s.v.Client.Read(ctx, "transit/keys/"+s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("empty response from vault")
	}
	return secret.Data, nil
}

// vault answers numbers as json.Number or float64 depending on the decoder
func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

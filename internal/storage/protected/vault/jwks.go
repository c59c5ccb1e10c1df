package vault

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/lestrrat-go/jwx/jwk"

	"passport/internal/lib/jwt"
)

// KeySet retrieves every public key version of the transit key
func (s *TransitSigner) KeySet(ctx context.Context) (jwk.Set, error) {
	// the cache holds pem keys by version, jwk.Set does not decode back into an interface
	pems := map[string]string{}
	if err := s.cache.Get(ctx, publicKeysCacheKey, &pems); err != nil {
		data, err := s.readKey(ctx)
		if err != nil {
			return nil, err
		}
		versions, ok := data["keys"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("keys missing in response")
		}
		for ver, keyData := range versions {
			entry, ok := keyData.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("unexpected key entry for version %s", ver)
			}
			pemKey, ok := entry["public_key"].(string)
			if !ok {
				return nil, fmt.Errorf("public_key missing for version %s", ver)
			}
			pems[ver] = pemKey
		}
		_ = s.cache.Set(ctx, publicKeysCacheKey, pems).Err()
	}

	set := jwk.NewSet()
	for ver, pemKey := range pems {
		key, err := convertPemToJwk(pemKey, ver)
		if err != nil {
			return nil, fmt.Errorf("failed to convert public key: %w", err)
		}
		set.Add(key)
	}
	return set, nil
}

func convertPemToJwk(pemKey string, ver string) (jwk.Key, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("invalid public key format")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("transit key version %s is not RSA", ver)
	}
	return jwt.PublicJWK(rsaPub, ver)
}

// Package jwt issues and verifies the RS256 tokens of the passport: session, access, id and refresh tokens.
package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"

	"passport/internal/storage"
)

// Signer signs claims and publishes the keys tokens can be verified with
type Signer interface {
	Sign(ctx context.Context, claims jwt.MapClaims) (string, error)
	KeySet(ctx context.Context) (jwk.Set, error)
}

// KeySource is the verifying half of a Signer
type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

// KeySigner signs with an in-process RSA key
type KeySigner struct {
	key *rsa.PrivateKey
	kid string
}

func NewKeySigner(key *rsa.PrivateKey, kid string) *KeySigner {
	return &KeySigner{key: key, kid: kid}
}

// LoadKeySigner reads a PEM encoded PKCS#1 or PKCS#8 RSA key. An empty path generates an ephemeral key.
func LoadKeySigner(path, kid string) (*KeySigner, error) {
	const op = "jwt.LoadKeySigner"

	if path == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return NewKeySigner(key, kid), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: invalid private key format", op)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewKeySigner(key, kid), nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: private key is not RSA", op)
	}
	return NewKeySigner(key, kid), nil
}

func (s *KeySigner) Sign(_ context.Context, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	return token.SignedString(s.key)
}

func (s *KeySigner) KeySet(_ context.Context) (jwk.Set, error) {
	key, err := PublicJWK(&s.key.PublicKey, s.kid)
	if err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	set.Add(key)
	return set, nil
}

// PublicJWK converts an RSA public key into a signing JWK
func PublicJWK(pub *rsa.PublicKey, kid string) (jwk.Key, error) {
	key, err := jwk.New(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK: %w", err)
	}
	_ = key.Set(jwk.KeyIDKey, kid)
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = key.Set(jwk.KeyUsageKey, "sig")
	return key, nil
}

// Issuer stamps registered claims onto tokens and signs them
type Issuer struct {
	signer Signer
	issuer string
	now    func() time.Time
}

func NewIssuer(signer Signer, issuer string) *Issuer {
	return &Issuer{signer: signer, issuer: issuer, now: time.Now}
}

// Issue signs a token and returns it with its jti
func (i *Issuer) Issue(
	ctx context.Context,
	typ TokenType,
	subject string,
	audience []string,
	ttl time.Duration,
	extra map[string]any,
) (string, string, error) {
	const op = "jwt.Issue"

	now := i.now()
	jti := uuid.NewString()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims[ClaimIssuer] = i.issuer
	claims[ClaimSubject] = subject
	claims[ClaimAudience] = audience
	claims[ClaimIssuedAt] = now.Unix()
	claims[ClaimExpiresAt] = now.Add(ttl).Unix()
	claims[ClaimJTI] = jti
	claims[ClaimTokenType] = string(typ)

	token, err := i.signer.Sign(ctx, claims)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return token, jti, nil
}

// Verifier checks signature, issuer, audience, expiry and the claims required by the token type
type Verifier struct {
	keys   KeySource
	issuer string
	claims ClaimsController
}

func NewVerifier(keys KeySource, issuer string, claims ClaimsController) *Verifier {
	if claims == nil {
		claims = NewClaimsController(DefaultClaimKeys)
	}
	return &Verifier{keys: keys, issuer: issuer, claims: claims}
}

// Verify returns claims of a valid token. Expiry is reported as storage.ErrTokenExpired, anything else as storage.ErrTokenInvalid.
func (v *Verifier) Verify(ctx context.Context, token string, typ TokenType, audience string) (jwt.MapClaims, error) {
	const op = "jwt.Verify"

	set, err := v.keys.KeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			return nil, err
		}
		return &pub, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, storage.ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenInvalid)
	}
	if err := v.claims.IsClaimsValid(typ, claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, storage.ErrTokenInvalid, err)
	}
	return claims, nil
}

// NewOpaqueToken returns a random url safe token of n bytes of entropy
func NewOpaqueToken(n int) (string, error) {
	token := make([]byte, n)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(token), nil
}

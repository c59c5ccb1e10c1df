package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/storage"
)

const issuer = "https://passport.test"

func newSigner(t *testing.T, kid string) *KeySigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewKeySigner(key, kid)
}

func TestIssueVerify_HappyPath(t *testing.T) {
	ctx := context.Background()
	signer := newSigner(t, "1")
	iss := NewIssuer(signer, issuer)
	v := NewVerifier(signer, issuer, nil)

	token, jti, err := iss.Issue(ctx, Access, "urn:rollupid:identity/0x1", []string{"app-1"}, time.Minute,
		map[string]any{ClaimScope: "openid email"})
	require.NoError(t, err)
	assert.NotEmpty(t, jti)

	claims, err := v.Verify(ctx, token, Access, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "urn:rollupid:identity/0x1", Subject(claims))
	assert.Equal(t, jti, JTI(claims))
	assert.Equal(t, []string{"openid", "email"}, Scope(claims))

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "1", parsed.Header["kid"])
	assert.Equal(t, "RS256", parsed.Header["alg"])
}

func TestVerify_Expired(t *testing.T) {
	ctx := context.Background()
	signer := newSigner(t, "1")
	iss := NewIssuer(signer, issuer)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := iss.Issue(ctx, Session, "sub", []string{"passport"}, time.Minute, nil)
	require.NoError(t, err)

	_, err = NewVerifier(signer, issuer, nil).Verify(ctx, token, Session, "passport")
	assert.ErrorIs(t, err, storage.ErrTokenExpired)
}

func TestVerify_Invalid(t *testing.T) {
	ctx := context.Background()
	signer := newSigner(t, "1")
	token, _, err := NewIssuer(signer, issuer).Issue(ctx, Session, "sub", []string{"passport"}, time.Minute, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		verifier *Verifier
		typ      TokenType
		aud      string
	}{
		{"other key", NewVerifier(newSigner(t, "1"), issuer, nil), Session, "passport"},
		{"unknown kid", NewVerifier(newSigner(t, "2"), issuer, nil), Session, "passport"},
		{"other issuer", NewVerifier(signer, "https://evil.test", nil), Session, "passport"},
		{"other audience", NewVerifier(signer, issuer, nil), Session, "app-1"},
		{"wrong type", NewVerifier(signer, issuer, nil), Access, "passport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.Verify(ctx, token, tt.typ, tt.aud)
			assert.ErrorIs(t, err, storage.ErrTokenInvalid)
		})
	}

	_, err = NewVerifier(signer, issuer, nil).Verify(ctx, "not-a-token", Session, "")
	assert.ErrorIs(t, err, storage.ErrTokenInvalid)
}

func TestKeySet_PublishesPublicKey(t *testing.T) {
	signer := newSigner(t, "key-1")
	set, err := signer.KeySet(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	raw, err := json.Marshal(set)
	require.NoError(t, err)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "key-1", doc.Keys[0]["kid"])
	assert.Equal(t, "RS256", doc.Keys[0]["alg"])
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
	assert.NotContains(t, doc.Keys[0], "d")
}

func TestLoadKeySigner(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(path, data, 0o600))

	signer, err := LoadKeySigner(path, "k")
	require.NoError(t, err)
	assert.True(t, signer.key.Equal(key))

	_, err = LoadKeySigner(filepath.Join(t.TempDir(), "missing.pem"), "k")
	assert.Error(t, err)

	ephemeral, err := LoadKeySigner("", "k")
	require.NoError(t, err)
	assert.NotNil(t, ephemeral.key)
}

func TestNewOpaqueToken(t *testing.T) {
	a, err := NewOpaqueToken(32)
	require.NoError(t, err)
	b, err := NewOpaqueToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}

package vault

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	vaultclient "github.com/hashicorp/vault-client-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/lib/jwt"
	"passport/internal/storage/protected"
	"passport/internal/storage/redis"
)

// fakeTransit emulates the transit endpoints the signer talks to
type fakeTransit struct {
	mu     sync.Mutex
	keys   []*rsa.PrivateKey
	signed int
}

func newFakeTransit(t *testing.T) *fakeTransit {
	f := &fakeTransit{}
	f.rotate(t)
	return f
}

func (f *fakeTransit) rotate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
}

func (f *fakeTransit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/transit/keys/jwt_keys":
		keys := map[string]any{}
		for i, k := range f.keys {
			der, _ := x509.MarshalPKIXPublicKey(&k.PublicKey)
			keys[strconv.Itoa(i+1)] = map[string]any{
				"public_key": string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
			}
		}
		writeData(w, map[string]any{"latest_version": len(f.keys), "keys": keys})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/transit/sign/jwt_keys":
		var body struct {
			Input      string `json:"input"`
			KeyVersion int    `json:"key_version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		input, err := base64.StdEncoding.DecodeString(body.Input)
		if err != nil || body.KeyVersion < 1 || body.KeyVersion > len(f.keys) {
			http.Error(w, "bad input", http.StatusBadRequest)
			return
		}
		sum := sha256.Sum256(input)
		sig, _ := rsa.SignPKCS1v15(rand.Reader, f.keys[body.KeyVersion-1], crypto.SHA256, sum[:])
		f.signed++
		writeData(w, map[string]any{
			"signature": "vault:v" + strconv.Itoa(body.KeyVersion) + ":" + base64.RawURLEncoding.EncodeToString(sig),
		})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/transit/keys/jwt_keys/rotate":
		key, _ := rsa.GenerateKey(rand.Reader, 2048)
		f.keys = append(f.keys, key)
		writeData(w, map[string]any{})
	default:
		http.NotFound(w, r)
	}
}

func writeData(w http.ResponseWriter, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newSigner(t *testing.T, f *fakeTransit) *TransitSigner {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := vaultclient.New(vaultclient.WithAddress(srv.URL))
	require.NoError(t, err)
	require.NoError(t, client.SetToken("test"))

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewTransitSigner(&protected.Vault{Client: client}, redis.NewCacheWrapper(rdb, time.Minute, true), "jwt_keys")
}

func TestTransitSigner_SignVerify(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransit(t)
	s := newSigner(t, f)

	version, err := s.LatestKeyVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	issuer := jwt.NewIssuer(s, "https://passport.test")
	token, _, err := issuer.Issue(ctx, jwt.Access, "sub", []string{"app-1"}, time.Minute,
		map[string]any{jwt.ClaimScope: "openid"})
	require.NoError(t, err)

	claims, err := jwt.NewVerifier(s, "https://passport.test", nil).Verify(ctx, token, jwt.Access, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "sub", jwt.Subject(claims))
}

func TestTransitSigner_RotateKeepsOldKeys(t *testing.T) {
	ctx := context.Background()
	f := newFakeTransit(t)
	s := newSigner(t, f)
	issuer := jwt.NewIssuer(s, "iss")
	verifier := jwt.NewVerifier(s, "iss", nil)

	old, _, err := issuer.Issue(ctx, jwt.Session, "sub", []string{"passport"}, time.Minute, nil)
	require.NoError(t, err)

	require.NoError(t, s.RotateKey(ctx))

	version, err := s.LatestKeyVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	set, err := s.KeySet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	fresh, _, err := issuer.Issue(ctx, jwt.Session, "sub", []string{"passport"}, time.Minute, nil)
	require.NoError(t, err)

	for _, token := range []string{old, fresh} {
		_, err := verifier.Verify(ctx, token, jwt.Session, "passport")
		assert.NoError(t, err)
	}
}

func TestAsInt(t *testing.T) {
	for _, v := range []any{json.Number("3"), float64(3), 3, "3"} {
		got, err := asInt(v)
		require.NoError(t, err)
		assert.Equal(t, 3, got)
	}
	_, err := asInt(nil)
	assert.Error(t, err)
}

package auth

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"robustroute/internal/apperr"
	"robustroute/internal/config"
)

func b64(v any) string {
	b, _ := json.Marshal(v)
	return base64.RawURLEncoding.EncodeToString(b)
}

func hs256(secret string, claims map[string]any) string {
	input := b64(map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + b64(claims)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(input))
	return input + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMAC(t *testing.T) {
	v := NewVerifier(config.AuthConfig{Mode: "hmac", HMACSecret: "s3cret"})
	require.True(t, v.Enabled())
	ctx := context.Background()

	p, err := v.Verify(ctx, hs256("s3cret", map[string]any{"sub": "planner", "exp": time.Now().Add(time.Hour).Unix()}))
	require.NoError(t, err)
	require.Equal(t, "planner", p.Subject)

	_, err = v.Verify(ctx, hs256("other", map[string]any{"sub": "planner"}))
	require.Equal(t, apperr.CodeUnauthorized, apperr.GetCode(err))

	_, err = v.Verify(ctx, hs256("s3cret", map[string]any{"sub": "planner", "exp": time.Now().Add(-time.Minute).Unix()}))
	require.ErrorContains(t, err, "expired")

	_, err = v.Verify(ctx, hs256("s3cret", map[string]any{"role": "x"}))
	require.ErrorContains(t, err, "missing sub")

	_, err = v.Verify(ctx, "not-a-jwt")
	require.Error(t, err)
}

func TestVerifyJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "k1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	sign := func(kid string) string {
		input := b64(map[string]string{"alg": "RS256", "kid": kid}) + "." + b64(map[string]any{"sub": "svc"})
		h := sha256.Sum256([]byte(input))
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
		require.NoError(t, err)
		return input + "." + base64.RawURLEncoding.EncodeToString(sig)
	}

	v := NewVerifier(config.AuthConfig{Mode: "jwks", JWKSURL: srv.URL})
	p, err := v.Verify(context.Background(), sign("k1"))
	require.NoError(t, err)
	require.Equal(t, "svc", p.Subject)

	_, err = v.Verify(context.Background(), sign("k1"))
	require.NoError(t, err)
	require.Equal(t, 1, fetches, "key set is cached")

	_, err = v.Verify(context.Background(), sign("k2"))
	require.Equal(t, apperr.CodeUnauthorized, apperr.GetCode(err))
}

func TestOffMode(t *testing.T) {
	require.False(t, NewVerifier(config.AuthConfig{}).Enabled())
	var v *Verifier
	require.False(t, v.Enabled())
}

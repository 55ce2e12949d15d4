// Package auth verifies bearer JWTs for the solving endpoints.
package auth

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"robustroute/internal/apperr"
	"robustroute/internal/config"
)

// Verifier validates JWTs. Supports modes: off (no verify), hmac (HS256),
// jwks (RS256 with keys from a JWKS URL, cached).
type Verifier struct {
	Mode         string
	HMACSecret   []byte
	JWKSURL      string
	SubjectClaim string
	http         *http.Client
	now          func() time.Time
	mu           sync.RWMutex
	jwks         jwks
	lastFetch    time.Time
	cacheTTL     time.Duration
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// Principal is the verified caller.
type Principal struct {
	Subject string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "off"
	}
	claim := cfg.SubjectClaim
	if claim == "" {
		claim = "sub"
	}
	return &Verifier{
		Mode:         mode,
		HMACSecret:   []byte(cfg.HMACSecret),
		JWKSURL:      cfg.JWKSURL,
		SubjectClaim: claim,
		http:         &http.Client{Timeout: 5 * time.Second},
		now:          time.Now,
		cacheTTL:     10 * time.Minute,
	}
}

// Enabled reports whether requests must carry a token.
func (v *Verifier) Enabled() bool { return v != nil && v.Mode != "off" }

func unauthorized(msg string) error { return apperr.New(apperr.CodeUnauthorized, msg) }

// Verify checks the signature and the exp/nbf claims of token.
func (v *Verifier) Verify(ctx context.Context, token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, unauthorized("malformed token")
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, unauthorized("malformed token header")
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, unauthorized("malformed token payload")
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, unauthorized("malformed token signature")
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, unauthorized("malformed token header")
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, unauthorized("malformed token payload")
	}

	signingInput := []byte(segs[0] + "." + segs[1])
	switch v.Mode {
	case "hmac":
		if hdr.Alg != "HS256" {
			return Principal{}, unauthorized("unsupported alg for hmac")
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write(signingInput)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Principal{}, unauthorized("bad signature")
		}
	case "jwks":
		if hdr.Alg != "RS256" {
			return Principal{}, unauthorized("unsupported alg for jwks")
		}
		pub, err := v.rsaPublicKey(ctx, hdr.Kid)
		if err != nil {
			return Principal{}, err
		}
		h := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return Principal{}, unauthorized("bad signature")
		}
	default:
		return Principal{}, fmt.Errorf("auth: unsupported mode %q", v.Mode)
	}

	now := v.now()
	if exp, ok := claims["exp"].(float64); ok && now.After(time.Unix(int64(exp), 0)) {
		return Principal{}, unauthorized("token expired")
	}
	if nbf, ok := claims["nbf"].(float64); ok && now.Before(time.Unix(int64(nbf), 0)) {
		return Principal{}, unauthorized("token not yet valid")
	}
	sub, _ := claims[v.SubjectClaim].(string)
	if sub == "" {
		return Principal{}, unauthorized("missing " + v.SubjectClaim + " claim")
	}
	return Principal{Subject: sub}, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

// rsaPublicKey looks kid up in the cached key set, refetching when stale.
func (v *Verifier) rsaPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	cached := v.jwks
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(cached.Keys) == 0 || stale {
		if err := v.fetchJWKS(ctx); err != nil {
			return nil, err
		}
		v.mu.RLock()
		cached = v.jwks
		v.mu.RUnlock()
	}
	for _, k := range cached.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nBytes, err := b64urlDecode(k.N)
		if err != nil {
			return nil, fmt.Errorf("jwks key %s: %w", kid, err)
		}
		eBytes, err := b64urlDecode(k.E)
		if err != nil {
			return nil, fmt.Errorf("jwks key %s: %w", kid, err)
		}
		e := new(big.Int).SetBytes(eBytes)
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
	}
	return nil, unauthorized("kid not found in JWKS")
}

func (v *Verifier) fetchJWKS(ctx context.Context) error {
	if v.JWKSURL == "" {
		return errors.New("auth: jwks url not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth: fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: fetch jwks: status %d", resp.StatusCode)
	}
	var j jwks
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return fmt.Errorf("auth: decode jwks: %w", err)
	}
	v.mu.Lock()
	v.jwks = j
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}

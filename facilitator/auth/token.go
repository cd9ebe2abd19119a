// Package auth authenticates gateways to a facilitator with short-lived
// EdDSA JWT bearer tokens. TokenSource mints them on the calling side;
// Validator checks them on the facilitator server.
package auth

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// DefaultTokenTTL is how long a minted token stays valid.
const DefaultTokenTTL = 2 * time.Minute

// RequestClaims are the claims of a facilitator bearer token. URI binds the
// token to one endpoint: "{METHOD} {path}".
type RequestClaims struct {
	*jwt.Claims
	URI string `json:"uri"`
}

// TokenSource mints bearer tokens signed with an ed25519 key.
// It is immutable after construction and safe for concurrent use.
type TokenSource struct {
	keyID    string
	issuer   string
	audience string
	ttl      time.Duration
	signer   jose.Signer
	now      func() time.Time
}

// NewTokenSource creates a TokenSource. keyID is sent as the "kid" header and
// the "sub" claim; the facilitator looks up the public key by it.
func NewTokenSource(keyID, issuer, audience string, key ed25519.PrivateKey) (*TokenSource, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keyID must not be empty")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key")
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.EdDSA, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT signer: %w", err)
	}

	return &TokenSource{
		keyID:    keyID,
		issuer:   issuer,
		audience: audience,
		ttl:      DefaultTokenTTL,
		signer:   signer,
		now:      time.Now,
	}, nil
}

// Token mints a token for one request to method and path.
func (s *TokenSource) Token(method, path string) (string, error) {
	now := s.now()
	claims := RequestClaims{
		Claims: &jwt.Claims{
			Subject:   s.keyID,
			Issuer:    s.issuer,
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(s.ttl)),
		},
		URI: requestURI(method, path),
	}
	if s.audience != "" {
		claims.Audience = jwt.Audience{s.audience}
	}

	token, err := jwt.Signed(s.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT: %w", err)
	}
	return token, nil
}

// Authorization returns "Bearer <token>" for r, or "" when minting fails.
// Its signature matches the facilitator client's AuthorizationProvider.
func (s *TokenSource) Authorization(r *http.Request) string {
	token, err := s.Token(r.Method, r.URL.Path)
	if err != nil {
		slog.Default().Warn("failed to mint facilitator token", "error", err)
		return ""
	}
	return "Bearer " + token
}

func requestURI(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// ParsePrivateKey reads an ed25519 key from a PKCS#8 PEM block or a
// hex-encoded 32-byte seed.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if block, _ := pem.Decode([]byte(s)); block != nil {
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T: must be Ed25519", key)
		}
		return edKey, nil
	}

	seed, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be PKCS#8 PEM or a 32-byte hex seed")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// ParsePublicKey reads an ed25519 public key from a PKIX PEM block or 32 hex bytes.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	if block, _ := pem.Decode([]byte(s)); block != nil {
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		edKey, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported public key type %T: must be Ed25519", key)
		}
		return edKey, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be PKIX PEM or 32 hex bytes")
	}
	return ed25519.PublicKey(raw), nil
}

package auth

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken indicates a request without a bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken indicates a token that failed validation.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims are the validated claims of a facilitator bearer token.
type Claims struct {
	KeyID     string
	Issuer    string
	URI       string
	ExpiresAt time.Time
}

type requestClaims struct {
	jwt.RegisteredClaims
	URI string `json:"uri"`
}

// Validator checks bearer tokens minted by TokenSource against a fixed set
// of trusted public keys.
type Validator struct {
	keys      map[string]ed25519.PublicKey
	audience  string
	clockSkew time.Duration
}

// NewValidator creates a Validator. keys maps key ids to public keys. When
// audience is non-empty tokens must carry it.
func NewValidator(keys map[string]ed25519.PublicKey, audience string, clockSkew time.Duration) *Validator {
	return &Validator{keys: keys, audience: audience, clockSkew: clockSkew}
}

// ValidateToken verifies tokenString and returns its claims.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var rc requestClaims
	token, err := jwt.ParseWithClaims(tokenString, &rc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := v.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	kid, _ := token.Header["kid"].(string)
	if rc.Subject != kid {
		return nil, fmt.Errorf("%w: subject %q does not match key id %q", ErrInvalidToken, rc.Subject, kid)
	}

	claims := &Claims{KeyID: kid, Issuer: rc.Issuer, URI: rc.URI}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, nil
}

// ValidateRequest validates the bearer token of r and checks that it was
// minted for r's method and path.
func (v *Validator) ValidateRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	claims, err := v.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if want := requestURI(r.Method, r.URL.Path); claims.URI != want {
		return nil, fmt.Errorf("%w: token issued for %q, not %q", ErrInvalidToken, claims.URI, want)
	}
	return claims, nil
}

// Middleware rejects requests without a valid token with 401.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := v.ValidateRequest(r); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

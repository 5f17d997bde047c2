// Package auth protects the operator API with HS256 bearer tokens.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coinpayments-webhooks/internal/clock"
	"coinpayments-webhooks/internal/common/errors"
)

// Issuer is written into and required from every token.
const Issuer = "coinpayments-webhookd"

// Claims carried by operator tokens.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
	clock  clock.Clock
}

func New(secret string, clk clock.Clock) (*Auth, error) {
	if len(secret) < 32 {
		return nil, errors.ConfigError("JWT secret must be at least 32 characters")
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Auth{secret: []byte(secret), clock: clk}, nil
}

// GenerateJWT issues a token for subject valid for ttl.
func (a *Auth) GenerateJWT(subject, scope string, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.InternalError("failed to sign token", err)
	}
	return token, nil
}

// ValidateJWT checks signature, algorithm, issuer and expiry.
func (a *Auth) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return nil, errors.AuthError(fmt.Sprintf("invalid token: %v", err))
	}
	return claims, nil
}

type contextKey struct{}

// ClaimsFromContext returns the claims stored by RequireJWT.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}

// RequireJWT answers 401 unless the request carries a valid
// "Authorization: Bearer" token.
func (a *Auth) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			errors.WriteHTTP(w, errors.AuthError("bearer token required"))
			return
		}

		claims, err := a.ValidateJWT(strings.TrimSpace(token))
		if err != nil {
			errors.WriteHTTP(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
	})
}

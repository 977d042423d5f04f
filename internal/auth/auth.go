// Package auth verifies the bearer tokens that identify drafters.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

const issuer = "duel-draft"

type ctxKey struct{}

// Verifier checks HS256 tokens. The subject claim is the drafter id.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(secret), now: now}
}

// Verify returns the drafter id carried by token.
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Sign issues a token for drafterID valid for ttl.
func (v *Verifier) Sign(drafterID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   drafterID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware verifies the request token and stores the drafter id in the
// request context. Websocket upgrades may pass the token as ?token= since
// browsers cannot set headers on them.
func (v *Verifier) Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			drafterID, err := v.Verify(tokenFrom(r))
			if err != nil {
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDrafterID(r.Context(), drafterID)))
		})
	}
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func WithDrafterID(ctx context.Context, drafterID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, drafterID)
}

// DrafterID returns the verified drafter id, or "" when the request was not
// authenticated.
func DrafterID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

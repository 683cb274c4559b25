package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims carries the registered JWT fields plus the one
// application-specific claim this service needs.
type sessionClaims struct {
	Controller string `json:"controller"`
	jwt.RegisteredClaims
}

const sessionTTL = 30 * time.Minute

type ctxKey string

const controllerCtxKey ctxKey = "apiserver.controller"

// sessionIssuer signs and verifies the short-lived bearer tokens issued to
// an already-SIWE-verified controller, so a dashboard can poll read-only
// endpoints without re-signing a SIWE message on every request.
type sessionIssuer struct {
	secret []byte
}

func newSessionIssuer(secret []byte) *sessionIssuer {
	return &sessionIssuer{secret: secret}
}

func (si *sessionIssuer) issue(controller string) (string, error) {
	claims := sessionClaims{
		Controller: controller,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(si.secret)
}

func (si *sessionIssuer) verify(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("apiserver: unexpected signing method %v", t.Header["alg"])
		}
		return si.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("apiserver: session token: %w", err)
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("apiserver: session token: invalid claims")
	}
	return claims.Controller, nil
}

// middleware rejects requests without a valid "Authorization: Bearer <jwt>"
// header and stashes the recovered controller address in the request
// context for downstream handlers.
func (si *sessionIssuer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing bearer token"))
			return
		}
		controller, err := si.verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), controllerCtxKey, controller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

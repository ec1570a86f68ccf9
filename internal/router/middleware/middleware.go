package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
)

type AuthKey struct{}

var (
	errNoAuthHeader  = errors.New("authorization header is missing")
	errBadAuthHeader = errors.New("authorization header must be \"Bearer <token>\"")
)

// AuthMiddleware admits requests carrying a bearer token signed by tokenMaker.
// With roles given, the token's role claim must be one of them. A nil
// tokenMaker leaves routes open.
func AuthMiddleware(tokenMaker *JWTMaker, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokenMaker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				deny(w, http.StatusUnauthorized, err)
				return
			}
			claims, err := tokenMaker.VerifyToken(raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, err)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				deny(w, http.StatusForbidden, errors.New("role "+claims.Role+" may not call this route"))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), AuthKey{}, claims)))
		})
	}
}

// ClaimsFrom returns the operator claims set by AuthMiddleware, if any.
func ClaimsFrom(ctx context.Context) (*OperatorClaims, bool) {
	claims, ok := ctx.Value(AuthKey{}).(*OperatorClaims)
	return claims, ok
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoAuthHeader
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.ContainsRune(token, ' ') {
		return "", errBadAuthHeader
	}
	return token, nil
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(status),
		"status":  status,
		"message": err.Error(),
	})
}
